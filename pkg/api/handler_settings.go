package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/flowforge/orchestrator/pkg/flow"
)

// Flow templates and active bindings live in app_settings under the
// "flow.template.<id>" / "flow.active.<intent>" key shapes pkg/orchestrator
// bootstraps on first resolve (§4.E, §6) — these handlers read and write
// the same keys so an edit here is picked up by the next resolve.
const (
	flowTemplatePrefix = "flow.template."
	flowActivePrefix   = "flow.active."
)

func (s *Server) listFlowTemplates(c *gin.Context) {
	raw, err := s.store.ListSettingsByPrefix(c.Request.Context(), flowTemplatePrefix)
	if err != nil {
		respondError(c, err)
		return
	}
	templates := make([]*flow.Template, 0, len(raw))
	for _, body := range raw {
		var t flow.Template
		if err := json.Unmarshal([]byte(body), &t); err != nil {
			respondError(c, err)
			return
		}
		templates = append(templates, &t)
	}
	c.JSON(http.StatusOK, templates)
}

func (s *Server) getFlowTemplate(c *gin.Context) {
	raw, err := s.store.GetSetting(c.Request.Context(), flowTemplatePrefix+c.Param("templateId"))
	if err != nil {
		respondError(c, err)
		return
	}
	var t flow.Template
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, &t)
}

func (s *Server) putFlowTemplate(c *gin.Context) {
	var t flow.Template
	if err := c.ShouldBindJSON(&t); err != nil {
		badRequest(c, err)
		return
	}
	t.ID = c.Param("templateId")
	if issues := flow.Validate(&t, s.agents.Names()); flow.HasErrors(issues) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"issues": issues})
		return
	}
	body, err := json.Marshal(&t)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := s.store.PutSetting(c.Request.Context(), flowTemplatePrefix+t.ID, string(body)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listActiveBindings(c *gin.Context) {
	raw, err := s.store.ListSettingsByPrefix(c.Request.Context(), flowActivePrefix)
	if err != nil {
		respondError(c, err)
		return
	}
	bindings := make(map[string]string, len(raw))
	for key, templateID := range raw {
		bindings[strings.TrimPrefix(key, flowActivePrefix)] = templateID
	}
	c.JSON(http.StatusOK, bindings)
}

type setActiveBindingRequest struct {
	TemplateID string `json:"templateId" binding:"required"`
}

func (s *Server) setActiveBinding(c *gin.Context) {
	var req setActiveBindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	intent := flow.Intent(c.Param("intent"))
	if err := s.store.PutSetting(c.Request.Context(), flowActivePrefix+string(intent), req.TemplateID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
