package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/flowforge/orchestrator/pkg/events"
	"github.com/flowforge/orchestrator/pkg/models"
)

type createChatRequest struct {
	ProjectID string `json:"projectId" binding:"required"`
	Title     string `json:"title"`
}

func (s *Server) createChat(c *gin.Context) {
	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Title == "" {
		req.Title = "New chat"
	}

	chat := &models.Chat{
		ID:        uuid.New().String(),
		ProjectID: req.ProjectID,
		Title:     req.Title,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.store.CreateChat(c.Request.Context(), chat); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, chat)
}

func (s *Server) getChat(c *gin.Context) {
	chat, err := s.store.GetChat(c.Request.Context(), c.Param("chatId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

type renameChatRequest struct {
	Title string `json:"title" binding:"required"`
}

func (s *Server) renameChat(c *gin.Context) {
	var req renameChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.store.RenameChat(c.Request.Context(), c.Param("chatId"), req.Title); err != nil {
		respondError(c, err)
		return
	}
	s.bus.PublishChatRenamed(events.ChatRenamedPayload{ChatID: c.Param("chatId"), Title: req.Title})
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteChat(c *gin.Context) {
	if err := s.store.DeleteChat(c.Request.Context(), c.Param("chatId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type setYoloRequest struct {
	Yolo bool `json:"yolo"`
}

func (s *Server) setYoloMode(c *gin.Context) {
	var req setYoloRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.store.SetYoloMode(c.Request.Context(), c.Param("chatId"), req.Yolo); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listMessages(c *gin.Context) {
	msgs, err := s.store.ListMessages(c.Request.Context(), c.Param("chatId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}
