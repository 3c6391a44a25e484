package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flowforge/orchestrator/pkg/orchestrator"
	"github.com/flowforge/orchestrator/pkg/store"
)

type runAgentsRequest struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
	Resume  bool   `json:"resume"`
}

// runAgents handles the flat POST /chats/agents/run route, taking chatId in
// the body — kept alongside the nested /chats/:chatId/agents/run route
// since both shapes appear across the example pack's routers.
func (s *Server) runAgents(c *gin.Context) {
	var req runAgentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.startRun(c, req.ChatID, req.Message, req.Resume)
}

func (s *Server) runAgentsForChat(c *gin.Context) {
	var req runAgentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.startRun(c, c.Param("chatId"), req.Message, req.Resume)
}

func (s *Server) startRun(c *gin.Context, chatID, message string, resume bool) {
	runID, err := s.sched.Run(c.Request.Context(), orchestrator.RunRequest{
		ChatID: chatID, Message: message, Resume: resume,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"runId": runID})
}

func (s *Server) stopAgents(c *gin.Context) {
	s.sched.Stop(c.Param("chatId"))
	c.Status(http.StatusNoContent)
}

func (s *Server) agentStatus(c *gin.Context) {
	run, err := s.store.GetRunningRun(c.Request.Context(), c.Param("chatId"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"running": false})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": true, "run": run})
}

type resolveCheckpointRequest struct {
	ChatID       string `json:"chatId" binding:"required"`
	CheckpointID string `json:"checkpointId" binding:"required"`
	Choice       string `json:"choice" binding:"required"`
}

func (s *Server) resolveCheckpoint(c *gin.Context) {
	var req resolveCheckpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !s.sched.ResolveCheckpoint(req.ChatID, req.CheckpointID, req.Choice) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pending checkpoint with that id for that chat"})
		return
	}
	c.Status(http.StatusNoContent)
}
