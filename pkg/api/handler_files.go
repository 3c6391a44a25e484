package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// filesChatID lets a file-mutating request attribute its files_changed
// event to a chat (§6); absent for pure out-of-band browsing.
func filesChatID(c *gin.Context) string { return c.Query("chatId") }

func (s *Server) readFile(c *gin.Context) {
	project, err := s.store.GetProject(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		respondError(c, err)
		return
	}
	rel := strings.TrimPrefix(c.Param("path"), "/")
	data, err := s.artifact.ReadFile(project.Path, rel)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func (s *Server) writeFile(c *gin.Context) {
	project, err := s.store.GetProject(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		respondError(c, err)
		return
	}
	rel := strings.TrimPrefix(c.Param("path"), "/")
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := s.artifact.WriteFile(project.Path, filesChatID(c), rel, body); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteFile(c *gin.Context) {
	project, err := s.store.GetProject(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		respondError(c, err)
		return
	}
	rel := strings.TrimPrefix(c.Param("path"), "/")
	if err := s.artifact.DeleteFile(project.Path, filesChatID(c), rel); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listFiles(c *gin.Context) {
	project, err := s.store.GetProject(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		respondError(c, err)
		return
	}
	entries, err := s.artifact.ListFiles(project.Path)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
