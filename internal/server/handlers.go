package server

import (
	"net/http"
	"strings"

	"github.com/chaospilot/incident-console/internal"
	"github.com/gin-gonic/gin"
)

type sendRequest struct {
	Text string `json:"text" binding:"required"`
}

type toggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (s *Server) health(c *gin.Context) {
	snap := s.console.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"session_id": snap.SessionID,
		"autonomous": snap.Autonomous,
		"monitoring": snap.Monitoring,
	})
}

func (s *Server) snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.console.Snapshot())
}

func (s *Server) listMessages(c *gin.Context) {
	c.JSON(http.StatusOK, s.console.Snapshot().Messages)
}

// sendMessage relays an operator message. Backend failures are part of
// the returned conversation, so the status is 201 either way.
func (s *Server) sendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	appended := s.console.SendMessage(c.Request.Context(), text)
	result := "ok"
	for _, msg := range appended {
		if msg.Role == internal.RoleError {
			result = "error"
		}
	}
	s.metrics.messagesSent.WithLabelValues(result).Inc()

	c.JSON(http.StatusCreated, gin.H{"messages": appended})
}

func (s *Server) clearMessages(c *gin.Context) {
	s.console.ClearConversation()
	c.Status(http.StatusNoContent)
}

func (s *Server) listAgents(c *gin.Context) {
	c.JSON(http.StatusOK, s.console.Agents().All())
}

func (s *Server) listPhases(c *gin.Context) {
	c.JSON(http.StatusOK, s.console.Snapshot().Phases)
}

func (s *Server) listWorkflows(c *gin.Context) {
	workflows := s.console.Engine().Workflows()
	if status := c.Query("status"); status != "" {
		filtered := workflows[:0]
		for _, w := range workflows {
			if string(w.Status) == status {
				filtered = append(filtered, w)
			}
		}
		workflows = filtered
	}
	c.JSON(http.StatusOK, workflows)
}

func (s *Server) getWorkflow(c *gin.Context) {
	w, ok := s.console.Engine().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "workflow not found"})
		return
	}
	c.JSON(http.StatusOK, w)
}

func (s *Server) listInsights(c *gin.Context) {
	c.JSON(http.StatusOK, s.console.Insights().Log().Insights())
}

func (s *Server) transcript(c *gin.Context) {
	c.JSON(http.StatusOK, s.console.Transcript())
}

func (s *Server) listSessions(c *gin.Context) {
	transport := s.console.Transport()
	if transport == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no backend configured"})
		return
	}
	sessions, err := transport.ListSessions(c.Request.Context())
	if err != nil {
		internal.LogWarn("[server] list sessions: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if sessions == nil {
		sessions = []internal.Session{}
	}
	c.JSON(http.StatusOK, sessions)
}

func (s *Server) newSession(c *gin.Context) {
	id, err := s.console.NewSession()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session_id": id})
}

func (s *Server) resumeSession(c *gin.Context) {
	if err := s.console.Resume(c.Request.Context(), c.Param("id")); err != nil {
		internal.LogWarn("[server] resume %s: %v", c.Param("id"), err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.console.Snapshot())
}

func (s *Server) endSession(c *gin.Context) {
	if err := s.console.EndSession(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) setAutonomous(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enabled is required"})
		return
	}
	s.console.SetAutonomous(*req.Enabled)
	internal.LogInfo("[server] autonomous mode %s", onOff(*req.Enabled))
	c.JSON(http.StatusOK, gin.H{"autonomous": *req.Enabled})
}

func (s *Server) setMonitoring(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enabled is required"})
		return
	}
	s.console.SetMonitoring(*req.Enabled)
	internal.LogInfo("[server] monitoring %s", onOff(*req.Enabled))
	c.JSON(http.StatusOK, gin.H{"monitoring": *req.Enabled})
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
