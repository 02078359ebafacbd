package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/switchboard/internal/session"
)

// sendRequest is the body of POST /api/tenants/:id/messages.
type sendRequest struct {
	Recipient string `json:"recipient" binding:"required"`
	Text      string `json:"text" binding:"required"`
}

func (s *Server) handleStartSession(c *gin.Context) {
	tenantID := c.Param("id")
	if err := s.ctrl.Start(c.Request.Context(), tenantID); err != nil {
		if errors.Is(err, session.ErrAlreadyActive) {
			c.JSON(http.StatusConflict, gin.H{"error": "session already active"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	rec := s.ctrl.Status(tenantID)
	c.JSON(http.StatusAccepted, gin.H{
		"tenant_id": tenantID,
		"state":     string(rec.State),
	})
}

func (s *Server) handleDisconnect(c *gin.Context) {
	tenantID := c.Param("id")
	if err := s.ctrl.Disconnect(c.Request.Context(), tenantID); err != nil {
		if errors.Is(err, session.ErrNoActiveSession) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active session"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant_id": tenantID, "state": string(session.StateDisconnecting)})
}

func (s *Server) handleQR(c *gin.Context) {
	tenantID := c.Param("id")
	rec := s.ctrl.Status(tenantID)
	if rec.LastQR == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no scan code available"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"qr": rec.LastQR})
}

func (s *Server) handleStatus(c *gin.Context) {
	tenantID := c.Param("id")
	rec := s.ctrl.Status(tenantID)
	c.JSON(http.StatusOK, gin.H{
		"tenant_id":       tenantID,
		"state":           string(rec.State),
		"phone":           rec.Phone,
		"has_qr":          rec.LastQR != "",
		"is_active":       rec.State.Active(),
		"is_initializing": rec.State == session.StateInitializing || rec.State == session.StateAwaitingScan,
	})
}

func (s *Server) handleSendMessage(c *gin.Context) {
	tenantID := c.Param("id")
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipient and text are required"})
		return
	}
	if err := s.relay.Send(c.Request.Context(), tenantID, req.Recipient, req.Text); err != nil {
		if errors.Is(err, session.ErrNoActiveSession) {
			c.JSON(http.StatusConflict, gin.H{"error": "no active session"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tenant_id": tenantID,
		"recipient": s.relay.NormalizeRecipient(req.Recipient),
		"status":    "sent",
	})
}

func (s *Server) handleHistory(c *gin.Context) {
	tenantID := c.Param("id")
	counterparty := s.relay.NormalizeRecipient(c.Param("counterparty"))
	msgs, err := s.store.History(tenantID, counterparty, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tenant_id":    tenantID,
		"counterparty": counterparty,
		"messages":     msgs,
	})
}

func (s *Server) handleConversations(c *gin.Context) {
	tenantID := c.Param("id")
	convs, err := s.store.Conversations(tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tenant_id":     tenantID,
		"conversations": convs,
	})
}
