package server

import (
	"errors"
	"log"
	"net/http"

	"secret-santa/internal/conversation"

	"github.com/gin-gonic/gin"
)

// eventRequest is an inbound user action from a transport other than the
// Telegram poller.
type eventRequest struct {
	UserID   int64  `json:"user_id" binding:"required,gt=0"`
	Username string `json:"username" binding:"max=64"`
	FullName string `json:"full_name" binding:"max=128"`
	Kind     string `json:"kind" binding:"required,oneof=command button text cancel callback"`
	Payload  string `json:"payload" binding:"max=4096"`
}

var eventMessages = bindMessages{
	"UserID": {"required": "user_id is required", "gt": "user_id must be positive"},
	"Kind":   {"required": "kind is required", "oneof": "kind must be one of command, button, text, cancel, callback"},
}

func (s *Server) handleInboundEvent(c *gin.Context) {
	var req eventRequest
	if !bindJSON(c, &req, eventMessages, "invalid event") {
		return
	}
	ev := conversation.Event{
		UserID:   req.UserID,
		Username: req.Username,
		FullName: req.FullName,
		Kind:     conversation.Kind(req.Kind),
		Payload:  req.Payload,
		Text:     req.Payload,
	}
	if err := s.sink.Submit(ev); err != nil {
		if errors.Is(err, conversation.ErrDispatcherClosed) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
			return
		}
		log.Printf("inbound event rejected user_id=%d err=%v", req.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event not accepted"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
