package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const adminTokenHeader = "X-Admin-Token"

// requireAdmin checks the admin token when one is configured. Browsers cannot
// set headers on websocket upgrades, so the token query parameter is also
// accepted.
func (s *Server) requireAdmin(c *gin.Context) {
	expected := strings.TrimSpace(s.cfg.AdminToken)
	if expected == "" {
		c.Next()
		return
	}
	if !tokenMatches(c, expected) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin token required"})
		return
	}
	c.Next()
}

// requireEventToken guards the event webhook. An event acts as the user it
// names, so the webhook stays closed until an admin token is configured.
func (s *Server) requireEventToken(c *gin.Context) {
	expected := strings.TrimSpace(s.cfg.AdminToken)
	if expected == "" {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "event webhook disabled: ADMIN_TOKEN is not set"})
		return
	}
	if !tokenMatches(c, expected) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin token required"})
		return
	}
	c.Next()
}

func tokenMatches(c *gin.Context, expected string) bool {
	provided := strings.TrimSpace(c.GetHeader(adminTokenHeader))
	if provided == "" {
		provided = strings.TrimSpace(c.Query("token"))
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}
