package server

import (
	"errors"
	"log"
	"net/http"

	"secret-santa/internal/santa"
	"secret-santa/internal/web"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleGame(c *gin.Context) {
	code, ok := bindGameCode(c)
	if !ok {
		return
	}
	summary, err := s.gameSummary(c, code)
	if errors.Is(err, santa.ErrGameNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		return
	}
	if err != nil {
		log.Printf("game summary failed game=%s err=%v", code, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load game"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) gameSummary(c *gin.Context, code string) (web.GameSummary, error) {
	ctx := c.Request.Context()
	game, err := s.store.Game(ctx, code)
	if err != nil {
		return web.GameSummary{}, err
	}
	members, err := s.store.ListParticipants(ctx, code)
	if err != nil {
		return web.GameSummary{}, err
	}
	done, err := s.store.IsDrawDone(ctx, code)
	if err != nil {
		return web.GameSummary{}, err
	}
	return web.GameSummary{
		Code:         game.Code,
		CreatorID:    game.CreatorID,
		Participants: len(members),
		DrawDone:     done,
		CreatedAt:    game.CreatedAt,
	}, nil
}
