package server

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"secret-santa/internal/santa"
	"secret-santa/internal/web"

	"github.com/a-h/templ"
	"github.com/gin-gonic/gin"
)

const adminEventLimit = 50

func (s *Server) handleAdminView(c *gin.Context) {
	code, ok := bindGameCode(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	summary, err := s.gameSummary(c, code)
	if errors.Is(err, santa.ErrGameNotFound) {
		log.Printf("admin view missing game=%s", code)
		c.String(http.StatusNotFound, "game not found")
		return
	}
	if err != nil {
		log.Printf("admin view failed game=%s err=%v", code, err)
		c.String(http.StatusInternalServerError, "failed to load game")
		return
	}
	members, err := s.store.Participants(ctx, code)
	if err != nil {
		log.Printf("admin view failed game=%s err=%v", code, err)
		c.String(http.StatusInternalServerError, "failed to load participants")
		return
	}

	data := web.AdminData{Game: summary, InMemory: s.events == nil}
	data.CreatorName = "ID" + itoa64(summary.CreatorID)
	for _, p := range members {
		if p.UserID == summary.CreatorID {
			data.CreatorName = p.DisplayName()
		}
		data.Participants = append(data.Participants, web.ParticipantRow{
			Name:       p.DisplayName(),
			HasWish:    strings.TrimSpace(p.Wish) != "",
			Paired:     p.SantaOf != nil,
			GiftBought: p.GiftBought,
			JoinedAt:   p.JoinedAt,
		})
	}
	if s.events != nil {
		events, err := s.events.Events(ctx, code, adminEventLimit)
		if err != nil {
			log.Printf("admin events failed game=%s err=%v", code, err)
		}
		for _, ev := range events {
			row := web.EventRow{Type: ev.Type, CreatedAt: ev.CreatedAt}
			if ev.UserID != nil {
				row.UserID = *ev.UserID
			}
			data.Events = append(data.Events, row)
		}
	}
	templ.Handler(web.AdminGame(data)).ServeHTTP(c.Writer, c.Request)
}
