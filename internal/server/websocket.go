package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"

	"secret-santa/internal/santa"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// wsHub fans game events out to admin pages watching a game. Writes are
// serialized because a connection allows one writer at a time.
type wsHub struct {
	mu      sync.Mutex
	writeMu sync.Mutex
	groups  map[string]map[*websocket.Conn]struct{}
}

func newWSHub() *wsHub {
	return &wsHub{
		groups: make(map[string]map[*websocket.Conn]struct{}),
	}
}

func (h *wsHub) Add(code string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[code]
	if group == nil {
		group = make(map[*websocket.Conn]struct{})
		h.groups[code] = group
	}
	group[conn] = struct{}{}
}

func (h *wsHub) Remove(code string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[code]
	if group == nil {
		return
	}
	delete(group, conn)
	_ = conn.Close()
	if len(group) == 0 {
		delete(h.groups, code)
	}
}

func (h *wsHub) Count(code string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups[code])
}

func (h *wsHub) Broadcast(code string, payload any) {
	h.mu.Lock()
	group := h.groups[code]
	conns := make([]*websocket.Conn, 0, len(group))
	for conn := range group {
		conns = append(conns, conn)
	}
	h.mu.Unlock()
	if len(conns) == 0 {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.writeMu.Lock()
	var failed []*websocket.Conn
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			failed = append(failed, conn)
		}
	}
	h.writeMu.Unlock()
	for _, conn := range failed {
		h.Remove(code, conn)
	}
}

func (s *Server) handleWebsocket(c *gin.Context) {
	code, ok := bindGameCode(c)
	if !ok {
		return
	}
	if _, err := s.store.Game(c.Request.Context(), code); err != nil {
		if errors.Is(err, santa.ErrGameNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load game"})
		return
	}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	log.Printf("ws connected game=%s remote=%s", code, c.Request.RemoteAddr)
	s.ws.Add(code, conn)
	go s.readWS(code, conn)
}

// readWS drains the connection until the client goes away; the feed is
// server-to-client only.
func (s *Server) readWS(code string, conn *websocket.Conn) {
	defer s.ws.Remove(code, conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func itoa64(value int64) string {
	return strconv.FormatInt(value, 10)
}
