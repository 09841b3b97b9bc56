package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"secret-santa/internal/config"
	"secret-santa/internal/conversation"
	"secret-santa/internal/santa"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test; listen unavailable: %v", err)
	}
	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: handler},
	}
	ts.Start()
	return ts
}

type recordingSink struct {
	mu     sync.Mutex
	events []conversation.Event
	err    error
}

func (s *recordingSink) Submit(ev conversation.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

// seededStore holds game ABC123 by user 1 with users 1, 2 and 3, paired.
func seededStore(t *testing.T, drawn bool) *santa.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := santa.NewMemoryStore()
	if err := store.CreateGame(ctx, "ABC123", 1); err != nil {
		t.Fatalf("create game: %v", err)
	}
	names := map[int64]string{1: "Nick <Claus>", 2: "Ada", 3: "Grace"}
	for _, id := range []int64{1, 2, 3} {
		if err := store.JoinGame(ctx, id, "", names[id], "ABC123"); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	if err := store.SetWish(ctx, 2, "a secret wish"); err != nil {
		t.Fatalf("wish: %v", err)
	}
	if drawn {
		if err := store.ApplyAssignment(ctx, "ABC123", map[int64]int64{1: 2, 2: 3, 3: 1}); err != nil {
			t.Fatalf("assign: %v", err)
		}
	}
	return store
}

func newAdminServer(t *testing.T, store santa.Store, sink Submitter, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	if sink == nil {
		sink = &recordingSink{}
	}
	return New(store, nil, sink, cfg)
}
