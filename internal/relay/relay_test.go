package relay

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"secret-santa/internal/santa"
)

type fakeTransport struct {
	mu     sync.Mutex
	sent   []Message
	fail   map[int64]bool
	block  map[int64]bool
	active int
	peak   int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{fail: map[int64]bool{}, block: map[int64]bool{}}
}

func (f *fakeTransport) Send(ctx context.Context, msg Message) error {
	f.mu.Lock()
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	fail, block := f.fail[msg.UserID], f.block[msg.UserID]
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	time.Sleep(time.Millisecond)
	if fail {
		return errors.New("Forbidden: bot was blocked by the user")
	}
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) messagesFor(userID int64) []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Message
	for _, msg := range f.sent {
		if msg.UserID == userID {
			out = append(out, msg)
		}
	}
	return out
}

func pairedStore(t *testing.T) *santa.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := santa.NewMemoryStore()
	if err := store.CreateGame(ctx, "ABC123", 1); err != nil {
		t.Fatalf("create game: %v", err)
	}
	for _, id := range []int64{1, 2, 3} {
		if err := store.JoinGame(ctx, id, "user"+strconv.FormatInt(id, 10), "Secret Name", "ABC123"); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	if err := store.ApplyAssignment(ctx, "ABC123", map[int64]int64{1: 2, 2: 3, 3: 1}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	return store
}

func TestRelayToWardIsAnonymous(t *testing.T) {
	store := pairedStore(t)
	transport := newFakeTransport()
	router := NewRouter(store, transport, Options{Timeout: time.Second})

	outcome, err := router.Relay(context.Background(), 1, santa.RoleWard, "what size <are> you?")
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if outcome != Delivered {
		t.Fatalf("expected delivered, got %s", outcome)
	}
	msgs := transport.messagesFor(2)
	if len(msgs) != 1 {
		t.Fatalf("expected one message to ward, got %d", len(msgs))
	}
	text := msgs[0].Text
	if !strings.HasPrefix(text, labelFromSanta) {
		t.Fatalf("expected santa label, got %q", text)
	}
	if !strings.Contains(text, "what size &lt;are&gt; you?") {
		t.Fatalf("expected escaped body, got %q", text)
	}
	for _, leak := range []string{"user1", "Secret Name", "ID1", " 1 "} {
		if strings.Contains(text, leak) {
			t.Fatalf("payload leaks sender identity %q: %q", leak, text)
		}
	}
}

func TestRelayToSanta(t *testing.T) {
	store := pairedStore(t)
	transport := newFakeTransport()
	router := NewRouter(store, transport, Options{Timeout: time.Second})

	outcome, err := router.Relay(context.Background(), 1, santa.RoleSanta, "thanks!")
	if err != nil || outcome != Delivered {
		t.Fatalf("expected delivered, got %s %v", outcome, err)
	}
	msgs := transport.messagesFor(3)
	if len(msgs) != 1 || !strings.HasPrefix(msgs[0].Text, labelFromWard) {
		t.Fatalf("expected ward-labelled message to santa 3, got %#v", msgs)
	}
}

func TestRelayRejectsTextBeyondMessageLimit(t *testing.T) {
	store := pairedStore(t)
	transport := newFakeTransport()
	router := NewRouter(store, transport, Options{Timeout: time.Second})

	escapesPastLimit := strings.Repeat("<", MaxMessageRunes/3)
	if Fits(escapesPastLimit) {
		t.Fatalf("escaped text over the limit must not fit")
	}
	outcome, err := router.Relay(context.Background(), 1, santa.RoleWard, escapesPastLimit)
	if err != nil || outcome != TooLong {
		t.Fatalf("expected too long, got %s %v", outcome, err)
	}
	if len(transport.messagesFor(2)) != 0 {
		t.Fatalf("overlong text must not be sent")
	}

	longest := strings.Repeat("a", MaxMessageRunes-utf8.RuneCountInString(formatRelay(labelFromSanta, "")))
	if !Fits(longest) {
		t.Fatalf("text filling the message exactly must fit")
	}
	if Fits(longest + "aa") {
		t.Fatalf("text past the limit must not fit")
	}
}

func TestRelayWithoutAssignment(t *testing.T) {
	transport := newFakeTransport()
	router := NewRouter(santa.NewMemoryStore(), transport, Options{})

	outcome, err := router.Relay(context.Background(), 5, santa.RoleSanta, "hello")
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if outcome != NoAssignment {
		t.Fatalf("expected no assignment, got %s", outcome)
	}
	if len(transport.sent) != 0 {
		t.Fatalf("nothing should be sent")
	}
}

func TestRelayDeliveryFailureIsSoft(t *testing.T) {
	store := pairedStore(t)
	transport := newFakeTransport()
	transport.fail[2] = true
	router := NewRouter(store, transport, Options{Timeout: time.Second})

	outcome, err := router.Relay(context.Background(), 1, santa.RoleWard, "hi")
	if err != nil {
		t.Fatalf("delivery failure must not surface as error: %v", err)
	}
	if outcome != DeliveryFailed {
		t.Fatalf("expected delivery failed, got %s", outcome)
	}
}

func TestRelayTimesOutStalledTransport(t *testing.T) {
	store := pairedStore(t)
	transport := newFakeTransport()
	transport.block[2] = true
	router := NewRouter(store, transport, Options{Timeout: 20 * time.Millisecond})

	start := time.Now()
	outcome, _ := router.Relay(context.Background(), 1, santa.RoleWard, "hi")
	if outcome != DeliveryFailed {
		t.Fatalf("expected delivery failed, got %s", outcome)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("relay blocked for %s", elapsed)
	}
}

func TestSendWrapsDeliveryFailed(t *testing.T) {
	transport := newFakeTransport()
	transport.fail[9] = true
	router := NewRouter(santa.NewMemoryStore(), transport, Options{})
	err := router.Send(context.Background(), Message{UserID: 9, Text: "x"})
	if !errors.Is(err, santa.ErrDeliveryFailed) {
		t.Fatalf("expected delivery failed, got %v", err)
	}
}

func TestBroadcastIsolatesFailures(t *testing.T) {
	transport := newFakeTransport()
	transport.fail[3] = true
	transport.block[4] = true
	router := NewRouter(santa.NewMemoryStore(), transport, Options{Timeout: 30 * time.Millisecond, Concurrency: 3})

	var msgs []Message
	for id := int64(1); id <= 8; id++ {
		msgs = append(msgs, Message{UserID: id, Text: "draw done"})
	}
	delivered := router.Broadcast(context.Background(), msgs)
	if delivered != 6 {
		t.Fatalf("expected 6 deliveries, got %d", delivered)
	}
	for _, id := range []int64{1, 2, 5, 6, 7, 8} {
		if len(transport.messagesFor(id)) != 1 {
			t.Fatalf("user %d missed the notice", id)
		}
	}
	if transport.peak > 3 {
		t.Fatalf("concurrency limit exceeded: %d", transport.peak)
	}
}
