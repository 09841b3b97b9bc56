// Package relay delivers anonymous messages between a participant and their
// Santa or Ward, and best-effort system notices.
package relay

import (
	"context"
	"fmt"
	"html"
	"log"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"secret-santa/internal/metrics"
	"secret-santa/internal/santa"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Message is one outbound chat message. Menu rows render as a persistent
// keyboard; Confirm renders as an accept/cancel prompt attached to the text.
type Message struct {
	UserID  int64
	Text    string
	HTML    bool
	Menu    [][]string
	Confirm *Confirm
}

type Confirm struct {
	AcceptLabel string
	AcceptData  string
	CancelLabel string
	CancelData  string
}

// Transport is the chat platform's "deliver text to identity" capability.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

type Outcome int

const (
	Delivered Outcome = iota + 1
	NoAssignment
	DeliveryFailed
	TooLong
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case NoAssignment:
		return "no_assignment"
	case DeliveryFailed:
		return "delivery_failed"
	case TooLong:
		return "too_long"
	default:
		return "unknown"
	}
}

const (
	labelFromWard  = "📬 Your ward sent you a message:"
	labelFromSanta = "🎅 Your Santa sent you a message:"
)

// MaxMessageRunes is the chat platform's limit for one message.
const MaxMessageRunes = 4096

func formatRelay(label, text string) string {
	return label + "\n\n<i>" + html.EscapeString(text) + "</i>"
}

// Fits reports whether text still fits in one message once it is escaped
// and labelled.
func Fits(text string) bool {
	for _, label := range []string{labelFromWard, labelFromSanta} {
		if utf8.RuneCountInString(formatRelay(label, text)) > MaxMessageRunes {
			return false
		}
	}
	return true
}

type Options struct {
	Timeout     time.Duration
	Concurrency int
}

type Router struct {
	store       santa.Store
	transport   Transport
	timeout     time.Duration
	concurrency int
}

func NewRouter(store santa.Store, transport Transport, opts Options) *Router {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Router{
		store:       store,
		transport:   transport,
		timeout:     opts.Timeout,
		concurrency: opts.Concurrency,
	}
}

// Relay forwards text from senderID to their counterpart in role. The
// delivered payload only carries a role label and the text. The returned
// error is reserved for storage failures.
func (r *Router) Relay(ctx context.Context, senderID int64, role santa.Role, text string) (Outcome, error) {
	var (
		targetID *int64
		err      error
		label    string
	)
	switch role {
	case santa.RoleSanta:
		targetID, err = r.store.SantaID(ctx, senderID)
		label = labelFromWard
	case santa.RoleWard:
		targetID, err = r.store.WardID(ctx, senderID)
		label = labelFromSanta
	default:
		return NoAssignment, fmt.Errorf("unknown role %d", role)
	}
	if !Fits(text) {
		metrics.Relays.WithLabelValues(role.String(), TooLong.String()).Inc()
		return TooLong, nil
	}
	if err != nil {
		return NoAssignment, fmt.Errorf("resolve %s: %w", role, err)
	}
	if targetID == nil {
		metrics.Relays.WithLabelValues(role.String(), NoAssignment.String()).Inc()
		return NoAssignment, nil
	}

	messageID := uuid.NewString()
	msg := Message{
		UserID: *targetID,
		Text:   formatRelay(label, text),
		HTML:   true,
	}
	if err := r.Send(ctx, msg); err != nil {
		metrics.Relays.WithLabelValues(role.String(), DeliveryFailed.String()).Inc()
		log.Printf("relay failed message_id=%s role=%s err=%v", messageID, role, err)
		return DeliveryFailed, nil
	}
	metrics.Relays.WithLabelValues(role.String(), Delivered.String()).Inc()
	log.Printf("relay delivered message_id=%s role=%s", messageID, role)
	return Delivered, nil
}

// Send delivers msg within the router's timeout. Failures are wrapped in
// santa.ErrDeliveryFailed; nothing is retried or queued.
func (r *Router) Send(ctx context.Context, msg Message) error {
	sendCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.transport.Send(sendCtx, msg); err != nil {
		return fmt.Errorf("%w: %v", santa.ErrDeliveryFailed, err)
	}
	return nil
}

// Notify sends a system notice and records its outcome.
func (r *Router) Notify(ctx context.Context, msg Message) error {
	if err := r.Send(ctx, msg); err != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
		log.Printf("notify failed user_id=%d err=%v", msg.UserID, err)
		return err
	}
	metrics.Notifications.WithLabelValues("delivered").Inc()
	return nil
}

// Broadcast notifies every recipient concurrently. A failure for one recipient
// does not affect the others. It returns how many were delivered.
func (r *Router) Broadcast(ctx context.Context, msgs []Message) int {
	var delivered atomic.Int64
	var group errgroup.Group
	group.SetLimit(r.concurrency)
	for _, msg := range msgs {
		group.Go(func() error {
			if err := r.Notify(ctx, msg); err == nil {
				delivered.Add(1)
			}
			return nil
		})
	}
	_ = group.Wait()
	return int(delivered.Load())
}
