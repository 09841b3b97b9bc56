package conversation

import (
	"context"
	"errors"
	"log"
	"sync"

	"secret-santa/internal/metrics"
	"secret-santa/internal/relay"
)

var ErrDispatcherClosed = errors.New("dispatcher closed")

type Handler interface {
	Handle(ctx context.Context, ev Event) ([]relay.Message, error)
}

// Sender delivers replies to the user who sent the event.
type Sender interface {
	Notify(ctx context.Context, msg relay.Message) error
}

// Dispatcher runs each user's events one at a time in arrival order while
// different users proceed concurrently. A worker goroutine exists only while
// its user has queued events.
type Dispatcher struct {
	ctx     context.Context
	handler Handler
	sender  Sender

	mu     sync.Mutex
	queues map[int64][]Event
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(ctx context.Context, handler Handler, sender Sender) *Dispatcher {
	return &Dispatcher{
		ctx:     ctx,
		handler: handler,
		sender:  sender,
		queues:  make(map[int64][]Event),
	}
}

// Submit queues ev behind the user's earlier events. It never blocks on
// handling.
func (d *Dispatcher) Submit(ev Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	queue, running := d.queues[ev.UserID]
	d.queues[ev.UserID] = append(queue, ev)
	if !running {
		d.wg.Add(1)
		go d.run(ev.UserID)
	}
	return nil
}

func (d *Dispatcher) run(userID int64) {
	defer d.wg.Done()
	for {
		ev, ok := d.next(userID)
		if !ok {
			return
		}
		d.process(ev)
	}
}

func (d *Dispatcher) next(userID int64) (Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	queue := d.queues[userID]
	if len(queue) == 0 {
		delete(d.queues, userID)
		return Event{}, false
	}
	ev := queue[0]
	if len(queue) == 1 {
		d.queues[userID] = queue[:0]
	} else {
		d.queues[userID] = queue[1:]
	}
	return ev, true
}

func (d *Dispatcher) process(ev Event) {
	metrics.Events.WithLabelValues(string(ev.Kind)).Inc()
	replies, err := d.handler.Handle(d.ctx, ev)
	if err != nil {
		log.Printf("event failed user_id=%d kind=%s err=%v", ev.UserID, ev.Kind, err)
		replies = []relay.Message{{UserID: ev.UserID, Text: textFailure, Menu: mainMenu(false, false)}}
	}
	for _, reply := range replies {
		if err := d.sender.Notify(d.ctx, reply); err != nil {
			log.Printf("reply dropped user_id=%d err=%v", reply.UserID, err)
		}
	}
}

// Close stops accepting events and waits until queued ones are handled or
// ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
