package telegram

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"secret-santa/internal/conversation"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	minBackoff    = time.Second
	maxBackoff    = 30 * time.Second
	answerTimeout = 5 * time.Second
)

// Submitter accepts events for ordered per-user handling.
type Submitter interface {
	Submit(ev conversation.Event) error
}

// Poller long-polls getUpdates and hands every usable update to the
// dispatcher. It never waits for an event to be handled.
type Poller struct {
	client  *Client
	sink    Submitter
	timeout int
	offset  int
}

func NewPoller(client *Client, sink Submitter, timeoutSeconds int) *Poller {
	return &Poller{client: client, sink: sink, timeout: timeoutSeconds}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, err := p.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := backoff
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				wait = apiErr.RetryAfter
			}
			log.Printf("telegram poll failed retry_in=%s err=%v", wait, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = minBackoff
		p.handle(ctx, updates)
	}
}

func (p *Poller) poll(ctx context.Context) ([]tgbotapi.Update, error) {
	pollCtx, cancel := context.WithTimeout(ctx, time.Duration(p.timeout)*time.Second+10*time.Second)
	defer cancel()
	return p.client.GetUpdates(pollCtx, p.offset, p.timeout)
}

func (p *Poller) handle(ctx context.Context, updates []tgbotapi.Update) {
	for _, update := range updates {
		if update.UpdateID >= p.offset {
			p.offset = update.UpdateID + 1
		}
		if update.CallbackQuery != nil {
			go p.answer(ctx, update.CallbackQuery.ID)
		}
		ev, ok := EventFromUpdate(update)
		if !ok {
			continue
		}
		if err := p.sink.Submit(ev); err != nil {
			log.Printf("telegram update dropped update_id=%d err=%v", update.UpdateID, err)
		}
	}
}

func (p *Poller) answer(ctx context.Context, id string) {
	answerCtx, cancel := context.WithTimeout(ctx, answerTimeout)
	defer cancel()
	if err := p.client.AnswerCallbackQuery(answerCtx, id); err != nil {
		log.Printf("telegram answer callback failed err=%v", err)
	}
}

// EventFromUpdate turns a private text message or a callback query into a
// conversation event. Anything else is ignored.
func EventFromUpdate(update tgbotapi.Update) (conversation.Event, bool) {
	if cb := update.CallbackQuery; cb != nil {
		if cb.Data == "" || cb.From == nil {
			return conversation.Event{}, false
		}
		return conversation.Event{
			UserID:   cb.From.ID,
			Username: cb.From.UserName,
			FullName: fullName(cb.From),
			Kind:     conversation.KindCallback,
			Payload:  cb.Data,
		}, true
	}
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Text == "" {
		return conversation.Event{}, false
	}
	if msg.Chat != nil && msg.Chat.Type != "" && !msg.Chat.IsPrivate() {
		return conversation.Event{}, false
	}
	return conversation.TextEvent(msg.From.ID, msg.From.UserName, fullName(msg.From), msg.Text), true
}

func fullName(u *tgbotapi.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
