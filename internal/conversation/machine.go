package conversation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"
	"time"

	"secret-santa/internal/draw"
	"secret-santa/internal/metrics"
	"secret-santa/internal/relay"
	"secret-santa/internal/santa"
)

// Drawer runs the one-time draw of a game.
type Drawer interface {
	Assign(ctx context.Context, code string) (draw.Result, error)
}

// Messenger reaches users other than the one whose event is being handled.
type Messenger interface {
	Relay(ctx context.Context, senderID int64, role santa.Role, text string) (relay.Outcome, error)
	Notify(ctx context.Context, msg relay.Message) error
	Broadcast(ctx context.Context, msgs []relay.Message) int
}

const (
	gameCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	gameCodeLength   = 6
	maxCodeAttempts  = 5
)

// NewGameCode returns a random code without look-alike characters.
func NewGameCode() string {
	b := make([]byte, gameCodeLength)
	for i := range b {
		b[i] = gameCodeAlphabet[rand.IntN(len(gameCodeAlphabet))]
	}
	return string(b)
}

type Machine struct {
	store     santa.Store
	states    StateStore
	drawer    Drawer
	messenger Messenger
	newCode   func() string
	onEvent   func(santa.GameEvent)
}

type Option func(*Machine)

func WithCodeGenerator(gen func() string) Option {
	return func(m *Machine) {
		m.newCode = gen
	}
}

// WithGameEvents registers a callback for game lifecycle events.
func WithGameEvents(fn func(santa.GameEvent)) Option {
	return func(m *Machine) {
		m.onEvent = fn
	}
}

func NewMachine(store santa.Store, states StateStore, drawer Drawer, messenger Messenger, opts ...Option) *Machine {
	m := &Machine{
		store:     store,
		states:    states,
		drawer:    drawer,
		messenger: messenger,
		newCode:   NewGameCode,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handle applies ev to the sender's conversation and returns the replies for
// the sender. Messages for other users are delivered directly.
func (m *Machine) Handle(ctx context.Context, ev Event) ([]relay.Message, error) {
	state, err := m.states.Get(ctx, ev.UserID)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	switch ev.Kind {
	case KindCancel:
		if err := m.setState(ctx, ev.UserID, Idle); err != nil {
			return nil, err
		}
		return m.reply(ctx, ev.UserID, textCancelled), nil
	case KindCallback:
		return m.handleCallback(ctx, ev)
	}

	switch state {
	case AwaitingGameCode:
		return m.finishJoin(ctx, ev)
	case AwaitingWish:
		return m.finishWish(ctx, ev)
	case AwaitingMessageToSanta:
		return m.finishRelay(ctx, ev, santa.RoleSanta)
	case AwaitingMessageToWard:
		return m.finishRelay(ctx, ev, santa.RoleWard)
	}

	switch ev.Kind {
	case KindCommand:
		return m.handleCommand(ctx, ev)
	case KindButton:
		return m.handleIntent(ctx, ev, Intent(ev.Payload))
	default:
		return m.reply(ctx, ev.UserID, textUseMenu), nil
	}
}

func (m *Machine) handleCommand(ctx context.Context, ev Event) ([]relay.Message, error) {
	switch ev.Payload {
	case "start", "help":
		return m.reply(ctx, ev.UserID, textWelcome), nil
	case "draw":
		return m.handleIntent(ctx, ev, IntentDraw)
	case "leave":
		return m.handleIntent(ctx, ev, IntentLeave)
	case "join":
		return m.handleIntent(ctx, ev, IntentJoin)
	case "wish":
		return m.handleIntent(ctx, ev, IntentWish)
	default:
		return m.reply(ctx, ev.UserID, textUnknownCommand), nil
	}
}

func (m *Machine) handleIntent(ctx context.Context, ev Event, intent Intent) ([]relay.Message, error) {
	switch intent {
	case IntentCreate:
		return m.createGame(ctx, ev)
	case IntentJoin:
		return m.prompt(ctx, ev.UserID, AwaitingGameCode, textAskGameCode)
	case IntentWish:
		return m.prompt(ctx, ev.UserID, AwaitingWish, textAskWish)
	case IntentWardWish:
		return m.showWardWish(ctx, ev.UserID)
	case IntentMessageSanta:
		return m.startRelay(ctx, ev.UserID, santa.RoleSanta)
	case IntentMessageWard:
		return m.startRelay(ctx, ev.UserID, santa.RoleWard)
	case IntentLeave:
		return m.leave(ctx, ev.UserID)
	case IntentParticipants:
		return m.listParticipants(ctx, ev.UserID)
	case IntentDraw:
		return m.runDraw(ctx, ev.UserID)
	default:
		return m.reply(ctx, ev.UserID, textUseMenu), nil
	}
}

func (m *Machine) prompt(ctx context.Context, userID int64, next State, text string) ([]relay.Message, error) {
	if err := m.setState(ctx, userID, next); err != nil {
		return nil, err
	}
	return []relay.Message{{UserID: userID, Text: text, HTML: true, Menu: cancelMenu}}, nil
}

func (m *Machine) createGame(ctx context.Context, ev Event) ([]relay.Message, error) {
	var code string
	for attempt := 0; attempt < maxCodeAttempts && code == ""; attempt++ {
		candidate := m.newCode()
		_, err := m.store.Game(ctx, candidate)
		switch {
		case errors.Is(err, santa.ErrGameNotFound):
			code = candidate
		case err != nil:
			return nil, fmt.Errorf("check game code: %w", err)
		}
	}
	if code == "" {
		return nil, errors.New("no free game code")
	}
	if err := m.store.CreateGame(ctx, code, ev.UserID); err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}
	log.Printf("game created game=%s creator_id=%d", code, ev.UserID)
	m.emit(santa.GameEvent{Type: santa.EventGameCreated, GameCode: code, UserID: ev.UserID})

	joined := true
	if err := m.store.JoinGame(ctx, ev.UserID, ev.Username, ev.FullName, code); err != nil {
		if !errors.Is(err, santa.ErrAlreadyMember) {
			return nil, fmt.Errorf("join own game: %w", err)
		}
		joined = false
	} else {
		m.emitJoined(ctx, code, ev.UserID)
	}
	return m.reply(ctx, ev.UserID, textGameCreated(code, joined)), nil
}

func (m *Machine) finishJoin(ctx context.Context, ev Event) ([]relay.Message, error) {
	if err := m.setState(ctx, ev.UserID, Idle); err != nil {
		return nil, err
	}
	code := strings.ToUpper(strings.TrimSpace(ev.text()))
	err := m.store.JoinGame(ctx, ev.UserID, ev.Username, ev.FullName, code)
	switch {
	case errors.Is(err, santa.ErrAlreadyMember), errors.Is(err, santa.ErrUnknownGameCode):
		log.Printf("join refused user_id=%d game=%s reason=%v", ev.UserID, code, err)
		return m.reply(ctx, ev.UserID, textJoinRefused), nil
	case err != nil:
		return nil, fmt.Errorf("join game: %w", err)
	}
	log.Printf("participant joined user_id=%d game=%s", ev.UserID, code)
	m.emitJoined(ctx, code, ev.UserID)
	return m.reply(ctx, ev.UserID, textJoined), nil
}

func (m *Machine) finishWish(ctx context.Context, ev Event) ([]relay.Message, error) {
	if err := m.setState(ctx, ev.UserID, Idle); err != nil {
		return nil, err
	}
	err := m.store.SetWish(ctx, ev.UserID, ev.text())
	switch {
	case errors.Is(err, santa.ErrNotMember):
		return m.reply(ctx, ev.UserID, textNotMember), nil
	case err != nil:
		return nil, fmt.Errorf("set wish: %w", err)
	}
	return m.reply(ctx, ev.UserID, textWishSaved), nil
}

func (m *Machine) startRelay(ctx context.Context, userID int64, role santa.Role) ([]relay.Message, error) {
	var (
		target *int64
		err    error
	)
	if role == santa.RoleSanta {
		target, err = m.store.SantaID(ctx, userID)
	} else {
		target, err = m.store.WardID(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", role, err)
	}
	if target == nil {
		return m.explainMissing(ctx, userID, role)
	}
	if role == santa.RoleSanta {
		return m.prompt(ctx, userID, AwaitingMessageToSanta, textAskMessageSanta)
	}
	return m.prompt(ctx, userID, AwaitingMessageToWard, textAskMessageWard)
}

func (m *Machine) finishRelay(ctx context.Context, ev Event, role santa.Role) ([]relay.Message, error) {
	if err := m.setState(ctx, ev.UserID, Idle); err != nil {
		return nil, err
	}
	text := ev.text()
	if strings.TrimSpace(text) == "" {
		return m.reply(ctx, ev.UserID, textEmptyMessage), nil
	}
	if !relay.Fits(text) {
		return m.reply(ctx, ev.UserID, textMessageTooLong), nil
	}
	outcome, err := m.messenger.Relay(ctx, ev.UserID, role, text)
	if err != nil {
		return nil, fmt.Errorf("relay to %s: %w", role, err)
	}
	switch outcome {
	case relay.Delivered:
		if role == santa.RoleSanta {
			return m.reply(ctx, ev.UserID, textSentToSanta), nil
		}
		return m.reply(ctx, ev.UserID, textSentToWard), nil
	case relay.NoAssignment:
		return m.explainMissing(ctx, ev.UserID, role)
	case relay.TooLong:
		return m.reply(ctx, ev.UserID, textMessageTooLong), nil
	default:
		return m.reply(ctx, ev.UserID, textNotDelivered), nil
	}
}

// explainMissing tells the user why there is no counterpart in role.
func (m *Machine) explainMissing(ctx context.Context, userID int64, role santa.Role) ([]relay.Message, error) {
	missing, err := santa.ExplainMissing(ctx, m.store, userID, role)
	if err != nil {
		return nil, fmt.Errorf("explain missing %s: %w", role, err)
	}
	isCreator := false
	switch missing.Cause {
	case santa.CauseDrawNotRun:
		isCreator, err = m.store.IsCreator(ctx, userID, missing.GameCode)
		if err != nil {
			return nil, fmt.Errorf("check creator: %w", err)
		}
	case santa.CauseLookupFailed:
		log.Printf("pairing lookup failed after draw user_id=%d game=%s role=%s", userID, missing.GameCode, role)
	}
	return m.reply(ctx, userID, textNoAssignment(missing.Cause, isCreator)), nil
}

func (m *Machine) showWardWish(ctx context.Context, userID int64) ([]relay.Message, error) {
	wardID, err := m.store.WardID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve ward: %w", err)
	}
	if wardID == nil {
		return m.explainMissing(ctx, userID, santa.RoleWard)
	}
	ward, err := m.store.Participant(ctx, *wardID)
	if errors.Is(err, santa.ErrNotMember) {
		log.Printf("ward row missing user_id=%d ward_id=%d", userID, *wardID)
		return m.reply(ctx, userID, textLookupFailed), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load ward: %w", err)
	}
	return []relay.Message{{
		UserID: userID,
		Text:   textWardWish(ward),
		HTML:   true,
		Confirm: &relay.Confirm{
			AcceptLabel: "✅ Yes",
			AcceptData:  CallbackGiftBought,
			CancelLabel: LabelCancel,
			CancelData:  CallbackGiftCancel,
		},
	}}, nil
}

func (m *Machine) handleCallback(ctx context.Context, ev Event) ([]relay.Message, error) {
	switch ev.Payload {
	case CallbackGiftBought:
		return m.giftBought(ctx, ev.UserID)
	case CallbackGiftCancel:
		return m.reply(ctx, ev.UserID, textGiftCancel), nil
	default:
		return m.reply(ctx, ev.UserID, textUnknownAction), nil
	}
}

func (m *Machine) giftBought(ctx context.Context, userID int64) ([]relay.Message, error) {
	wardID, err := m.store.WardID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve ward: %w", err)
	}
	if wardID == nil {
		return m.reply(ctx, userID, textGiftNoWard), nil
	}
	if err := m.store.MarkGiftBought(ctx, userID); err != nil {
		return nil, fmt.Errorf("mark gift bought: %w", err)
	}
	if err := m.messenger.Notify(ctx, relay.Message{UserID: *wardID, Text: textGiftBoughtNotice, HTML: true}); err != nil {
		return m.reply(ctx, userID, textGiftSavedNoNotify), nil
	}
	return m.reply(ctx, userID, textGiftNotified), nil
}

func (m *Machine) leave(ctx context.Context, userID int64) ([]relay.Message, error) {
	result, err := m.store.Leave(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("leave: %w", err)
	}
	if !result.Existed {
		return m.reply(ctx, userID, textNotInGame), nil
	}
	log.Printf("participant left user_id=%d game=%s", userID, result.GameCode)
	m.emit(santa.GameEvent{Type: santa.EventParticipantLeft, GameCode: result.GameCode, UserID: userID})

	var notices []relay.Message
	if result.FormerSanta != nil {
		notices = append(notices, relay.Message{UserID: *result.FormerSanta, Text: textWardLeft})
	}
	if result.FormerWard != nil {
		notices = append(notices, relay.Message{UserID: *result.FormerWard, Text: textSantaLeft})
	}
	if len(notices) > 0 {
		metrics.InvalidatedAssignments.Add(float64(len(notices)))
		log.Printf("assignment invalidated game=%s left_user_id=%d counterparts=%d", result.GameCode, userID, len(notices))
		m.emit(santa.GameEvent{Type: santa.EventAssignmentInvalidated, GameCode: result.GameCode, UserID: userID, Count: len(notices)})
		m.messenger.Broadcast(ctx, notices)
	}
	return m.reply(ctx, userID, textLeft), nil
}

// creatorGame finds the game userID manages: the game they are in when they
// created it, otherwise the latest game they created.
func (m *Machine) creatorGame(ctx context.Context, userID int64) (string, bool, error) {
	code, member, err := m.store.GameCodeForUser(ctx, userID)
	if err != nil {
		return "", false, err
	}
	if member {
		isCreator, err := m.store.IsCreator(ctx, userID, code)
		if err != nil {
			return "", false, err
		}
		if isCreator {
			return code, true, nil
		}
	}
	game, err := m.store.LatestGameByCreator(ctx, userID)
	if errors.Is(err, santa.ErrGameNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return game.Code, true, nil
}

func (m *Machine) listParticipants(ctx context.Context, userID int64) ([]relay.Message, error) {
	code, ok, err := m.creatorGame(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find creator game: %w", err)
	}
	if !ok {
		return m.reply(ctx, userID, textCreatorOnly), nil
	}
	members, err := m.store.Participants(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	if len(members) == 0 {
		return m.reply(ctx, userID, textNoParticipants), nil
	}
	return m.reply(ctx, userID, textParticipants(code, members)), nil
}

func (m *Machine) runDraw(ctx context.Context, userID int64) ([]relay.Message, error) {
	code, ok, err := m.creatorGame(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find creator game: %w", err)
	}
	if !ok {
		return m.reply(ctx, userID, textCreatorOnly), nil
	}
	done, err := m.store.IsDrawDone(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("check draw: %w", err)
	}
	if done {
		return m.reply(ctx, userID, textDrawAlreadyDone), nil
	}

	result, err := m.drawer.Assign(ctx, code)
	switch {
	case errors.Is(err, santa.ErrAlreadyDone):
		return m.reply(ctx, userID, textDrawAlreadyDone), nil
	case errors.Is(err, santa.ErrInsufficientParticipants):
		return m.reply(ctx, userID, textNotEnough), nil
	case errors.Is(err, santa.ErrAssignmentFailed):
		return m.reply(ctx, userID, textDrawFailed), nil
	case err != nil:
		return nil, fmt.Errorf("draw: %w", err)
	}
	m.emit(santa.GameEvent{Type: santa.EventDrawCompleted, GameCode: code, UserID: userID, Count: len(result.Pairs)})

	members, err := m.store.Participants(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	byID := make(map[int64]santa.Participant, len(members))
	for _, p := range members {
		byID[p.UserID] = p
	}
	notices := make([]relay.Message, 0, len(result.Pairs))
	for santaID, wardID := range result.Pairs {
		ward, ok := byID[wardID]
		if !ok {
			continue
		}
		notices = append(notices, relay.Message{UserID: santaID, Text: textAssignment(ward), HTML: true})
	}
	delivered := m.messenger.Broadcast(ctx, notices)
	log.Printf("draw notices sent game=%s delivered=%d total=%d", code, delivered, len(notices))
	return m.reply(ctx, userID, textDrawDone(delivered, len(result.Pairs))), nil
}

func (m *Machine) emitJoined(ctx context.Context, code string, userID int64) {
	count := 0
	if ids, err := m.store.ListParticipants(ctx, code); err == nil {
		count = len(ids)
	}
	m.emit(santa.GameEvent{Type: santa.EventParticipantJoined, GameCode: code, UserID: userID, Count: count})
}

func (m *Machine) emit(ev santa.GameEvent) {
	if m.onEvent == nil {
		return
	}
	ev.At = time.Now().UTC()
	m.onEvent(ev)
}

func (m *Machine) setState(ctx context.Context, userID int64, state State) error {
	if err := m.states.Set(ctx, userID, state); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// reply wraps text with the user's current menu.
func (m *Machine) reply(ctx context.Context, userID int64, text string) []relay.Message {
	return []relay.Message{{UserID: userID, Text: text, HTML: true, Menu: m.menuFor(ctx, userID)}}
}

func (m *Machine) menuFor(ctx context.Context, userID int64) [][]string {
	code, isCreator, err := m.creatorGame(ctx, userID)
	if err != nil {
		log.Printf("menu lookup failed user_id=%d err=%v", userID, err)
		return mainMenu(false, false)
	}
	if !isCreator {
		return mainMenu(false, false)
	}
	done, err := m.store.IsDrawDone(ctx, code)
	if err != nil {
		log.Printf("menu lookup failed user_id=%d err=%v", userID, err)
		return mainMenu(false, false)
	}
	return mainMenu(true, done)
}
