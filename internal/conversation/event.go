package conversation

import "strings"

type Kind string

const (
	KindCommand  Kind = "command"
	KindButton   Kind = "button"
	KindText     Kind = "text"
	KindCancel   Kind = "cancel"
	KindCallback Kind = "callback"
)

func (k Kind) Valid() bool {
	switch k {
	case KindCommand, KindButton, KindText, KindCancel, KindCallback:
		return true
	}
	return false
}

// Event is one inbound user action. For commands Payload is the command name
// without the slash, for buttons it is an Intent, for callbacks the callback
// data, and for text the raw message. Text keeps the raw message for every
// kind so it can serve as a payload while a prompt is open.
type Event struct {
	UserID   int64
	Username string
	FullName string
	Kind     Kind
	Payload  string
	Text     string
}

func (e Event) text() string {
	if e.Text != "" {
		return e.Text
	}
	return e.Payload
}

// Intent names what a menu button asks for, independent of its label.
type Intent string

const (
	IntentCreate       Intent = "create"
	IntentJoin         Intent = "join"
	IntentWish         Intent = "wish"
	IntentWardWish     Intent = "ward_wish"
	IntentMessageSanta Intent = "message_santa"
	IntentMessageWard  Intent = "message_ward"
	IntentLeave        Intent = "leave"
	IntentParticipants Intent = "participants"
	IntentDraw         Intent = "draw"
)

// Callback data carried by the gift confirmation prompt.
const (
	CallbackGiftBought = "gift_bought"
	CallbackGiftCancel = "gift_cancel"
)

// TextEvent classifies a raw chat message: slash commands, the cancel button,
// known menu labels, and everything else as free text.
func TextEvent(userID int64, username, fullName, text string) Event {
	ev := Event{UserID: userID, Username: username, FullName: fullName, Kind: KindText, Payload: text, Text: text}
	trimmed := strings.TrimSpace(text)
	if trimmed == LabelCancel {
		ev.Kind = KindCancel
		ev.Payload = ""
		return ev
	}
	if name, ok := commandName(trimmed); ok {
		if name == "cancel" {
			ev.Kind = KindCancel
			ev.Payload = ""
			return ev
		}
		ev.Kind = KindCommand
		ev.Payload = name
		return ev
	}
	if intent, ok := intentByLabel[trimmed]; ok {
		ev.Kind = KindButton
		ev.Payload = string(intent)
	}
	return ev
}

// commandName extracts "draw" from "/draw@santa_bot now".
func commandName(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", false
	}
	name := strings.Fields(text[1:])
	if len(name) == 0 {
		return "", false
	}
	cmd, _, _ := strings.Cut(name[0], "@")
	if cmd == "" {
		return "", false
	}
	return strings.ToLower(cmd), true
}
