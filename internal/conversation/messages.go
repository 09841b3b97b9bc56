package conversation

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"secret-santa/internal/relay"
	"secret-santa/internal/santa"
)

const maxMessageRunes = relay.MaxMessageRunes

const textListCut = "..."

const (
	textWelcome        = "🎄 Welcome to Secret Santa!"
	textCancelled      = "Cancelled."
	textUnknownCommand = "Unknown command. Use the menu below."
	textUseMenu        = "Pick an action from the menu below."
	textFailure        = "⚠️ Something went wrong. Please try again."

	textAskGameCode = "Enter the game code:"
	textJoined      = "✅ You joined the game!\n\nNow press 🎁 <b>My wish</b> in the menu and tell your Santa what you would like."
	textJoinRefused = "❌ You are already in a game or the code is wrong."

	textAskWish   = "Write what you would like to get as a gift:"
	textWishSaved = "✅ Your wish is saved!"
	textNotMember = "❌ You are not in any game yet. Join one first."

	textAskMessageSanta = "Write a message to your Santa:"
	textAskMessageWard  = "Write a message to your ward:"
	textSentToSanta     = "✅ Message sent to your Santa!"
	textSentToWard      = "✅ Message sent to your ward!"
	textNotDelivered    = "⚠️ Could not deliver the message."
	textEmptyMessage    = "❌ The message is empty, nothing was sent."
	textMessageTooLong  = "❌ The message is too long, nothing was sent. Please split it into shorter parts."

	textDrawNotRun        = "❌ The draw has not been run yet."
	textDrawNotRunCreator = "❌ The draw has not been run yet. You created this game: press 🎲 <b>Run draw</b> once everyone has joined."
	textLookupFailed      = "⚠️ The draw was run but your pairing could not be found. Please contact the game creator."

	textLeft           = "✅ You left the game."
	textNotInGame      = "❌ You are not in any game."
	textSantaLeft      = "⚠️ Your Santa left the game, so nobody is assigned to give you a gift any more."
	textWardLeft       = "⚠️ Your ward left the game. Your assignment is cancelled."
	textCreatorOnly    = "❌ Only the game creator can do this."
	textNoParticipants = "📭 Nobody has joined the game yet."

	textDrawAlreadyDone = "✅ The draw has already been run!"
	textNotEnough       = "❌ Not enough participants (at least 3 are needed)."
	textDrawFailed      = "⚠️ The draw could not find a valid pairing. Please try again."

	textGiftNotified      = "✅ Great! Your ward has been notified."
	textGiftSavedNoNotify = "✅ Saved, but your ward could not be notified right now."
	textGiftNoWard        = "❌ Your ward could not be found."
	textGiftCancel        = "↩️ Back to the main menu."
	textGiftBoughtNotice  = "🎅 <b>Good news!</b>\n\nYour Santa has already bought your gift! 🎁\nNow just wait for the exchange."
	textUnknownAction     = "Unknown action."
)

func textGameCreated(code string, joined bool) string {
	msg := fmt.Sprintf("✅ Game created! Code for participants:\n\n<b>%s</b>\n\nShare this code so your friends can join.", html.EscapeString(code))
	if !joined {
		msg += "\n\nYou are still in another game, so you are not a participant of this one."
	}
	return msg
}

func wishOrDefault(wish, fallback string) string {
	wish = strings.TrimSpace(wish)
	if wish == "" {
		return fallback
	}
	return wish
}

func textWardWish(ward santa.Participant) string {
	return fmt.Sprintf("🧸 Your ward: <b>%s</b>\n\nWishes for:\n<i>%s</i>\n\nHave you already bought the gift?",
		html.EscapeString(ward.DisplayName()),
		html.EscapeString(wishOrDefault(ward.Wish, "no wish given.")))
}

func textAssignment(ward santa.Participant) string {
	return fmt.Sprintf("🎅 <b>The draw is done!</b>\n\nYour ward: <b>%s</b>\n\n🎁 Wishes:\n<i>%s</i>",
		html.EscapeString(ward.DisplayName()),
		html.EscapeString(wishOrDefault(ward.Wish, "no wish given.")))
}

func textDrawDone(delivered, total int) string {
	return fmt.Sprintf("✅ The draw is done! %d of %d participants were notified.", delivered, total)
}

// textParticipants lists every participant and their wish. Entries are
// escaped first and dropped whole once the message limit is reached, so the
// cut never splits an HTML entity.
func textParticipants(code string, members []santa.Participant) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 Participants of game <b>%s</b>:\n\n", html.EscapeString(code))
	used := utf8.RuneCountInString(b.String())
	for i, p := range members {
		name := p.FullName
		if name == "" {
			name = "No name"
		}
		if p.Username != "" {
			name += " (@" + p.Username + ")"
		}
		entry := fmt.Sprintf("• %s\n  🎁 %s\n\n", html.EscapeString(name), html.EscapeString(wishOrDefault(p.Wish, "not given")))
		size := utf8.RuneCountInString(entry)
		budget := maxMessageRunes
		if i < len(members)-1 {
			budget -= utf8.RuneCountInString(textListCut)
		}
		if used+size > budget {
			b.WriteString(textListCut)
			break
		}
		b.WriteString(entry)
		used += size
	}
	return b.String()
}

func textNoAssignment(cause santa.NoAssignmentCause, isCreator bool) string {
	switch cause {
	case santa.CauseNotMember:
		return textNotMember
	case santa.CauseDrawNotRun:
		if isCreator {
			return textDrawNotRunCreator
		}
		return textDrawNotRun
	default:
		return textLookupFailed
	}
}
