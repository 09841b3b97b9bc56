package telegram

import (
	"context"

	"secret-santa/internal/relay"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Transport delivers relay messages as Telegram chat messages. In a private
// chat the chat id equals the user id.
type Transport struct {
	client *Client
}

var _ relay.Transport = (*Transport)(nil)

func NewTransport(client *Client) *Transport {
	return &Transport{client: client}
}

func (t *Transport) Send(ctx context.Context, msg relay.Message) error {
	return t.client.SendMessage(ctx, sendRequest(msg))
}

// sendRequest maps a message to sendMessage. A confirmation prompt replaces
// the menu since Telegram allows one markup per message.
func sendRequest(msg relay.Message) tgbotapi.MessageConfig {
	req := tgbotapi.NewMessage(msg.UserID, msg.Text)
	if msg.HTML {
		req.ParseMode = tgbotapi.ModeHTML
	}
	switch {
	case msg.Confirm != nil:
		req.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(msg.Confirm.AcceptLabel, msg.Confirm.AcceptData),
			tgbotapi.NewInlineKeyboardButtonData(msg.Confirm.CancelLabel, msg.Confirm.CancelData),
		))
	case len(msg.Menu) > 0:
		rows := make([][]tgbotapi.KeyboardButton, 0, len(msg.Menu))
		for _, labels := range msg.Menu {
			row := make([]tgbotapi.KeyboardButton, 0, len(labels))
			for _, label := range labels {
				row = append(row, tgbotapi.NewKeyboardButton(label))
			}
			rows = append(rows, row)
		}
		req.ReplyMarkup = tgbotapi.NewReplyKeyboard(rows...)
	}
	return req
}
