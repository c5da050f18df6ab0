package telegram

import (
	"time"

	"github.com/go-telegram/bot/models"
)

func messageBody(m *models.Message) string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

func messageTime(m *models.Message) time.Time {
	return time.Unix(int64(m.Date), 0).UTC()
}

// callbackOrigin returns the chat and message the pressed keyboard is
// attached to. Messages older than 48h arrive as inaccessible stubs.
func callbackOrigin(q *models.CallbackQuery) (chatID int64, messageID int, ok bool) {
	switch {
	case q.Message.Message != nil:
		return q.Message.Message.Chat.ID, q.Message.Message.ID, true
	case q.Message.InaccessibleMessage != nil:
		return q.Message.InaccessibleMessage.Chat.ID, q.Message.InaccessibleMessage.MessageID, true
	default:
		return 0, 0, false
	}
}
