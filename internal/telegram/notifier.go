package telegram

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-telegram/bot/models"

	"github.com/yari4ek89/siverbotv2/internal/domain"
)

// Callback data prefixes of the pending-item keyboard.
const (
	callbackApprove  = "OSINT_APPROVE_"
	callbackReject   = "OSINT_REJECT_"
	callbackOriginal = "OSINT_ORIG_"
	callbackNop      = "OSINT_NOP"
)

// Notifier sends pending items to the operator's private chat.
type Notifier struct {
	client  *Client
	adminID int64
}

// NewNotifier creates a notifier for the given admin user id.
func NewNotifier(client *Client, adminID int64) *Notifier {
	return &Notifier{client: client, adminID: adminID}
}

// NotifyPending sends the item card with approve, reject and original buttons.
func (n *Notifier) NotifyPending(ctx context.Context, item *domain.QueueItem) error {
	if _, err := n.client.SendMessage(ctx, strconv.FormatInt(n.adminID, 10), pendingCard(item), queueKeyboard(item.ID)); err != nil {
		return fmt.Errorf("notify pending #%d: %w", item.ID, err)
	}
	return nil
}

func pendingCard(item *domain.QueueItem) string {
	return fmt.Sprintf("📝 Pending #%d\nFrom: %s\n\n%s", item.ID, sourceHandle(item.Source), item.FormattedText)
}

func sourceHandle(source string) string {
	if source == "" || source[0] == '@' || source[0] == '-' || (source[0] >= '0' && source[0] <= '9') {
		return source
	}
	return "@" + source
}

func queueKeyboard(id int64) *models.InlineKeyboardMarkup {
	sid := strconv.FormatInt(id, 10)
	return &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{
		{
			{Text: "✅ Approve", CallbackData: callbackApprove + sid},
			{Text: "❌ Reject", CallbackData: callbackReject + sid},
		},
		{{Text: "👁 Original", CallbackData: callbackOriginal + sid}},
	}}
}

func decidedKeyboard(label string) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{
		{{Text: label, CallbackData: callbackNop}},
	}}
}
