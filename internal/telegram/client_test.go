package telegram_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yari4ek89/siverbotv2/internal/circuitbreaker"
	"github.com/yari4ek89/siverbotv2/internal/domain"
	"github.com/yari4ek89/siverbotv2/internal/telegram"
)

const chatNotFound = `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`

func TestClient_Publish(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	require.NoError(t, api.client(t).Publish(context.Background(), "@siver_news", "🛸 БПЛА: Курс на Чернігів."))

	calls := api.callsTo("sendMessage")
	require.Len(t, calls, 1)
	assert.Equal(t, "@siver_news", calls[0].form.Get("chat_id"))
	assert.Equal(t, "🛸 БПЛА: Курс на Чернігів.", calls[0].form.Get("text"))
	assert.Equal(t, true, calls[0].markup(t, "link_preview_options")["is_disabled"])
	assert.Empty(t, calls[0].form.Get("reply_markup"))
}

func TestClient_RetriesFloodControl(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.script("sendMessage", http.StatusTooManyRequests,
		`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 1","parameters":{"retry_after":1}}`)

	require.NoError(t, api.client(t).Publish(context.Background(), "@siver_news", "text"))
	assert.Len(t, api.callsTo("sendMessage"), 2)
}

func TestClient_RetriesServerError(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.script("sendMessage", http.StatusBadGateway, `<html>bad gateway</html>`)

	require.NoError(t, api.client(t).Publish(context.Background(), "@siver_news", "text"))
	assert.Len(t, api.callsTo("sendMessage"), 2)
}

func TestClient_PermanentAPIError(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.script("sendMessage", http.StatusBadRequest, chatNotFound)

	err := api.client(t).Publish(context.Background(), "@nowhere", "text")
	require.ErrorIs(t, err, telegram.ErrAPI)
	assert.Contains(t, err.Error(), "chat not found")
	assert.NotContains(t, err.Error(), testToken)
	assert.Len(t, api.callsTo("sendMessage"), 1)
}

func TestClient_BadDestinationDoesNotOpenBreaker(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.failChat("@mistyped", http.StatusBadRequest, chatNotFound)
	client := api.clientWithBreaker(t, circuitbreaker.Config{FailureThreshold: 2, Timeout: time.Hour})

	for i := 0; i < 5; i++ {
		err := client.Publish(context.Background(), "@mistyped", "text")
		require.ErrorIs(t, err, telegram.ErrAPI)
		require.NotErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	}

	require.NoError(t, client.Publish(context.Background(), "@alerts", "🔴 Чернігівська обл.: повітряна тривога"))
	require.NoError(t, client.AnswerCallbackQuery(context.Background(), "q", ""))
	assert.Len(t, api.callsTo("sendMessage"), 6)
}

func TestClient_ServerErrorsOpenBreaker(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.failChat("@siver_news", http.StatusInternalServerError,
		`{"ok":false,"error_code":500,"description":"Internal Server Error"}`)
	client := api.clientWithBreaker(t, circuitbreaker.Config{FailureThreshold: 2, Timeout: time.Hour})

	for i := 0; i < 2; i++ {
		require.ErrorIs(t, client.Publish(context.Background(), "@siver_news", "text"), telegram.ErrAPI)
	}
	sent := len(api.callsTo("sendMessage"))

	err := client.Publish(context.Background(), "@alerts", "text")
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Len(t, api.callsTo("sendMessage"), sent)
}

func TestClient_ListenDeliversUpdates(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.updates = []string{`{"ok":true,"result":[
		{"update_id":7,"channel_post":{"message_id":1,"chat":{"id":-100,"type":"channel","username":"monitor"},"date":1740823200,"text":"Шахед"}},
		{"update_id":8,"callback_query":{"id":"q1","from":{"id":99},"chat_instance":"1","data":"OSINT_APPROVE_1"}}
	]}`}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan int64, 2)
	go api.client(t).Listen(ctx, func(_ context.Context, u *models.Update) {
		got <- u.ID
	})

	for _, want := range []int64{7, 8} {
		select {
		case id := <-got:
			assert.Equal(t, want, id)
		case <-time.After(2 * time.Second):
			t.Fatalf("update %d not delivered", want)
		}
	}

	require.Eventually(t, func() bool {
		for _, c := range api.callsTo("getUpdates") {
			if c.form.Get("offset") == "9" {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNotifier_NotifyPending(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	n := telegram.NewNotifier(api.client(t), 99)

	err := n.NotifyPending(context.Background(), &domain.QueueItem{ID: 5, Source: "monitor", FormattedText: "🛸 БПЛА: Курс на Чернігів."})
	require.NoError(t, err)

	calls := api.callsTo("sendMessage")
	require.Len(t, calls, 1)
	assert.Equal(t, "99", calls[0].form.Get("chat_id"))
	assert.Equal(t, "📝 Pending #5\nFrom: @monitor\n\n🛸 БПЛА: Курс на Чернігів.", calls[0].form.Get("text"))

	rows, ok := calls[0].markup(t, "reply_markup")["inline_keyboard"].([]any)
	require.True(t, ok)
	require.Len(t, rows, 2)

	var data []string
	for _, row := range rows {
		for _, btn := range row.([]any) {
			data = append(data, btn.(map[string]any)["callback_data"].(string))
		}
	}
	assert.Equal(t, []string{"OSINT_APPROVE_5", "OSINT_REJECT_5", "OSINT_ORIG_5"}, data)
}
