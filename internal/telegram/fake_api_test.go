package telegram_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yari4ek89/siverbotv2/internal/circuitbreaker"
	"github.com/yari4ek89/siverbotv2/internal/retry"
	"github.com/yari4ek89/siverbotv2/internal/telegram"
)

const testToken = "123:abc"

type apiCall struct {
	method string
	form   url.Values
}

// markup decodes a JSON-encoded form field such as reply_markup.
func (c apiCall) markup(t *testing.T, field string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(c.form.Get(field)), &out))
	return out
}

type scripted struct {
	status int
	body   string
}

// fakeAPI is a minimal Bot API server. Responses can be scripted per method
// and per chat.
type fakeAPI struct {
	mu        sync.Mutex
	calls     []apiCall
	responses map[string][]scripted
	byChat    map[string]scripted
	updates   []string
	server    *httptest.Server
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()

	f := &fakeAPI{
		responses: make(map[string][]scripted),
		byChat:    make(map[string]scripted),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	method, ok := strings.CutPrefix(r.URL.Path, "/bot"+testToken+"/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	_ = r.ParseMultipartForm(1 << 20)
	form := url.Values{}
	for k, v := range r.Form {
		form[k] = v
	}

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{method: method, form: form})
	resp := scripted{status: http.StatusOK, body: `{"ok":true,"result":true}`}
	switch method {
	case "sendMessage":
		resp.body = `{"ok":true,"result":{"message_id":42,"chat":{"id":1,"type":"private"},"date":0}}`
	case "getUpdates":
		resp.body = `{"ok":true,"result":[]}`
		if len(f.updates) > 0 {
			resp.body = f.updates[0]
			f.updates = f.updates[1:]
		}
	}
	if s, ok := f.byChat[form.Get("chat_id")]; ok {
		resp = s
	}
	if queued := f.responses[method]; len(queued) > 0 {
		resp = queued[0]
		f.responses[method] = queued[1:]
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	_, _ = w.Write([]byte(resp.body))
}

func (f *fakeAPI) script(method string, status int, bodies ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range bodies {
		f.responses[method] = append(f.responses[method], scripted{status: status, body: b})
	}
}

// failChat answers every call addressed to chatID with the given error.
func (f *fakeAPI) failChat(chatID string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byChat[chatID] = scripted{status: status, body: body}
}

func (f *fakeAPI) callsTo(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeAPI) client(t *testing.T) *telegram.Client {
	t.Helper()
	return f.clientWithBreaker(t, circuitbreaker.Config{})
}

func (f *fakeAPI) clientWithBreaker(t *testing.T, breaker circuitbreaker.Config) *telegram.Client {
	t.Helper()

	c, err := telegram.NewClient(f.server.Client(), telegram.Config{
		Token:       testToken,
		BaseURL:     f.server.URL,
		PollTimeout: 2 * time.Second,
		RateLimit:   1000,
		Retry:       retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Breaker:     breaker,
	}, nil, nil)
	require.NoError(t, err)
	return c
}
