package telegram_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yari4ek89/siverbotv2/internal/domain"
	"github.com/yari4ek89/siverbotv2/internal/pipeline"
	"github.com/yari4ek89/siverbotv2/internal/telegram"
)

const adminID = 99

type fakeOperator struct {
	approveErr error
	approved   []int64
	rejected   []int64
	originals  map[int64]string
}

func (o *fakeOperator) Approve(_ context.Context, id int64) (*domain.QueueItem, error) {
	if o.approveErr != nil {
		return nil, o.approveErr
	}
	o.approved = append(o.approved, id)
	return &domain.QueueItem{ID: id, Status: domain.StatusApproved}, nil
}

func (o *fakeOperator) Reject(_ context.Context, id int64) (*domain.QueueItem, error) {
	o.rejected = append(o.rejected, id)
	return &domain.QueueItem{ID: id, Status: domain.StatusRejected}, nil
}

func (o *fakeOperator) Original(_ context.Context, id int64) (string, error) {
	raw, ok := o.originals[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	return raw, nil
}

type fakeIngest struct {
	mu      sync.Mutex
	inbound []pipeline.Inbound
}

func (i *fakeIngest) Handle(_ context.Context, in pipeline.Inbound) (pipeline.Decision, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.inbound = append(i.inbound, in)
	return pipeline.Decision{}, nil
}

type memSettings struct {
	settings domain.Settings
}

func (s *memSettings) Get(context.Context) (domain.Settings, error) {
	return s.settings, nil
}

func (s *memSettings) Patch(_ context.Context, p domain.SettingsPatch) (domain.Settings, error) {
	if err := p.Validate(); err != nil {
		return domain.Settings{}, err
	}
	s.settings = p.Apply(s.settings)
	return s.settings, nil
}

type memSources struct {
	names []string
}

func (s *memSources) List(context.Context) ([]string, error) { return s.names, nil }

func (s *memSources) Add(_ context.Context, raw string) (string, error) {
	name, err := domain.NormalizeSource(raw)
	if err != nil {
		return "", err
	}
	for _, n := range s.names {
		if n == name {
			return name, domain.ErrAlreadyExists
		}
	}
	s.names = append(s.names, name)
	return name, nil
}

func (s *memSources) Remove(_ context.Context, raw string) error {
	name, err := domain.NormalizeSource(raw)
	if err != nil {
		return err
	}
	for i, n := range s.names {
		if n == name {
			s.names = append(s.names[:i], s.names[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

type memPending struct {
	items []*domain.QueueItem
}

func (p *memPending) ListPending(context.Context, int) ([]*domain.QueueItem, error) { return p.items, nil }
func (p *memPending) CountPending(context.Context) (int, error)                    { return len(p.items), nil }

type botFixture struct {
	api      *fakeAPI
	bot      *telegram.Bot
	operator *fakeOperator
	ingest   *fakeIngest
	settings *memSettings
	sources  *memSources
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()

	f := &botFixture{
		api:      newFakeAPI(t),
		operator: &fakeOperator{originals: map[int64]string{3: "UPD: Шахед курс на Чернігів"}},
		ingest:   &fakeIngest{},
		settings: &memSettings{settings: domain.Settings{
			Mode:           domain.ModeManual,
			AllowedRegions: []domain.RegionID{domain.RegionChernihiv},
		}},
		sources: &memSources{names: []string{"monitor"}},
	}
	f.bot = telegram.NewBot(telegram.BotConfig{
		Client:   f.api.client(t),
		AdminID:  adminID,
		Operator: f.operator,
		Ingest:   f.ingest,
		Settings: f.settings,
		Sources:  f.sources,
		Queue:    &memPending{items: []*domain.QueueItem{{ID: 4, Source: "monitor", FormattedText: "🛸 БПЛА: Курс на Чернігів."}}},
	})
	return f
}

func (f *botFixture) command(text string) string {
	f.bot.HandleUpdate(context.Background(), &models.Update{Message: &models.Message{
		ID:   1,
		From: &models.User{ID: adminID},
		Chat: models.Chat{ID: adminID, Type: "private"},
		Text: text,
	}})
	calls := f.api.callsTo("sendMessage")
	if len(calls) == 0 {
		return ""
	}
	return calls[len(calls)-1].form.Get("text")
}

func (f *botFixture) press(from int64, data string) {
	f.bot.HandleUpdate(context.Background(), &models.Update{CallbackQuery: &models.CallbackQuery{
		ID:   "q",
		From: models.User{ID: from},
		Data: data,
		Message: models.MaybeInaccessibleMessage{
			Message: &models.Message{ID: 77, Chat: models.Chat{ID: adminID}},
		},
	}})
}

func lastAnswer(t *testing.T, api *fakeAPI) string {
	t.Helper()
	calls := api.callsTo("answerCallbackQuery")
	require.NotEmpty(t, calls)
	return calls[len(calls)-1].form.Get("text")
}

func TestBot_ApproveCallback(t *testing.T) {
	t.Parallel()

	f := newBotFixture(t)
	f.press(adminID, "OSINT_APPROVE_3")

	assert.Equal(t, []int64{3}, f.operator.approved)
	assert.Equal(t, "Опубліковано", lastAnswer(t, f.api))

	edits := f.api.callsTo("editMessageReplyMarkup")
	require.Len(t, edits, 1)
	assert.Equal(t, "77", edits[0].form.Get("message_id"))
	assert.Equal(t, "99", edits[0].form.Get("chat_id"))
}

func TestBot_ApproveCallbackErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		answer string
		reply  bool
	}{
		{name: "already decided", err: domain.ErrNotPending, answer: "Немає в черзі"},
		{name: "unknown id", err: domain.ErrNotFound, answer: "Немає в черзі"},
		{name: "no target", err: domain.ErrNoTarget, answer: "Target не задан", reply: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newBotFixture(t)
			f.operator.approveErr = tt.err
			f.press(adminID, "OSINT_APPROVE_3")

			assert.Equal(t, tt.answer, lastAnswer(t, f.api))
			assert.Empty(t, f.api.callsTo("editMessageReplyMarkup"))
			assert.Equal(t, tt.reply, len(f.api.callsTo("sendMessage")) == 1)
		})
	}
}

func TestBot_RejectAndOriginal(t *testing.T) {
	t.Parallel()

	f := newBotFixture(t)
	f.press(adminID, "OSINT_REJECT_3")
	assert.Equal(t, []int64{3}, f.operator.rejected)
	assert.Equal(t, "Відхилено", lastAnswer(t, f.api))

	f.press(adminID, "OSINT_ORIG_3")
	sends := f.api.callsTo("sendMessage")
	require.Len(t, sends, 1)
	assert.Equal(t, "📄 Original (#3):\n\nUPD: Шахед курс на Чернігів", sends[0].form.Get("text"))

	f.press(adminID, "OSINT_ORIG_9")
	assert.Equal(t, "Немає", lastAnswer(t, f.api))
}

func TestBot_CallbackFromStrangerIsRefused(t *testing.T) {
	t.Parallel()

	f := newBotFixture(t)
	f.press(12345, "OSINT_APPROVE_3")
	f.press(adminID, "OSINT_APPROVE_x")

	assert.Empty(t, f.operator.approved)
	assert.Len(t, f.api.callsTo("answerCallbackQuery"), 2)
}

func TestBot_ChannelPostGoesToPipeline(t *testing.T) {
	t.Parallel()

	f := newBotFixture(t)
	f.bot.HandleUpdate(context.Background(), &models.Update{ChannelPost: &models.Message{
		Chat:    models.Chat{ID: -1001, Type: "channel", Username: "monitor"},
		Date:    1740823200,
		Caption: "Шахед курс на Чернігів",
	}})
	f.bot.HandleUpdate(context.Background(), &models.Update{ChannelPost: &models.Message{
		Chat: models.Chat{ID: -1002, Type: "channel"},
		Text: "  ",
	}})

	require.Len(t, f.ingest.inbound, 1)
	in := f.ingest.inbound[0]
	assert.Equal(t, "monitor", in.Source)
	assert.Equal(t, "Шахед курс на Чернігів", in.Text)
	assert.Equal(t, "telegram", in.Transport)
	assert.Equal(t, time.Unix(1740823200, 0).UTC(), in.At)
}

func TestBot_Commands(t *testing.T) {
	t.Parallel()

	f := newBotFixture(t)

	assert.Equal(t, "Mode set to: auto", f.command("/mode auto"))
	assert.Equal(t, domain.ModeAuto, f.settings.settings.Mode)
	assert.Equal(t, "Використання: /mode manual або /mode auto", f.command("/mode fast"))

	assert.Equal(t, "Target встановлено: @siverradar", f.command("/target@siver_bot https://t.me/siverradar"))
	assert.Equal(t, "@siverradar", f.settings.settings.TargetChannel)

	assert.Equal(t, "Регіон sumy: ✅", f.command("/region суми"))
	assert.Equal(t, "Регіон chernihiv: ❌", f.command("/region chernihiv"))
	assert.Equal(t, []domain.RegionID{domain.RegionSumy}, f.settings.settings.AllowedRegions)

	assert.Equal(t, "Додано: @osint_feed", f.command("/source_add t.me/OSINT_feed"))
	assert.Equal(t, "Вже є: @osint_feed", f.command("/source_add @osint_feed"))
	assert.Equal(t, "@monitor\n@osint_feed", f.command("/sources"))
	assert.Equal(t, "Видалено: @monitor", f.command("/source_del monitor"))
	assert.Equal(t, "Не знайдено: @monitor", f.command("/source_del monitor"))
	assert.Equal(t, "Невірний канал. Приклад: /source_add @channel", f.command("/source_add !!"))

	assert.Equal(t, "#4 • @monitor\n🛸 БПЛА: Курс на Чернігів.", f.command("/queue"))
	assert.Contains(t, f.command("/status"), "• Mode: auto\n• Target: @siverradar\n• Sources: 1\n• Regions: sumy")
}

func TestBot_TargetPrompt(t *testing.T) {
	t.Parallel()

	f := newBotFixture(t)
	assert.Contains(t, f.command("/target"), "Введи target канал")
	assert.Equal(t, "Target встановлено: @siver_news", f.command("@siver_news"))

	before := len(f.api.callsTo("sendMessage"))
	f.command("просто текст")
	assert.Len(t, f.api.callsTo("sendMessage"), before, "plain text is ignored once the prompt is consumed")
}

func TestBot_NonAdminOnlyGetsStart(t *testing.T) {
	t.Parallel()

	f := newBotFixture(t)
	stranger := func(text string) {
		f.bot.HandleUpdate(context.Background(), &models.Update{Message: &models.Message{
			From: &models.User{ID: 5},
			Chat: models.Chat{ID: 5, Type: "private"},
			Text: text,
		}})
	}

	stranger("/mode auto")
	assert.Empty(t, f.api.callsTo("sendMessage"))
	assert.Equal(t, domain.ModeManual, f.settings.settings.Mode)

	stranger("/start")
	calls := f.api.callsTo("sendMessage")
	require.Len(t, calls, 1)
	assert.Equal(t, "Бот працює. (доступ до панелі — тільки адміну)", calls[0].form.Get("text"))
}

func TestBot_InaccessibleCardStillUpdated(t *testing.T) {
	t.Parallel()

	f := newBotFixture(t)
	f.bot.HandleUpdate(context.Background(), &models.Update{CallbackQuery: &models.CallbackQuery{
		ID:   "q",
		From: models.User{ID: adminID},
		Data: "OSINT_REJECT_3",
		Message: models.MaybeInaccessibleMessage{
			InaccessibleMessage: &models.InaccessibleMessage{Chat: models.Chat{ID: adminID}, MessageID: 78},
		},
	}})

	edits := f.api.callsTo("editMessageReplyMarkup")
	require.Len(t, edits, 1)
	assert.Equal(t, "78", edits[0].form.Get("message_id"))
}

func TestBot_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	f := newBotFixture(t)
	f.api.updates = []string{`{"ok":true,"result":[{"update_id":10,"channel_post":{"message_id":1,"chat":{"id":-1,"type":"channel","username":"monitor"},"date":0,"text":"Шахед"}}]}`}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.bot.Run(ctx) }()

	require.Eventually(t, func() bool {
		f.ingest.mu.Lock()
		defer f.ingest.mu.Unlock()
		return len(f.ingest.inbound) == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		for _, c := range f.api.callsTo("getUpdates") {
			if c.form.Get("offset") == "11" {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("updates loop did not stop")
	}

	f.ingest.mu.Lock()
	assert.Equal(t, "monitor", f.ingest.inbound[0].Source)
	f.ingest.mu.Unlock()
}
