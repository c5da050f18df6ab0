package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-telegram/bot/models"

	"github.com/yari4ek89/siverbotv2/internal/domain"
	"github.com/yari4ek89/siverbotv2/internal/logger"
	"github.com/yari4ek89/siverbotv2/internal/pipeline"
)

const (
	queuePreviewItems = 10
	queuePreviewRunes = 120
	transportName     = "telegram"
)

// Operator performs queue decisions.
type Operator interface {
	Approve(ctx context.Context, id int64) (*domain.QueueItem, error)
	Reject(ctx context.Context, id int64) (*domain.QueueItem, error)
	Original(ctx context.Context, id int64) (string, error)
}

// Ingest receives channel posts.
type Ingest interface {
	Handle(ctx context.Context, in pipeline.Inbound) (pipeline.Decision, error)
}

// SettingsStore reads and patches settings.
type SettingsStore interface {
	Get(ctx context.Context) (domain.Settings, error)
	Patch(ctx context.Context, p domain.SettingsPatch) (domain.Settings, error)
}

// SourceStore manages the source allow-list.
type SourceStore interface {
	List(ctx context.Context) ([]string, error)
	Add(ctx context.Context, raw string) (string, error)
	Remove(ctx context.Context, raw string) error
}

// PendingLister reads the approval queue.
type PendingLister interface {
	ListPending(ctx context.Context, limit int) ([]*domain.QueueItem, error)
	CountPending(ctx context.Context) (int, error)
}

// BotConfig wires the updates loop.
type BotConfig struct {
	Client   *Client
	AdminID  int64
	Operator Operator
	Ingest   Ingest
	Settings SettingsStore
	Sources  SourceStore
	Queue    PendingLister
	Logger   logger.Logger
}

// Bot serves getUpdates: operator callbacks, admin commands and channel posts.
type Bot struct {
	cfg BotConfig
	log logger.Logger

	mu             sync.Mutex
	awaitingTarget bool
}

// NewBot creates the updates loop.
func NewBot(cfg BotConfig) *Bot {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &Bot{cfg: cfg, log: cfg.Logger.With(logger.Component("telegram"))}
}

// Run long-polls until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.log.Info("Bot updates loop starting")
	b.cfg.Client.Listen(ctx, b.HandleUpdate)
	b.log.Info("Bot updates loop stopped")
	return nil
}

// HandleUpdate dispatches one update. Errors are logged, never returned.
func (b *Bot) HandleUpdate(ctx context.Context, u *models.Update) {
	switch {
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	case u.ChannelPost != nil:
		b.handleChannelPost(ctx, u.ChannelPost)
	case u.Message != nil:
		b.handleMessage(ctx, u.Message)
	}
}

func (b *Bot) isAdmin(u *models.User) bool {
	return u != nil && b.cfg.AdminID != 0 && u.ID == b.cfg.AdminID
}

func (b *Bot) handleChannelPost(ctx context.Context, m *models.Message) {
	text := messageBody(m)
	if strings.TrimSpace(text) == "" {
		return
	}
	source := m.Chat.Username
	if source == "" {
		source = strconv.FormatInt(m.Chat.ID, 10)
	}
	_, err := b.cfg.Ingest.Handle(ctx, pipeline.Inbound{
		Source:    source,
		Text:      text,
		At:        messageTime(m),
		Transport: transportName,
	})
	if err != nil {
		b.log.Error("Channel post not processed", logger.String("source", source), logger.Error(err))
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if _, err := b.cfg.Client.SendMessage(ctx, strconv.FormatInt(chatID, 10), text, nil); err != nil {
		b.log.Error("Failed to reply", logger.Int64("chat_id", chatID), logger.Error(err))
	}
}

func (b *Bot) answer(ctx context.Context, q *models.CallbackQuery, text string) {
	if err := b.cfg.Client.AnswerCallbackQuery(ctx, q.ID, text); err != nil {
		b.log.Warn("Failed to answer callback", logger.Error(err))
	}
}

func (b *Bot) handleCallback(ctx context.Context, q *models.CallbackQuery) {
	if !b.isAdmin(&q.From) {
		b.answer(ctx, q, "Немає доступу")
		return
	}
	if q.Data == callbackNop {
		b.answer(ctx, q, "")
		return
	}

	action, id, ok := parseCallback(q.Data)
	if !ok {
		b.answer(ctx, q, "")
		return
	}

	switch action {
	case callbackApprove:
		_, err := b.cfg.Operator.Approve(ctx, id)
		b.finishDecision(ctx, q, id, err, "Опубліковано", "✅ Approved")
	case callbackReject:
		_, err := b.cfg.Operator.Reject(ctx, id)
		b.finishDecision(ctx, q, id, err, "Відхилено", "❌ Rejected")
	case callbackOriginal:
		raw, err := b.cfg.Operator.Original(ctx, id)
		if err != nil {
			b.answer(ctx, q, "Немає")
			return
		}
		b.answer(ctx, q, "")
		if raw == "" {
			raw = "(empty)"
		}
		b.reply(ctx, q.From.ID, fmt.Sprintf("📄 Original (#%d):\n\n%s", id, raw))
	}
}

func (b *Bot) finishDecision(ctx context.Context, q *models.CallbackQuery, id int64, err error, done, label string) {
	switch {
	case err == nil:
		b.answer(ctx, q, done)
		if chatID, messageID, ok := callbackOrigin(q); ok {
			if err := b.cfg.Client.EditMessageReplyMarkup(ctx, chatID, messageID, decidedKeyboard(label)); err != nil {
				b.log.Warn("Failed to update item card", logger.Int64("queue_id", id), logger.Error(err))
			}
		}
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNotPending):
		b.answer(ctx, q, "Немає в черзі")
	case errors.Is(err, domain.ErrNoTarget):
		b.answer(ctx, q, "Target не задан")
		b.reply(ctx, q.From.ID, "Спочатку задай target: /target @channel")
	default:
		b.log.Error("Queue decision failed", logger.Int64("queue_id", id), logger.Error(err))
		b.answer(ctx, q, "Помилка, спробуй ще раз")
	}
}

func parseCallback(data string) (action string, id int64, ok bool) {
	for _, prefix := range []string{callbackApprove, callbackReject, callbackOriginal} {
		rest, found := strings.CutPrefix(data, prefix)
		if !found {
			continue
		}
		n, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || n <= 0 {
			return "", 0, false
		}
		return prefix, n, true
	}
	return "", 0, false
}

func (b *Bot) handleMessage(ctx context.Context, m *models.Message) {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}

	if !b.isAdmin(m.From) {
		if command, _ := splitCommand(text); command == "/start" {
			b.reply(ctx, m.Chat.ID, "Бот працює. (доступ до панелі — тільки адміну)")
		}
		return
	}

	if !strings.HasPrefix(text, "/") {
		if b.takeAwaitingTarget() {
			b.reply(ctx, m.Chat.ID, b.setTarget(ctx, text))
		}
		return
	}

	command, arg := splitCommand(text)
	b.reply(ctx, m.Chat.ID, b.runCommand(ctx, command, arg))
}

func (b *Bot) takeAwaitingTarget() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	was := b.awaitingTarget
	b.awaitingTarget = false
	return was
}

// splitCommand turns "/mode@siver_bot auto" into ("/mode", "auto").
func splitCommand(text string) (command, arg string) {
	command, arg, _ = strings.Cut(text, " ")
	command, _, _ = strings.Cut(command, "@")
	return strings.ToLower(command), strings.TrimSpace(arg)
}

func (b *Bot) runCommand(ctx context.Context, command, arg string) string {
	switch command {
	case "/start":
		return "Готовий. Команди: /status /mode /queue /sources /source_add /source_del /target /region"
	case "/status":
		return b.status(ctx)
	case "/mode":
		return b.setMode(ctx, arg)
	case "/queue":
		return b.queue(ctx)
	case "/sources":
		return b.sources(ctx)
	case "/source_add":
		return b.addSource(ctx, arg)
	case "/source_del":
		return b.removeSource(ctx, arg)
	case "/target":
		if arg == "" {
			b.mu.Lock()
			b.awaitingTarget = true
			b.mu.Unlock()
			return "Введи target канал (наприклад @siverradar) одним повідомленням:"
		}
		return b.setTarget(ctx, arg)
	case "/region":
		return b.toggleRegion(ctx, arg)
	default:
		return "Невідома команда."
	}
}

func (b *Bot) status(ctx context.Context) string {
	s, err := b.cfg.Settings.Get(ctx)
	if err != nil {
		return b.failure("load settings", err)
	}
	sources, err := b.cfg.Sources.List(ctx)
	if err != nil {
		return b.failure("list sources", err)
	}
	pending, err := b.cfg.Queue.CountPending(ctx)
	if err != nil {
		return b.failure("count pending", err)
	}

	target := s.TargetChannel
	if target == "" {
		target = "не задан"
	}
	regions := make([]string, 0, len(s.AllowedRegions))
	for _, r := range s.AllowedRegions {
		regions = append(regions, string(r))
	}
	regionList := strings.Join(regions, ", ")
	if regionList == "" {
		regionList = "none"
	}
	alerts := "off"
	if s.AlertsEnabled {
		alerts = "on → " + s.AlertsDestination()
	}

	return fmt.Sprintf("Status\n• Mode: %s\n• Target: %s\n• Sources: %d\n• Regions: %s\n• Alerts: %s\n• Pending: %d",
		s.Mode, target, len(sources), regionList, alerts, pending)
}

func (b *Bot) setMode(ctx context.Context, arg string) string {
	mode, err := domain.ParseMode(arg)
	if err != nil {
		return "Використання: /mode manual або /mode auto"
	}
	if _, err := b.cfg.Settings.Patch(ctx, domain.SettingsPatch{Mode: &mode}); err != nil {
		return b.failure("set mode", err)
	}
	return "Mode set to: " + string(mode)
}

func (b *Bot) setTarget(ctx context.Context, raw string) string {
	target := strings.TrimSpace(raw)
	s, err := b.cfg.Settings.Patch(ctx, domain.SettingsPatch{TargetChannel: &target})
	if errors.Is(err, domain.ErrInvalidSource) {
		return "Невірний формат. Приклад: @siverradar"
	}
	if err != nil {
		return b.failure("set target", err)
	}
	return "Target встановлено: " + s.TargetChannel
}

func (b *Bot) toggleRegion(ctx context.Context, arg string) string {
	region, err := domain.ParseRegion(arg)
	if err != nil {
		return "Використання: /region chernihiv або /region sumy"
	}
	s, err := b.cfg.Settings.Get(ctx)
	if err != nil {
		return b.failure("load settings", err)
	}

	next := make([]domain.RegionID, 0, len(s.AllowedRegions)+1)
	enabled := true
	for _, r := range s.AllowedRegions {
		if r == region {
			enabled = false
			continue
		}
		next = append(next, r)
	}
	if enabled {
		next = append(next, region)
	}

	if _, err := b.cfg.Settings.Patch(ctx, domain.SettingsPatch{AllowedRegions: &next}); err != nil {
		return b.failure("set regions", err)
	}
	if enabled {
		return fmt.Sprintf("Регіон %s: ✅", region)
	}
	return fmt.Sprintf("Регіон %s: ❌", region)
}

func (b *Bot) queue(ctx context.Context) string {
	items, err := b.cfg.Queue.ListPending(ctx, queuePreviewItems)
	if err != nil {
		return b.failure("list queue", err)
	}
	if len(items) == 0 {
		return "Черга порожня."
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("#%d • %s\n%s", item.ID, sourceHandle(item.Source), preview(item.FormattedText, queuePreviewRunes)))
	}
	return strings.Join(parts, "\n\n")
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func (b *Bot) sources(ctx context.Context) string {
	list, err := b.cfg.Sources.List(ctx)
	if err != nil {
		return b.failure("list sources", err)
	}
	if len(list) == 0 {
		return "Sources порожні. Додай: /source_add @channel"
	}
	handles := make([]string, 0, len(list))
	for _, s := range list {
		handles = append(handles, sourceHandle(s))
	}
	return strings.Join(handles, "\n")
}

func (b *Bot) addSource(ctx context.Context, arg string) string {
	name, err := b.cfg.Sources.Add(ctx, arg)
	switch {
	case errors.Is(err, domain.ErrInvalidSource):
		return "Невірний канал. Приклад: /source_add @channel"
	case errors.Is(err, domain.ErrAlreadyExists):
		return "Вже є: " + sourceHandle(name)
	case err != nil:
		return b.failure("add source", err)
	}
	return "Додано: " + sourceHandle(name)
}

func (b *Bot) removeSource(ctx context.Context, arg string) string {
	err := b.cfg.Sources.Remove(ctx, arg)
	name, _ := domain.NormalizeSource(arg)
	switch {
	case errors.Is(err, domain.ErrInvalidSource):
		return "Невірний канал. Приклад: /source_del @channel"
	case errors.Is(err, domain.ErrNotFound):
		return "Не знайдено: " + sourceHandle(name)
	case err != nil:
		return b.failure("remove source", err)
	}
	return "Видалено: " + sourceHandle(name)
}

func (b *Bot) failure(op string, err error) string {
	b.log.Error("Admin command failed", logger.String("operation", op), logger.Error(err))
	return "Помилка: " + op
}
