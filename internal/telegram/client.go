// Package telegram is the Bot API transport: the channel publisher, the
// operator notifier and the updates loop that serves operator actions and
// channel posts.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"github.com/yari4ek89/siverbotv2/internal/circuitbreaker"
	"github.com/yari4ek89/siverbotv2/internal/logger"
	"github.com/yari4ek89/siverbotv2/internal/retry"
	"github.com/yari4ek89/siverbotv2/internal/telemetry"
)

// ErrAPI is returned when the Bot API answers a call with an error.
var ErrAPI = errors.New("telegram api error")

const (
	// DefaultBaseURL is the public Bot API endpoint.
	DefaultBaseURL = "https://api.telegram.org"

	defaultRateLimit   = 20
	defaultPollTimeout = 30 * time.Second
)

var allowedUpdates = tgbot.AllowedUpdates{"message", "channel_post", "callback_query"}

// Config configures the Bot API client.
type Config struct {
	Token   string
	BaseURL string
	// PollTimeout is how long a getUpdates call is held open.
	PollTimeout time.Duration
	// RateLimit is the sustained number of outbound calls per second.
	RateLimit int
	Retry     retry.Config
	Breaker   circuitbreaker.Config
}

// UpdateHandler receives updates delivered by Listen.
type UpdateHandler func(ctx context.Context, u *models.Update)

// Client calls the Bot API. Sending methods share a rate limiter, retry
// transient failures and go through a circuit breaker that only counts
// transient failures, so a bad destination cannot block the others.
type Client struct {
	api       *tgbot.Bot
	limiter   *rate.Limiter
	retry     retry.Config
	breaker   *circuitbreaker.Breaker
	log       logger.Logger
	telemetry *telemetry.Provider

	mu      sync.RWMutex
	handler UpdateHandler
}

// NewClient creates a Bot API client.
func NewClient(httpClient *http.Client, cfg Config, log logger.Logger, tel *telemetry.Provider) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = logger.NewNop()
	}
	log = log.With(logger.Component("telegram"))

	breakerCfg := cfg.Breaker
	if breakerCfg.IsFailure == nil {
		breakerCfg.IsFailure = retry.DefaultIsRetryable
	}
	breakerCfg.OnStateChange = func(from, to circuitbreaker.State) {
		log.Warn("Bot API circuit breaker state changed",
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}

	c := &Client{
		limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit),
		retry:     cfg.Retry,
		breaker:   circuitbreaker.New(breakerCfg),
		log:       log,
		telemetry: tel,
	}

	api, err := tgbot.New(cfg.Token,
		tgbot.WithSkipGetMe(),
		tgbot.WithServerURL(strings.TrimRight(cfg.BaseURL, "/")),
		tgbot.WithHTTPClient(cfg.PollTimeout, &exchangeRecorder{http: httpClient}),
		tgbot.WithAllowedUpdates(allowedUpdates),
		tgbot.WithNotAsyncHandlers(),
		tgbot.WithDefaultHandler(c.dispatch),
		tgbot.WithErrorsHandler(c.pollFailed),
	)
	if err != nil {
		return nil, fmt.Errorf("create bot api client: %w", err)
	}
	c.api = api
	return c, nil
}

// Publish implements the router and poller publisher: a plain-text message
// without link previews.
func (c *Client) Publish(ctx context.Context, destination, text string) error {
	_, err := c.SendMessage(ctx, destination, text, nil)
	return err
}

// SendMessage sends text to chatID, optionally with an inline keyboard.
func (c *Client) SendMessage(ctx context.Context, chatID, text string, markup *models.InlineKeyboardMarkup) (*models.Message, error) {
	disabled := true
	params := &tgbot.SendMessageParams{
		ChatID:             chatID,
		Text:               text,
		LinkPreviewOptions: &models.LinkPreviewOptions{IsDisabled: &disabled},
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}

	var msg *models.Message
	err := c.call(ctx, "sendMessage", func(ctx context.Context) error {
		var err error
		msg, err = c.api.SendMessage(ctx, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// AnswerCallbackQuery acknowledges a button press, optionally with a toast.
func (c *Client) AnswerCallbackQuery(ctx context.Context, queryID, text string) error {
	return c.call(ctx, "answerCallbackQuery", func(ctx context.Context) error {
		_, err := c.api.AnswerCallbackQuery(ctx, &tgbot.AnswerCallbackQueryParams{
			CallbackQueryID: queryID,
			Text:            text,
		})
		return err
	})
}

// EditMessageReplyMarkup replaces the inline keyboard of a sent message.
func (c *Client) EditMessageReplyMarkup(ctx context.Context, chatID int64, messageID int, markup *models.InlineKeyboardMarkup) error {
	return c.call(ctx, "editMessageReplyMarkup", func(ctx context.Context) error {
		params := &tgbot.EditMessageReplyMarkupParams{ChatID: chatID, MessageID: messageID}
		if markup != nil {
			params.ReplyMarkup = markup
		}
		_, err := c.api.EditMessageReplyMarkup(ctx, params)
		return err
	})
}

// Listen long-polls getUpdates and hands every update to h, one at a time,
// until ctx is done. It bypasses the limiter, retry and breaker; the poller
// backs off on its own.
func (c *Client) Listen(ctx context.Context, h UpdateHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()

	c.api.Start(ctx)
}

func (c *Client) dispatch(ctx context.Context, _ *tgbot.Bot, u *models.Update) {
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()
	if h != nil {
		h(ctx, u)
	}
}

func (c *Client) pollFailed(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	c.telemetry.RecordTelegramRequest("getUpdates", err)
	c.log.Warn("getUpdates failed", logger.Error(err))
}

func (c *Client) call(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	err := c.breaker.Execute(func() error {
		return retry.Retry(ctx, c.retry, func() error {
			ex := &exchange{}
			return ex.classify(fn(context.WithValue(ctx, exchangeKey{}, ex)))
		})
	})
	c.telemetry.RecordTelegramRequest(method, err)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

type exchangeKey struct{}

// exchange records what the HTTP layer saw for one call, so failures can be
// classified without parsing library error text.
type exchange struct {
	status int
	netErr error
}

func (e *exchange) classify(err error) error {
	switch {
	case err == nil:
		return nil
	case e.netErr != nil:
		return retry.Transient(fmt.Errorf("request failed: %w", e.netErr))
	case e.status == 0:
		return err
	}

	apiErr := fmt.Errorf("%w: http %d: %w", ErrAPI, e.status, err)
	if e.status == http.StatusTooManyRequests || e.status >= http.StatusInternalServerError {
		return retry.Transient(apiErr)
	}
	return apiErr
}

// exchangeRecorder is the HTTP client handed to the Bot API library.
type exchangeRecorder struct {
	http *http.Client
}

func (r *exchangeRecorder) Do(req *http.Request) (*http.Response, error) {
	ex, _ := req.Context().Value(exchangeKey{}).(*exchange)

	resp, err := r.http.Do(req)
	if err != nil {
		// The URL carries the token; keep it out of logs and errors.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		if ex != nil {
			ex.netErr = err
		}
		return nil, err
	}
	if ex != nil {
		ex.status = resp.StatusCode
	}
	return resp, nil
}
