package zones

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/yari4ek89/siverbotv2/internal/circuitbreaker"
	"github.com/yari4ek89/siverbotv2/internal/retry"
)

// ErrMalformedSnapshot is returned when a JSON body carries no snapshot string.
var ErrMalformedSnapshot = errors.New("malformed status snapshot")

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 200

// snapshotFields are the object fields tried, in order, for a JSON-wrapped snapshot.
var snapshotFields = []string{"data", "alerts", "value", "result"}

// Snapshot is one fetched status string. Each zone reads one character of it.
type Snapshot string

// Active reports whether the character at index is in the active alphabet.
// Out-of-range indexes read as inactive.
func (s Snapshot) Active(index int, alphabet map[rune]bool) bool {
	if index < 0 {
		return false
	}
	i := 0
	for _, r := range string(s) {
		if i == index {
			return alphabet[r]
		}
		i++
	}
	return false
}

// ParseAlphabet splits a comma-separated list of active symbols.
func ParseAlphabet(symbols string) map[rune]bool {
	out := make(map[rune]bool)
	for _, part := range strings.Split(symbols, ",") {
		part = strings.TrimSpace(part)
		for _, r := range part {
			out[r] = true
		}
	}
	return out
}

// Feed fetches the current status snapshot.
type Feed interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

// HTTPFeedConfig configures the status feed client.
type HTTPFeedConfig struct {
	URL string
	// Token is sent as "<AuthPrefix> <Token>" in Authorization, or as-is in any other header.
	Token      string
	AuthHeader string
	AuthPrefix string
	Retry      retry.Config
	Breaker    circuitbreaker.Config
}

// HTTPFeed fetches snapshots over HTTP through retry and a circuit breaker.
type HTTPFeed struct {
	client  *http.Client
	cfg     HTTPFeedConfig
	breaker *circuitbreaker.Breaker
}

// NewHTTPFeed creates a feed client.
func NewHTTPFeed(client *http.Client, cfg HTTPFeedConfig) *HTTPFeed {
	if cfg.AuthHeader == "" {
		cfg.AuthHeader = "Authorization"
	}
	if cfg.Breaker.Timeout == 0 {
		cfg.Breaker.Timeout = time.Minute
	}
	return &HTTPFeed{
		client:  client,
		cfg:     cfg,
		breaker: circuitbreaker.New(cfg.Breaker),
	}
}

// Fetch implements Feed.
func (f *HTTPFeed) Fetch(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := f.breaker.Execute(func() error {
		return retry.Retry(ctx, f.cfg.Retry, func() error {
			s, err := f.fetchOnce(ctx)
			if err != nil {
				return err
			}
			snap = s
			return nil
		})
	})
	if err != nil {
		return "", fmt.Errorf("fetch status snapshot: %w", err)
	}
	return snap, nil
}

func (f *HTTPFeed) fetchOnce(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.URL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "*/*")
	if f.cfg.Token != "" {
		if strings.EqualFold(f.cfg.AuthHeader, "Authorization") {
			req.Header.Set(f.cfg.AuthHeader, strings.TrimSpace(f.cfg.AuthPrefix+" "+f.cfg.Token))
		} else {
			req.Header.Set(f.cfg.AuthHeader, f.cfg.Token)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("status feed returned %d: %s", resp.StatusCode, truncate(string(body), maxErrorBody))
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return "", retry.Transient(err)
		}
		return "", err
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		return Snapshot(body), nil
	}
	return decodeJSONSnapshot(body)
}

func decodeJSONSnapshot(body []byte) (Snapshot, error) {
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return Snapshot(s), nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedSnapshot, err)
	}
	for _, field := range snapshotFields {
		raw, ok := obj[field]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &s); err == nil {
			return Snapshot(s), nil
		}
	}
	return "", fmt.Errorf("%w: expected a string or an object with one of %v", ErrMalformedSnapshot, snapshotFields)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
