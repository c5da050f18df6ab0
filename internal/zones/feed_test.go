package zones_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yari4ek89/siverbotv2/internal/retry"
	"github.com/yari4ek89/siverbotv2/internal/zones"
)

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestHTTPFeed_Bodies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		body        string
		want        zones.Snapshot
		wantErr     error
	}{
		{name: "plain text", contentType: "text/plain", body: "NNAN", want: "NNAN"},
		{name: "json string", contentType: "application/json", body: `"NANA"`, want: "NANA"},
		{name: "json data field", contentType: "application/json; charset=utf-8", body: `{"data":"AAN"}`, want: "AAN"},
		{name: "json result field", contentType: "application/json", body: `{"data":5,"result":"NA"}`, want: "NA"},
		{name: "json without string", contentType: "application/json", body: `{"data":[1,2]}`, wantErr: zones.ErrMalformedSnapshot},
		{name: "json array", contentType: "application/json", body: `[1]`, wantErr: zones.ErrMalformedSnapshot},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			feed := zones.NewHTTPFeed(srv.Client(), zones.HTTPFeedConfig{URL: srv.URL, Retry: fastRetry()})
			got, err := feed.Fetch(context.Background())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPFeed_AuthHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		prefix string
		want   string
	}{
		{name: "authorization with prefix", header: "Authorization", prefix: "Bearer", want: "Bearer secret"},
		{name: "authorization without prefix", header: "authorization", want: "secret"},
		{name: "custom header", header: "X-API-Key", prefix: "Bearer", want: "secret"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get(tt.header)
				_, _ = w.Write([]byte("N"))
			}))
			defer srv.Close()

			feed := zones.NewHTTPFeed(srv.Client(), zones.HTTPFeedConfig{
				URL: srv.URL, Token: "secret", AuthHeader: tt.header, AuthPrefix: tt.prefix, Retry: fastRetry(),
			})
			_, err := feed.Fetch(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPFeed_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("A"))
	}))
	defer srv.Close()

	feed := zones.NewHTTPFeed(srv.Client(), zones.HTTPFeedConfig{URL: srv.URL, Retry: fastRetry()})
	got, err := feed.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, zones.Snapshot("A"), got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFeed_ClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	feed := zones.NewHTTPFeed(srv.Client(), zones.HTTPFeedConfig{URL: srv.URL, Retry: fastRetry()})
	_, err := feed.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), calls.Load())
}
