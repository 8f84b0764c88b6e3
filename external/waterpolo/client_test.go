package waterpolo

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/riskibarqy/waterpolo-stats/internal/domain/matchstats"
	"github.com/riskibarqy/waterpolo-stats/internal/platform/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(ClientConfig{
		CompetitionURLTemplate: server.URL + "/competitions/{competition_id}/matches",
		MatchURLTemplate:       server.URL + "/matches/",
		EventURLTemplate:       server.URL + "/matches/{match_id}/events",
		Authorization:          "Bearer secret-token",
		UserAgent:              "stats-test/1.0",
		Timeout:                2 * time.Second,
	})
	return client, server
}

func TestFetchMatch_SendsHeadersAndDecodes(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/matches/12" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if got := r.Header.Get("User-Agent"); got != "stats-test/1.0" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"id":12,"homeTeamId":9007199254740993,"players":[]}`))
	})

	doc, err := client.FetchMatch(context.Background(), 12)
	require.NoError(t, err)

	match, ok := doc.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(12), match["id"])
	assert.Equal(t, int64(9007199254740993), match["homeTeamId"])
}

func TestFetchEvents_ExpandsPlaceholder(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/matches/7/events" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`[{"type":"SHOT","period":1}]`))
	})

	doc, err := client.FetchEvents(context.Background(), 7)
	require.NoError(t, err)
	events, ok := doc.([]any)
	require.True(t, ok)
	assert.Len(t, events, 1)
}

func TestFetchResource_Non200IsTransportError(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.FetchMatch(context.Background(), 2)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, matchstats.ErrTransport))

	var fetchErr *matchstats.FetchError
	require.True(t, stderrors.As(err, &fetchErr))
	assert.Equal(t, http.StatusServiceUnavailable, fetchErr.StatusCode)
	assert.Equal(t, "2", fetchErr.Key)
}

func TestFetchResource_InvalidJSONIsDecodeError(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	})

	_, err := client.FetchMatch(context.Background(), 3)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, matchstats.ErrDecode))
	assert.False(t, stderrors.Is(err, matchstats.ErrTransport))
}

func TestFetchResource_ConnectionFailureHasNoStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	client := NewClient(ClientConfig{MatchURLTemplate: baseURL + "/matches/", Timeout: time.Second})
	_, err := client.FetchMatch(context.Background(), 4)

	var fetchErr *matchstats.FetchError
	require.True(t, stderrors.As(err, &fetchErr))
	assert.Equal(t, matchstats.FetchErrorTransport, fetchErr.Kind)
	assert.Zero(t, fetchErr.StatusCode)
}

func TestFetchResource_WaitsForJitterAndHonoursCancellation(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte(`{}`))
	})
	client.jitter = Jitter{Min: time.Minute, Max: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchMatch(ctx, 1)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, context.Canceled))
	assert.Zero(t, requests.Load())
}

func TestDiscoverMatchIDs_Deduplicates(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/competitions/100/matches" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"matches":[{"id":1},{"id":1},{"id":2},{"name":"no id"},"junk"]}`))
	})
	var slept atomic.Int32
	client.sleep = func(context.Context, time.Duration) error {
		slept.Add(1)
		return nil
	}

	ids, err := client.DiscoverMatchIDs(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, []matchstats.MatchID{1, 2}, ids.Sorted())
	assert.Zero(t, slept.Load())
}

func TestDiscoverMatchIDs_FailureYieldsEmptySet(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	ids, err := client.DiscoverMatchIDs(context.Background(), 100)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, matchstats.ErrTransport))
	assert.NotNil(t, ids)
	assert.Zero(t, ids.Len())
}

func TestDiscoverMatchIDs_MissingMatchesKey(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"competition":{"id":100}}`))
	})

	ids, err := client.DiscoverMatchIDs(context.Background(), 100)
	assert.True(t, stderrors.Is(err, matchstats.ErrSchema))
	assert.Zero(t, ids.Len())
}

func TestClient_CircuitBreakerOpensOnTransportFailures(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	client := NewClient(ClientConfig{
		MatchURLTemplate: server.URL + "/matches/",
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 2,
			OpenTimeout:      time.Minute,
			HalfOpenMaxReq:   1,
		},
	})

	for i := 0; i < 3; i++ {
		_, err := client.FetchMatch(context.Background(), matchstats.MatchID(i+1))
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, matchstats.ErrTransport))
	}
	assert.Equal(t, int32(2), requests.Load())
}

func TestExpandEndpoint(t *testing.T) {
	t.Parallel()

	cases := []struct {
		template string
		key      string
		want     string
	}{
		{"https://api.example/matches/", "12", "https://api.example/matches/12"},
		{"https://api.example/matches/{match_id}/events", "12", "https://api.example/matches/12/events"},
		{"https://api.example/competitions/{competition_id}", "100", "https://api.example/competitions/100"},
		{"https://api.example/m?id={id}", "5", "https://api.example/m?id=5"},
	}
	for _, tc := range cases {
		if got := expandEndpoint(tc.template, tc.key); got != tc.want {
			t.Fatalf("expandEndpoint(%q, %q) = %q, want %q", tc.template, tc.key, got, tc.want)
		}
	}
}

func TestNextJitter_StaysInBounds(t *testing.T) {
	t.Parallel()

	client := NewClient(ClientConfig{Jitter: Jitter{Min: 1500 * time.Millisecond, Max: 3500 * time.Millisecond}})
	for i := 0; i < 200; i++ {
		d := client.nextJitter()
		if d < 1500*time.Millisecond || d > 3500*time.Millisecond {
			t.Fatalf("jitter %s outside [1.5s, 3.5s]", d)
		}
	}

	inverted := NewClient(ClientConfig{Jitter: Jitter{Min: time.Second, Max: 0}})
	assert.Equal(t, time.Second, inverted.nextJitter())
}

func TestSanitizeSensitiveText(t *testing.T) {
	t.Parallel()

	got := sanitizeSensitiveText("dial failed for Bearer abc ", "Bearer abc")
	assert.Equal(t, "dial failed for REDACTED", got)
	assert.True(t, strings.HasSuffix(abbreviateBody([]byte(strings.Repeat("x", 500))), "..."))
}
