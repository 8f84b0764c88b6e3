package waterpolo

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/waterpolo-stats/internal/domain/matchstats"
	"github.com/riskibarqy/waterpolo-stats/internal/platform/logging"
	"github.com/riskibarqy/waterpolo-stats/internal/platform/resilience"
	"github.com/valyala/fasthttp"
)

const (
	defaultTimeout   = 20 * time.Second
	defaultUserAgent = "waterpolo-stats-pipeline"
	maxLoggedBody    = 240
)

const (
	placeholderCompetitionID = "{competition_id}"
	placeholderMatchID       = "{match_id}"
	placeholderID            = "{id}"
)

// decoder keeps integer JSON numbers as int64 so ids survive the round trip.
var decoder = sonic.Config{UseInt64: true}.Froze()

// Jitter bounds the random pause taken before every match and event request.
type Jitter struct {
	Min time.Duration
	Max time.Duration
}

type ClientConfig struct {
	CompetitionURLTemplate string
	MatchURLTemplate       string
	EventURLTemplate       string
	Authorization          string
	UserAgent              string
	Timeout                time.Duration
	Jitter                 Jitter
	CircuitBreaker         resilience.CircuitBreakerConfig
	Logger                 *logging.Logger
}

type Client struct {
	http                   *fasthttp.Client
	competitionURLTemplate string
	matchURLTemplate       string
	eventURLTemplate       string
	authorization          string
	userAgent              string
	timeout                time.Duration
	jitter                 Jitter
	breaker                *resilience.CircuitBreaker
	logger                 *logging.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	jitter := cfg.Jitter
	if jitter.Min < 0 {
		jitter.Min = 0
	}
	if jitter.Max < jitter.Min {
		jitter.Max = jitter.Min
	}

	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		http: &fasthttp.Client{
			Name:                userAgent,
			MaxConnsPerHost:     64,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: 30 * time.Second,
		},
		competitionURLTemplate: strings.TrimSpace(cfg.CompetitionURLTemplate),
		matchURLTemplate:       strings.TrimSpace(cfg.MatchURLTemplate),
		eventURLTemplate:       strings.TrimSpace(cfg.EventURLTemplate),
		authorization:          cfg.Authorization,
		userAgent:              userAgent,
		timeout:                timeout,
		jitter:                 jitter,
		breaker:                resilience.NewGuard(cfg.CircuitBreaker),
		logger:                 logger.Named("waterpolo_client"),
		sleep:                  sleepContext,
	}
}

// FetchMatch returns the decoded match detail document for id.
func (c *Client) FetchMatch(ctx context.Context, id matchstats.MatchID) (any, error) {
	return c.FetchResource(ctx, c.matchURLTemplate, id.String())
}

// FetchEvents returns the decoded event document for id.
func (c *Client) FetchEvents(ctx context.Context, id matchstats.MatchID) (any, error) {
	return c.FetchResource(ctx, c.eventURLTemplate, id.String())
}

// FetchResource waits a random jitter interval, then issues one GET against
// template expanded with key. Failures come back as *matchstats.FetchError.
func (c *Client) FetchResource(ctx context.Context, template, key string) (any, error) {
	if err := c.sleep(ctx, c.nextJitter()); err != nil {
		return nil, &matchstats.FetchError{Kind: matchstats.FetchErrorTransport, Key: key, Err: err}
	}
	return c.get(ctx, expandEndpoint(template, key), key)
}

// DiscoverMatchIDs lists the distinct match ids of a competition. On failure
// it returns an empty set together with the error.
func (c *Client) DiscoverMatchIDs(ctx context.Context, competitionID int64) (matchstats.IDSet, error) {
	key := strconv.FormatInt(competitionID, 10)
	doc, err := c.get(ctx, expandEndpoint(c.competitionURLTemplate, key), key)
	if err != nil {
		return matchstats.NewIDSet(), err
	}

	ids, err := matchIDsFromCompetition(doc)
	if err != nil {
		return matchstats.NewIDSet(), err
	}
	return ids, nil
}

func matchIDsFromCompetition(doc any) (matchstats.IDSet, error) {
	root, ok := doc.(map[string]any)
	if !ok {
		return nil, &matchstats.SchemaError{Path: "matches"}
	}
	rawMatches, ok := root["matches"].([]any)
	if !ok {
		return nil, &matchstats.SchemaError{Path: "matches"}
	}

	ids := matchstats.NewIDSet()
	for _, item := range rawMatches {
		match, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, ok := matchstats.ParseMatchID(match["id"])
		if !ok {
			continue
		}
		ids.Add(id)
	}
	return ids, nil
}

func (c *Client) get(ctx context.Context, fullURL, key string) (any, error) {
	var body []byte
	err := c.breaker.Do(func() error {
		raw, reqErr := c.executeRequest(ctx, fullURL, key)
		body = raw
		return reqErr
	}, isCircuitFailure)
	if err != nil {
		if stderrors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.WarnContext(ctx, "upstream circuit breaker rejected request", "key", key, "state", c.breaker.State())
			return nil, &matchstats.FetchError{Kind: matchstats.FetchErrorTransport, Key: key, Err: err}
		}
		return nil, err
	}

	var doc any
	if err := decoder.Unmarshal(body, &doc); err != nil {
		return nil, &matchstats.FetchError{
			Kind:       matchstats.FetchErrorDecode,
			Key:        key,
			StatusCode: fasthttp.StatusOK,
			Err:        crerr.Wrapf(err, "body=%s", abbreviateBody(body)),
		}
	}
	return doc, nil
}

func (c *Client) executeRequest(ctx context.Context, fullURL, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &matchstats.FetchError{Kind: matchstats.FetchErrorTransport, Key: key, Err: err}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fullURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")
	req.Header.SetUserAgent(c.userAgent)
	if c.authorization != "" {
		req.Header.Set("Authorization", c.authorization)
	}

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, &matchstats.FetchError{
			Kind: matchstats.FetchErrorTransport,
			Key:  key,
			Err:  fmt.Errorf("send request: %s", sanitizeSensitiveText(err.Error(), c.authorization)),
		}
	}

	if status := resp.StatusCode(); status != fasthttp.StatusOK {
		c.logger.DebugContext(ctx, "upstream returned non-200", "url", fullURL, "status_code", status, "body", abbreviateBody(resp.Body()))
		return nil, &matchstats.FetchError{
			Kind:       matchstats.FetchErrorTransport,
			Key:        key,
			StatusCode: status,
			Err:        fmt.Errorf("upstream status=%d", status),
		}
	}

	// resp is released on return, so the body must be copied out.
	return append([]byte(nil), resp.Body()...), nil
}

func (c *Client) nextJitter() time.Duration {
	spread := c.jitter.Max - c.jitter.Min
	if spread <= 0 {
		return c.jitter.Min
	}
	return c.jitter.Min + time.Duration(rand.Int64N(int64(spread)+1))
}

// expandEndpoint substitutes key into the first placeholder template carries,
// or appends it when there is none.
func expandEndpoint(template, key string) string {
	for _, placeholder := range []string{placeholderCompetitionID, placeholderMatchID, placeholderID} {
		if strings.Contains(template, placeholder) {
			return strings.ReplaceAll(template, placeholder, key)
		}
	}
	return template + key
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Only transport-level failures count towards opening the breaker.
func isCircuitFailure(err error) bool {
	var fetchErr *matchstats.FetchError
	if !stderrors.As(err, &fetchErr) {
		return true
	}
	if fetchErr.Kind != matchstats.FetchErrorTransport {
		return false
	}
	return fetchErr.StatusCode == 0 || fetchErr.StatusCode == fasthttp.StatusTooManyRequests || fetchErr.StatusCode >= 500
}

func sanitizeSensitiveText(value, secret string) string {
	value = strings.TrimSpace(value)
	if value == "" || secret == "" {
		return value
	}
	return strings.ReplaceAll(value, secret, "REDACTED")
}

func abbreviateBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= maxLoggedBody {
		return text
	}
	return text[:maxLoggedBody] + "..."
}
