// Package twitch adapts the Helix client library to the upstream ports.
package twitch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nicklaw5/helix/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/flozac77/StreamZilla/internal/infrastructure/metrics"
	"github.com/flozac77/StreamZilla/internal/platform/retry"
)

const (
	maxBodyBytes     = 1 << 20
	maxRateLimitWait = 30 * time.Second
)

// ErrCircuitOpen is returned while the upstream circuit breaker rejects calls.
var ErrCircuitOpen = errors.New("upstream circuit breaker open")

// Config holds the upstream credentials and resilience settings.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	// APIBaseURL overrides the Helix base URL when set.
	APIBaseURL string

	RequestTimeout   time.Duration
	RateLimitCalls   int
	RateLimitPeriod  time.Duration
	MaxAttempts      int
	RateLimitBackoff time.Duration

	BreakerFailureThreshold uint32
	BreakerResetTimeout     time.Duration
	BreakerSuccessThreshold uint32
}

// Transport is the helix.HTTPClient every upstream call goes through. It
// applies a client-side rate limiter and a circuit breaker, and retries HTTP
// 429 answers with exponential backoff. Non-2xx answers are returned as
// responses so the library can decode them.
type Transport struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	policy     retry.Policy
	timeout    time.Duration
	clock      clockwork.Clock
}

var _ helix.HTTPClient = (*Transport)(nil)

// NewTransport creates a Transport. A nil httpClient uses a pooled client.
func NewTransport(cfg Config, httpClient *http.Client, clock clockwork.Clock) *Transport {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	limit := rate.Inf
	burst := 1
	if cfg.RateLimitCalls > 0 && cfg.RateLimitPeriod > 0 {
		limit = rate.Every(cfg.RateLimitPeriod / time.Duration(cfg.RateLimitCalls))
		burst = cfg.RateLimitCalls
	}

	failureThreshold := cfg.BreakerFailureThreshold
	if failureThreshold == 0 {
		failureThreshold = 5
	}

	t := &Transport{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		timeout:    cfg.RequestTimeout,
		clock:      clock,
		policy: retry.Policy{
			MaxAttempts:      cfg.MaxAttempts,
			RateLimitBackoff: cfg.RateLimitBackoff,
			MaxBackoff:       maxRateLimitWait,
			Delay:            retryAfter,
			Clock:            clock,
		},
	}

	t.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "twitch",
		MaxRequests: cfg.BreakerSuccessThreshold,
		Timeout:     cfg.BreakerResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return t
}

// BreakerState exposes the circuit breaker state for health reporting.
func (t *Transport) BreakerState() gobreaker.State {
	return t.breaker.State()
}

// statusError carries a non-2xx answer through the breaker and retry loop.
type statusError struct {
	resp       *http.Response
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.resp.StatusCode)
}

// Do implements helix.HTTPClient.
func (t *Transport) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := endpointLabel(req.URL.Path)

	policy := t.policy
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		metrics.UpstreamRetriesTotal.WithLabelValues(endpoint).Inc()
		slog.WarnContext(ctx, "upstream rate limited; retrying",
			"endpoint", endpoint,
			"attempt", attempt,
			"delay", backoff,
		)
	}

	resp, err := retry.Do(ctx, policy, classify, func() (*http.Response, error) {
		return t.attempt(ctx, endpoint, req)
	})
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return se.resp, nil
		}
		return nil, err
	}
	return resp, nil
}

func (t *Transport) attempt(ctx context.Context, endpoint string, req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("upstream %s: rate limiter: %w", endpoint, err)
	}

	out, err := t.breaker.Execute(func() (interface{}, error) {
		reqCtx := ctx
		if t.timeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, t.timeout)
			defer cancel()
		}

		r := req.Clone(reqCtx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("upstream %s: rewind body: %w", endpoint, err)
			}
			r.Body = body
		}

		resp, err := t.httpClient.Do(r)
		if err != nil {
			metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, metrics.UpstreamStatusError).Inc()
			return nil, fmt.Errorf("upstream %s: %w", endpoint, err)
		}

		// The body is buffered so it outlives the per-attempt timeout.
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		_ = resp.Body.Close()
		if err != nil {
			metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, metrics.UpstreamStatusError).Inc()
			return nil, fmt.Errorf("upstream %s: read body: %w", endpoint, err)
		}
		resp.Body = io.NopCloser(bytes.NewReader(body))
		resp.ContentLength = int64(len(body))

		metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, statusLabel(resp.StatusCode)).Inc()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, &statusError{resp: resp, retryAfter: RateLimitDelay(resp.Header, t.clock.Now())}
		case resp.StatusCode >= 500:
			return nil, &statusError{resp: resp}
		}
		return resp, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, metrics.UpstreamStatusCircuitOpen).Inc()
		return nil, fmt.Errorf("upstream %s: %w", endpoint, ErrCircuitOpen)
	}
	if err != nil {
		return nil, err
	}
	return out.(*http.Response), nil
}

func classify(err error) retry.Action {
	var se *statusError
	if errors.As(err, &se) && se.resp.StatusCode == http.StatusTooManyRequests {
		return retry.After
	}
	return retry.Stop
}

func retryAfter(err error) time.Duration {
	var se *statusError
	if errors.As(err, &se) {
		return se.retryAfter
	}
	return 0
}

// Only transport failures and 5xx count toward tripping the breaker.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.resp.StatusCode < 500
	}
	return errors.Is(err, context.Canceled)
}

// RateLimitDelay derives the wait before retrying a rate-limited call from
// Retry-After (seconds or HTTP date) or Ratelimit-Reset (unix seconds).
// It returns zero when neither header is usable and caps the wait at 30s.
func RateLimitDelay(header http.Header, now time.Time) time.Duration {
	if v := strings.TrimSpace(header.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return capDelay(time.Duration(secs) * time.Second)
		}
		if t, err := http.ParseTime(v); err == nil {
			return capDelay(t.Sub(now))
		}
	}

	if reset := strings.TrimSpace(header.Get("Ratelimit-Reset")); reset != "" {
		if unix, err := strconv.ParseInt(reset, 10, 64); err == nil {
			return capDelay(time.Unix(unix, 0).Sub(now))
		}
	}

	return 0
}

func capDelay(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > maxRateLimitWait {
		return maxRateLimitWait
	}
	return d
}

func statusLabel(code int) string {
	if code == http.StatusTooManyRequests {
		return "429"
	}
	return fmt.Sprintf("%dxx", code/100)
}

// endpointLabel maps a request path to the metrics and log label.
func endpointLabel(path string) string {
	switch {
	case strings.HasSuffix(path, "/token"):
		return EndpointToken
	case strings.HasSuffix(path, "/validate"):
		return EndpointValidate
	case strings.HasSuffix(path, "/search/categories"):
		return EndpointSearchCategories
	case strings.HasSuffix(path, "/streams"):
		return EndpointStreams
	case strings.HasSuffix(path, "/videos"):
		return EndpointVideos
	case strings.HasSuffix(path, "/users"):
		return EndpointUsers
	default:
		return "other"
	}
}
