package rate

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitError is returned when calls are blocked.
type RateLimitError struct {
	Provider string
	Reason   string
	RetryAt  time.Time
}

func (e RateLimitError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("%s rate limited: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s rate limited: %s (retry at %s)", e.Provider, e.Reason, e.RetryAt.UTC().Format(time.RFC3339))
}

type Decision struct {
	Allowed bool
	Reason  string
	RetryAt time.Time
}

// Guard enforces rate limits for a provider. Calls are refused, never delayed.
type Guard struct {
	decl     Declaration
	limiters map[Window]*rate.Limiter

	mu         sync.Mutex
	remaining  map[Window]budget
	cooldown   time.Time
	lastStatus int
}

// budget is a provider-reported remaining count, valid for one window.
type budget struct {
	remaining int
	expires   time.Time
}

// WrapHTTP wraps an http.Client with rate-limit enforcement.
func WrapHTTP(decl Declaration, base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	client := *base
	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client.Transport = &roundTripper{
		base:  transport,
		guard: NewGuard(decl),
	}
	return &client
}

func NewGuard(decl Declaration) *Guard {
	limiters := make(map[Window]*rate.Limiter, len(decl.Limits()))
	for window, limit := range decl.Limits() {
		every := window.Duration() / time.Duration(limit)
		limiters[window] = rate.NewLimiter(rate.Every(every), limit)
	}
	return &Guard{
		decl:      decl,
		limiters:  limiters,
		remaining: make(map[Window]budget),
	}
}

type roundTripper struct {
	base  http.RoundTripper
	guard *Guard
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	decision := rt.guard.ShouldCall(time.Now())
	if !decision.Allowed {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, RateLimitError{
			Provider: rt.guard.decl.ProviderName(),
			Reason:   decision.Reason,
			RetryAt:  decision.RetryAt,
		}
	}

	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	rt.guard.RecordResponse(resp.StatusCode, resp.Header)
	return resp, nil
}

// ShouldCall decides whether a request may go out at now and, if so, consumes
// one token from every window.
func (g *Guard) ShouldCall(now time.Time) Decision {
	decision := g.decide(now)
	if !decision.Allowed {
		refusedCounter.WithLabelValues(g.decl.ProviderName(), decision.Reason).Inc()
	}
	return decision
}

func (g *Guard) decide(now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.cooldown.IsZero() && now.Before(g.cooldown) {
		return Decision{Allowed: false, Reason: "cooldown", RetryAt: g.cooldown}
	}

	for window, b := range g.remaining {
		if !now.Before(b.expires) {
			delete(g.remaining, window)
			continue
		}
		if b.remaining <= 0 {
			return Decision{Allowed: false, Reason: "budget", RetryAt: b.expires}
		}
	}

	for _, limiter := range g.limiters {
		if tokens := limiter.TokensAt(now); tokens < 1 {
			wait := time.Duration((1 - tokens) / float64(limiter.Limit()) * float64(time.Second))
			return Decision{Allowed: false, Reason: "budget", RetryAt: now.Add(wait)}
		}
	}
	for window, limiter := range g.limiters {
		limiter.AllowN(now, 1)
		remainingGauge.WithLabelValues(g.decl.ProviderName(), window.String()).Set(limiter.TokensAt(now))
	}
	for window, b := range g.remaining {
		b.remaining--
		g.remaining[window] = b
	}

	return Decision{Allowed: true}
}

// RecordResponse folds response status and rate headers into the guard.
func (g *Guard) RecordResponse(status int, headers http.Header) {
	g.recordResponse(time.Now(), status, headers)
}

func (g *Guard) recordResponse(now time.Time, status int, headers http.Header) {
	g.mu.Lock()
	defer g.mu.Unlock()

	provider := g.decl.ProviderName()
	g.lastStatus = status
	lastStatusGauge.WithLabelValues(provider).Set(float64(status))

	cfg := g.decl.Headers()
	if retryAfter, ok := retryAfterSeconds(headers.Get(cfg.RetryAfter), now); ok {
		g.cooldown = now.Add(retryAfter)
		retryAfterGauge.WithLabelValues(provider).Set(retryAfter.Seconds())
	} else if reset := headerInt(headers, cfg.ResetAfter); reset > 0 && status == http.StatusTooManyRequests {
		g.cooldown = now.Add(time.Duration(reset) * time.Second)
		retryAfterGauge.WithLabelValues(provider).Set(float64(reset))
	}

	updateWindow := func(window Window, remaining int) {
		if remaining < 0 {
			return
		}
		g.remaining[window] = budget{remaining: remaining, expires: now.Add(window.Duration())}
		remainingGauge.WithLabelValues(provider, window.String()).Set(float64(remaining))
	}
	updateWindow(Minute, headerInt(headers, cfg.RemainingMinute))
	updateWindow(Day, headerInt(headers, cfg.RemainingDay))
}

// LastStatus returns the most recent HTTP status seen by the guard.
func (g *Guard) LastStatus() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastStatus
}

// retryAfterSeconds parses Retry-After as delta seconds or an HTTP date.
func retryAfterSeconds(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	at, err := http.ParseTime(value)
	if err != nil || !at.After(now) {
		return 0, false
	}
	return at.Sub(now), true
}

func headerInt(h http.Header, key string) int {
	if key == "" {
		return -1
	}
	val := strings.TrimSpace(h.Get(key))
	if val == "" {
		return -1
	}
	out, err := strconv.Atoi(val)
	if err != nil {
		return -1
	}
	return out
}
