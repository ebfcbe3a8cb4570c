package binanceclient

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// responseMeta records what the transport saw for the request issued with a
// given context. go-binance only surfaces the response body on errors, so the
// status code and Retry-After header are captured here.
type responseMeta struct {
	status     int
	retryAfter time.Duration
}

type metaKey struct{}

func withResponseMeta(ctx context.Context) (context.Context, *responseMeta) {
	m := &responseMeta{}
	return context.WithValue(ctx, metaKey{}, m), m
}

func responseMetaFrom(ctx context.Context) *responseMeta {
	m, _ := ctx.Value(metaKey{}).(*responseMeta)
	return m
}

// limitedTransport throttles outgoing requests to the configured rate and
// records response metadata.
type limitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
	now     func() time.Time
}

func newLimitedTransport(base http.RoundTripper, rps float64, burst int) *limitedTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	var limiter *rate.Limiter
	if rps > 0 {
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &limitedTransport{base: base, limiter: limiter, now: time.Now}
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if m := responseMetaFrom(req.Context()); m != nil {
		m.status = resp.StatusCode
		m.retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), t.now())
	}
	return resp, nil
}

// parseRetryAfter accepts both forms allowed by RFC 9110: delay-seconds and HTTP-date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func isRateLimitStatus(status int) bool {
	// 418 is Binance's escalation after repeated 429s (IP auto-ban).
	return status == http.StatusTooManyRequests || status == http.StatusTeapot
}
