package transport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxTries      = 3
	DefaultMaxRetryAfter = 30 * time.Second
)

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return "retryable status " + strconv.Itoa(e.code)
}

// RetryTransport resends requests that failed at the network level or were answered with
// 429/5xx, with exponential backoff. Retry-After (in seconds) replaces the backoff interval
// when present. Requests whose body cannot be replayed are sent once.
type RetryTransport struct {
	next          http.RoundTripper
	maxTries      uint
	maxRetryAfter time.Duration
	newBackOff    func() backoff.BackOff
	logger        zerolog.Logger
}

type RetryOption func(*RetryTransport)

func WithMaxTries(n uint) RetryOption {
	return func(t *RetryTransport) {
		t.maxTries = n
	}
}

// WithBackOff sets the backoff policy factory; a fresh policy is used for every request.
func WithBackOff(newBackOff func() backoff.BackOff) RetryOption {
	return func(t *RetryTransport) {
		t.newBackOff = newBackOff
	}
}

// WithMaxRetryAfter caps the honoured Retry-After; longer waits end the retries.
func WithMaxRetryAfter(d time.Duration) RetryOption {
	return func(t *RetryTransport) {
		t.maxRetryAfter = d
	}
}

func WithRetryLogger(logger zerolog.Logger) RetryOption {
	return func(t *RetryTransport) {
		t.logger = logger
	}
}

func NewRetryTransport(next http.RoundTripper, options ...RetryOption) *RetryTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	t := &RetryTransport{
		next:          next,
		maxTries:      DefaultMaxTries,
		maxRetryAfter: DefaultMaxRetryAfter,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.maxTries <= 1 || (req.Body != nil && req.Body != http.NoBody && req.GetBody == nil) {
		return t.next.RoundTrip(req)
	}

	ctx := req.Context()
	var last *http.Response
	attempt := 0

	resp, err := backoff.Retry(ctx, func() (*http.Response, error) {
		if last != nil {
			drain(last)
			last = nil
		}

		out := req
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			out = req.Clone(ctx)
			out.Body = body
		}
		attempt++

		resp, err := t.next.RoundTrip(out)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if !retryableStatus(resp.StatusCode) {
			return resp, nil
		}

		last = resp
		if wait, ok := retryAfter(resp); ok {
			if wait > t.maxRetryAfter {
				return resp, backoff.Permanent(&statusError{code: resp.StatusCode})
			}
			return resp, backoff.RetryAfter(int(wait / time.Second))
		}
		return resp, &statusError{code: resp.StatusCode}
	},
		backoff.WithBackOff(t.newBackOff()),
		backoff.WithMaxTries(t.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			t.logger.Debug().Err(err).Str("url", req.URL.Redacted()).Dur("retry_in", next).Msg("retrying request")
		}),
	)
	if err == nil {
		return resp, nil
	}

	// retries exhausted on a retryable status: hand the last response to the caller
	if last != nil && ctx.Err() == nil {
		var se *statusError
		var ra *backoff.RetryAfterError
		if errors.As(err, &se) || errors.As(err, &ra) {
			return last, nil
		}
	}
	if last != nil {
		drain(last)
	}
	return nil, err
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func retryAfter(resp *http.Response) (time.Duration, bool) {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

// RateLimitedTransport waits for the limiter before every request.
type RateLimitedTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

// NewRateLimitedTransport allows perSecond requests per second with the given burst.
func NewRateLimitedTransport(next http.RoundTripper, perSecond float64, burst int) *RateLimitedTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedTransport{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (t *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		closeBody(req)
		return nil, errors.Wrap(err, "RateLimitedTransport.RoundTrip")
	}
	return t.next.RoundTrip(req)
}
