// Package retry classifies YouTube API failures and drives bounded
// retries with exponential backoff. Quota exhaustion is not retried here;
// it is surfaced as a typed signal so the caller can pause the run and
// resume after the pool resets.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
)

// Kind buckets an API failure by how the caller should react.
type Kind int

const (
	// KindTransient failures (timeouts, 5xx, 429) are retried with backoff.
	KindTransient Kind = iota
	// KindQuota failures mean the credential's daily budget is spent.
	// Retrying cannot help until the quota resets.
	KindQuota
	// KindPermanent failures (deleted or private records, bad requests)
	// are never retried.
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindQuota:
		return "quota"
	case KindPermanent:
		return "permanent"
	}
	return "unknown"
}

// quotaReasons are the googleapi 403 reasons that signal spent budget
// rather than a denied resource.
var quotaReasons = map[string]bool{
	"quotaExceeded":         true,
	"dailyLimitExceeded":    true,
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
}

// Classify maps an error to its retry kind. Anything unrecognized is
// treated as permanent so a new failure mode can never retry forever.
func Classify(err error) Kind {
	if err == nil {
		return KindPermanent
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	if errors.Is(err, context.Canceled) {
		return KindPermanent
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 403:
			for _, item := range apiErr.Errors {
				if quotaReasons[item.Reason] {
					return KindQuota
				}
			}
			return KindPermanent
		case apiErr.Code == 429:
			return KindTransient
		case apiErr.Code >= 500:
			return KindTransient
		default:
			return KindPermanent
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	return KindPermanent
}

// ErrQuotaSignal wraps a quota-classified API error. Callers treat it
// like pool exhaustion: pause the run, keep completed work, resume later.
type ErrQuotaSignal struct {
	Err error
}

func (e *ErrQuotaSignal) Error() string {
	return fmt.Sprintf("quota reported exhausted upstream: %v", e.Err)
}

func (e *ErrQuotaSignal) Unwrap() error {
	return e.Err
}

// IsQuotaSignal reports whether err carries an upstream quota rejection.
func IsQuotaSignal(err error) bool {
	var target *ErrQuotaSignal
	return errors.As(err, &target)
}

// Config bounds the retry loop. OnFailure, when set, is invoked once per
// classified failure; the collector feeds it into a metrics counter.
type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
	OnFailure      func(Kind)
}

// Controller runs operations under the retry policy. It keeps no state
// between calls; the attempt counter lives inside a single Do.
type Controller struct {
	cfg Config
	log *zap.Logger
}

// NewController builds a controller, backfilling zero config values with
// the defaults used across the collector.
func NewController(cfg Config, log *zap.Logger) *Controller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 2 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Controller{cfg: cfg, log: log}
}

// Do runs fn until it succeeds, fails permanently, signals quota
// exhaustion, or the attempt ceiling is reached. Transient failures back
// off exponentially with jitter between attempts.
//
// Attempts run detached from the caller's cancellation, bounded only by
// the per-attempt timeout: by the time Do is entered the quota units for
// the call are already reserved, so an attempt in flight is allowed to
// finish and produce its record. Cancellation stops new attempts and
// cuts the backoff wait short.
func (c *Controller) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 && ctx.Err() != nil {
			return ctx.Err()
		}

		attemptCtx := context.WithoutCancel(ctx)
		cancel := context.CancelFunc(func() {})
		if c.cfg.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(attemptCtx, c.cfg.AttemptTimeout)
		}
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}

		kind := Classify(err)
		if c.cfg.OnFailure != nil {
			c.cfg.OnFailure(kind)
		}

		switch kind {
		case KindQuota:
			c.log.Warn("Upstream quota rejection",
				zap.String("operation", op),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return &ErrQuotaSignal{Err: err}
		case KindPermanent:
			return err
		}

		lastErr = err
		if attempt == c.cfg.MaxAttempts {
			break
		}

		delay := c.backoff(attempt)
		c.log.Warn("Transient failure, backing off",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%s: %d attempts exhausted: %w", op, c.cfg.MaxAttempts, lastErr)
}

// backoff computes exponential backoff with +/-25% jitter, capped at the
// configured maximum.
func (c *Controller) backoff(attempt int) time.Duration {
	base := float64(c.cfg.InitialBackoff) * math.Pow(2, float64(attempt-1))
	if base > float64(c.cfg.MaxBackoff) {
		base = float64(c.cfg.MaxBackoff)
	}

	jitter := base * 0.25 * (2*rand.Float64() - 1)
	backoff := base + jitter

	if backoff < 0 {
		backoff = 0
	}
	if backoff > float64(c.cfg.MaxBackoff) {
		backoff = float64(c.cfg.MaxBackoff)
	}

	return time.Duration(backoff)
}
