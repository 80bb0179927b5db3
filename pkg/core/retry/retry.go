// Package retry runs a function with bounded attempts and exponential backoff.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds the backoff policy.
type Config struct {
	Name        string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	JitterRange float64 // fraction of the delay, 0..1
	// Retryable decides whether an error is worth another attempt. Nil retries
	// everything.
	Retryable func(error) bool
}

// Default mirrors a 3-attempt exponential policy bounded to 1s..10s.
func Default(name string) Config {
	return Config{
		Name:        name,
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
		JitterRange: 0.1,
	}
}

type Retryer struct {
	config Config
	log    *logrus.Entry
	sleep  func(context.Context, time.Duration) error

	mu  sync.Mutex
	rng *rand.Rand
}

func New(config Config, logger *logrus.Logger) *Retryer {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 10 * time.Second
	}
	if config.Multiplier <= 1.0 {
		config.Multiplier = 2.0
	}
	if config.JitterRange < 0 || config.JitterRange > 1.0 {
		config.JitterRange = 0.1
	}
	if config.Name == "" {
		config.Name = "retry"
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Retryer{
		config: config,
		log:    logger.WithField("component", config.Name),
		sleep:  sleepContext,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithSleep replaces the wait between attempts. Tests use it to avoid real delays.
func (r *Retryer) WithSleep(sleep func(context.Context, time.Duration) error) *Retryer {
	r.sleep = sleep
	return r
}

// Do calls fn until it succeeds, returns a non-retryable error, the context
// ends, or the attempts run out.
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				r.log.Debugf("succeeded on attempt %d", attempt)
			}
			return nil
		}
		lastErr = err

		if r.config.Retryable != nil && !r.config.Retryable(err) {
			return err
		}
		if attempt == r.config.MaxAttempts {
			break
		}

		delay := r.delay(attempt)
		r.log.WithError(err).Warnf("attempt %d failed, retrying in %v", attempt, delay)
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("%s: %d attempts failed: %w", r.config.Name, r.config.MaxAttempts, lastErr)
}

func (r *Retryer) delay(attempt int) time.Duration {
	d := float64(r.config.BaseDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	if d > float64(r.config.MaxDelay) {
		d = float64(r.config.MaxDelay)
	}

	if r.config.JitterRange > 0 {
		r.mu.Lock()
		jitter := r.rng.Float64() * r.config.JitterRange * d
		if r.rng.Float64() < 0.5 {
			d -= jitter
		} else {
			d += jitter
		}
		r.mu.Unlock()
	}

	if d < float64(r.config.BaseDelay) {
		d = float64(r.config.BaseDelay)
	}
	if d > float64(r.config.MaxDelay) {
		d = float64(r.config.MaxDelay)
	}
	return time.Duration(d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
