package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestRetryer_SucceedsAfterFailures(t *testing.T) {
	r := New(Default("test"), logrus.New()).WithSleep(noSleep)

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryer_GivesUpAfterMaxAttempts(t *testing.T) {
	r := New(Default("test"), logrus.New()).WithSleep(noSleep)
	sentinel := errors.New("down")

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryer_NonRetryableStopsImmediately(t *testing.T) {
	cfg := Default("test")
	permanent := errors.New("bad input")
	cfg.Retryable = func(err error) bool { return !errors.Is(err, permanent) }
	r := New(cfg, logrus.New()).WithSleep(noSleep)

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return permanent
	})
	if err != permanent {
		t.Fatalf("expected permanent error unchanged, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryer_DelayBounded(t *testing.T) {
	cfg := Default("test")
	r := New(cfg, logrus.New())
	for attempt := 1; attempt <= 10; attempt++ {
		d := r.delay(attempt)
		if d < cfg.BaseDelay || d > cfg.MaxDelay {
			t.Errorf("attempt %d: delay %v outside [%v, %v]", attempt, d, cfg.BaseDelay, cfg.MaxDelay)
		}
	}
}

func TestRetryer_ContextCancelled(t *testing.T) {
	r := New(Default("test"), logrus.New()).WithSleep(noSleep)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Do(ctx, func(context.Context) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
