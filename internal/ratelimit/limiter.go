// Package ratelimit implements fixed-window request admission keyed by
// client identity. When the backing store is unreachable the limiter
// fails open: chat availability wins over strict enforcement.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/medassist/med-ai/backend/internal/store"
)

// DeniedError is returned when a client has exhausted its window. It is
// a distinct error kind so callers can surface a retry experience
// instead of a generic failure.
type DeniedError struct {
	RetryAfter time.Duration
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %ds", e.RetryAfterSeconds())
}

// RetryAfterSeconds rounds the wait up to whole seconds for headers.
func (e *DeniedError) RetryAfterSeconds() int {
	return int(math.Ceil(e.RetryAfter.Seconds()))
}

// Result reports the outcome of an admission check.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Info describes the current window for a client.
type Info struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Current   int       `json:"current"`
	Reset     time.Time `json:"reset"`
}

// Limiter enforces a fixed window of limit requests per window.
type Limiter struct {
	store  store.RateLimitStore
	limit  int
	window time.Duration
	now    func() time.Time
}

// New creates a limiter over the given record store.
func New(recordStore store.RateLimitStore, limit int, window time.Duration) *Limiter {
	return &Limiter{
		store:  recordStore,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Admit checks and updates the window for clientID. A denial is
// reported both in the Result and as a *DeniedError. Store failures are
// logged as a degraded condition and the request is admitted.
func (l *Limiter) Admit(ctx context.Context, clientID string) (Result, error) {
	now := l.now()

	rec, err := l.store.FindRecord(ctx, clientID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		insertErr := l.store.InsertRecord(ctx, &store.RateLimitRecord{
			ClientID:     clientID,
			RequestCount: 1,
			WindowStart:  now,
			UpdatedAt:    now,
		})
		if insertErr != nil {
			return l.failOpen(clientID, insertErr), nil
		}
		return Result{Allowed: true}, nil
	case err != nil:
		return l.failOpen(clientID, err), nil
	}

	if now.Sub(rec.WindowStart) > l.window {
		if resetErr := l.store.ResetRecord(ctx, clientID, now); resetErr != nil {
			return l.failOpen(clientID, resetErr), nil
		}
		return Result{Allowed: true}, nil
	}

	if rec.RequestCount >= l.limit {
		retryAfter := rec.WindowStart.Add(l.window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		res := Result{Allowed: false, RetryAfter: retryAfter}
		return res, &DeniedError{RetryAfter: retryAfter}
	}

	if incErr := l.store.IncrementRecord(ctx, clientID, now); incErr != nil {
		return l.failOpen(clientID, incErr), nil
	}
	return Result{Allowed: true}, nil
}

// Info reports the live window state for clientID without consuming a
// request. Store failures report a full window.
func (l *Limiter) Info(ctx context.Context, clientID string) Info {
	now := l.now()
	full := Info{
		Limit:     l.limit,
		Remaining: l.limit,
		Reset:     now.Add(l.window),
	}

	rec, err := l.store.FindRecord(ctx, clientID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("rate limit info unavailable", "client", clientID, "error", err)
		}
		return full
	}

	if now.Sub(rec.WindowStart) > l.window {
		return full
	}

	remaining := l.limit - rec.RequestCount
	if remaining < 0 {
		remaining = 0
	}
	return Info{
		Limit:     l.limit,
		Remaining: remaining,
		Current:   rec.RequestCount,
		Reset:     rec.WindowStart.Add(l.window),
	}
}

func (l *Limiter) failOpen(clientID string, err error) Result {
	slog.Warn("rate limit store unreachable, admitting request", "client", clientID, "error", err)
	return Result{Allowed: true}
}
