package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/medassist/med-ai/backend/internal/store"
)

func newTestLimiter(limit int, window time.Duration) (*Limiter, *time.Time) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l := New(store.NewMemory(), limit, window)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAdmitWindowCorrectness(t *testing.T) {
	l, now := newTestLimiter(60, time.Minute)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		res, err := l.Admit(ctx, "1.2.3.4")
		if err != nil || !res.Allowed {
			t.Fatalf("request %d: expected allowed, got res=%+v err=%v", i+1, res, err)
		}
	}

	res, err := l.Admit(ctx, "1.2.3.4")
	if res.Allowed {
		t.Fatal("61st request within window must be denied")
	}
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	if denied.RetryAfterSeconds() != 60 {
		t.Fatalf("unexpected retry after: %d", denied.RetryAfterSeconds())
	}

	*now = now.Add(time.Minute + time.Second)
	res, err = l.Admit(ctx, "1.2.3.4")
	if err != nil || !res.Allowed {
		t.Fatalf("request after window must be allowed, got res=%+v err=%v", res, err)
	}
}

func TestAdmitIsolatesClients(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	ctx := context.Background()

	if _, err := l.Admit(ctx, "a"); err != nil {
		t.Fatalf("client a first request: %v", err)
	}
	if _, err := l.Admit(ctx, "b"); err != nil {
		t.Fatalf("client b must have its own window: %v", err)
	}
	if _, err := l.Admit(ctx, "a"); err == nil {
		t.Fatal("client a second request must be denied")
	}
}

type failingRecordStore struct{}

func (failingRecordStore) FindRecord(context.Context, string) (*store.RateLimitRecord, error) {
	return nil, store.ErrUnavailable
}
func (failingRecordStore) InsertRecord(context.Context, *store.RateLimitRecord) error {
	return store.ErrUnavailable
}
func (failingRecordStore) ResetRecord(context.Context, string, time.Time) error {
	return store.ErrUnavailable
}
func (failingRecordStore) IncrementRecord(context.Context, string, time.Time) error {
	return store.ErrUnavailable
}

func TestAdmitFailsOpenWhenStoreUnavailable(t *testing.T) {
	l := New(failingRecordStore{}, 1, time.Minute)

	res, err := l.Admit(context.Background(), "1.2.3.4")
	if err != nil {
		t.Fatalf("store failure must not surface as an error: %v", err)
	}
	if !res.Allowed {
		t.Fatal("store failure must fail open")
	}
}

func TestInfoReportsRemaining(t *testing.T) {
	l, _ := newTestLimiter(60, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := l.Admit(ctx, "1.2.3.4"); err != nil {
			t.Fatalf("Admit err: %v", err)
		}
	}

	info := l.Info(ctx, "1.2.3.4")
	if info.Current != 3 || info.Remaining != 57 {
		t.Fatalf("unexpected info: %+v", info)
	}

	fresh := l.Info(ctx, "unseen")
	if fresh.Remaining != 60 || fresh.Current != 0 {
		t.Fatalf("unexpected info for unseen client: %+v", fresh)
	}
}
