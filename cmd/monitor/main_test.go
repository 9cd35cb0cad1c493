package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeLocker implements joblock.Locker for tests
type fakeLocker struct {
	grant    bool
	err      error
	acquires int
	releases int
}

func (f *fakeLocker) Acquire(ctx context.Context, job string, ttl time.Duration) (bool, error) {
	f.acquires++
	return f.grant, f.err
}

func (f *fakeLocker) Release(ctx context.Context, job string) error {
	f.releases++
	return nil
}

func TestRunLocked_RunsAndReleases(t *testing.T) {
	l := &fakeLocker{grant: true}
	ran := false
	runLocked(context.Background(), l, "anomaly_scan", time.Minute, discardLogger(), func(ctx context.Context) error {
		ran = true
		if _, ok := ctx.Deadline(); !ok {
			t.Error("job context should carry the lock TTL as a deadline")
		}
		return nil
	})
	if !ran {
		t.Fatal("job should have run")
	}
	if l.releases != 1 {
		t.Fatalf("lock should be released exactly once, got %d", l.releases)
	}
}

func TestRunLocked_SkipsWhenHeldElsewhere(t *testing.T) {
	l := &fakeLocker{grant: false}
	runLocked(context.Background(), l, "payout_batch", time.Minute, discardLogger(), func(ctx context.Context) error {
		t.Fatal("job must not run when the lock is held elsewhere")
		return nil
	})
	if l.releases != 0 {
		t.Fatal("a lock we never held must not be released")
	}
}

func TestRunLocked_LockErrorSkipsJob(t *testing.T) {
	l := &fakeLocker{err: errors.New("redis down")}
	runLocked(context.Background(), l, "anomaly_scan", time.Minute, discardLogger(), func(ctx context.Context) error {
		t.Fatal("job must not run when the lock cannot be acquired")
		return nil
	})
	if l.releases != 0 {
		t.Fatal("no release without an acquire")
	}
}

func TestRunLocked_JobErrorStillReleases(t *testing.T) {
	l := &fakeLocker{grant: true}
	runLocked(context.Background(), l, "payout_batch", time.Minute, discardLogger(), func(ctx context.Context) error {
		return errors.New("batch failed")
	})
	if l.releases != 1 {
		t.Fatalf("lock must be released after a failed run, got %d", l.releases)
	}
}
