package joblock

import (
	"context"
	"testing"
	"time"
)

func TestLocalLockerSingleFlight(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "anomaly_scan", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire should succeed, got ok=%v err=%v", ok, err)
	}
	ok, err = l.Acquire(ctx, "anomaly_scan", time.Minute)
	if err != nil || ok {
		t.Fatalf("second acquire should be refused, got ok=%v err=%v", ok, err)
	}
	// an unrelated job is not blocked
	ok, _ = l.Acquire(ctx, "payout_batch", time.Minute)
	if !ok {
		t.Fatal("different job names must not contend")
	}

	if err := l.Release(ctx, "anomaly_scan"); err != nil {
		t.Fatal(err)
	}
	ok, _ = l.Acquire(ctx, "anomaly_scan", time.Minute)
	if !ok {
		t.Fatal("acquire after release should succeed")
	}
}
