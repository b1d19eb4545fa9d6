package job

import (
	"context"
	"testing"
	"time"
)

func TestGateAcquireRelease(t *testing.T) {
	g := newGate(0)
	release, err := g.acquire(context.Background())
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := g.acquire(context.Background()); !IsBusy(err) {
		t.Fatalf("expected busy while slot held, got %v", err)
	}
	release()
	release2, err := g.acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	release2()
}

func TestGateWaitsForSlot(t *testing.T) {
	g := newGate(500 * time.Millisecond)
	release, err := g.acquire(context.Background())
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	go func() {
		time.Sleep(50 * time.Millisecond)
		release()
	}()
	release2, err := g.acquire(context.Background())
	if err != nil {
		t.Fatalf("expected slot after release, got %v", err)
	}
	release2()
}

func TestGateWaitTimesOut(t *testing.T) {
	g := newGate(30 * time.Millisecond)
	release, err := g.acquire(context.Background())
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer release()
	if _, err := g.acquire(context.Background()); !IsBusy(err) {
		t.Fatalf("expected busy after wait, got %v", err)
	}
}

func TestGateCanceledContext(t *testing.T) {
	g := newGate(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.acquire(ctx); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
