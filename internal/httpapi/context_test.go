package httpapi

import (
	"context"
	"testing"
	"time"
)

func TestJoinContextsCancelsFromEitherSide(t *testing.T) {
	a, cancelA := context.WithCancel(context.Background())
	b := context.Background()
	joined, cancel := joinContexts(a, b)
	defer cancel()

	cancelA()
	select {
	case <-joined.Done():
	case <-time.After(time.Second):
		t.Fatal("joined context not canceled after first parent")
	}

	c := context.Background()
	d, cancelD := context.WithCancel(context.Background())
	joined2, cancel2 := joinContexts(c, d)
	defer cancel2()

	cancelD()
	select {
	case <-joined2.Done():
	case <-time.After(time.Second):
		t.Fatal("joined context not canceled after second parent")
	}
}

func TestSetBaseContextNilResets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	SetBaseContext(ctx)
	cancel()
	if serverBaseCtx.Err() == nil {
		t.Fatal("base context should reflect cancellation")
	}
	SetBaseContext(nil)
	if serverBaseCtx.Err() != nil {
		t.Fatal("nil should reset to a live background context")
	}
}
