package job

import (
	"context"
	"time"
)

// gate serializes job execution: the engine runs one workflow at a
// time, so one in-flight slot daemon-wide. Callers wait up to maxWait
// for the slot before being turned away.
type gate struct {
	slot    chan struct{}
	maxWait time.Duration
}

func newGate(maxWait time.Duration) *gate {
	return &gate{slot: make(chan struct{}, 1), maxWait: maxWait}
}

// acquire reserves the slot. The returned release func must be called
// exactly once when the job finishes.
func (g *gate) acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	select {
	case g.slot <- struct{}{}:
		return func() { <-g.slot }, nil
	default:
	}
	if g.maxWait <= 0 {
		return func() {}, busyError{}
	}
	timer := time.NewTimer(g.maxWait)
	defer timer.Stop()
	select {
	case g.slot <- struct{}{}:
		return func() { <-g.slot }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		return func() {}, busyError{}
	}
}
