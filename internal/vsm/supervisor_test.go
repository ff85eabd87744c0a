package vsm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSupervisor_ReturnsImmediatelyOnGracefulStop(t *testing.T) {
	sv := NewSupervisor("test", RestartPolicy{BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond})
	done := make(chan struct{})
	go func() {
		sv.Run(context.Background(), func(ctx context.Context) error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return for a graceful stop")
	}
	if sv.Restarts() != 0 {
		t.Errorf("Restarts() = %d, want 0", sv.Restarts())
	}
}

func TestSupervisor_RestartsOnError(t *testing.T) {
	sv := NewSupervisor("test", RestartPolicy{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
	var calls atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sv.Run(ctx, func(ctx context.Context) error {
			n := calls.Add(1)
			if n >= 3 {
				cancel()
			}
			return errors.New("transient failure")
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after ctx cancellation")
	}
	if calls.Load() < 3 {
		t.Errorf("calls = %d, want at least 3 restarts", calls.Load())
	}
}

func TestSupervisor_RecoversFromPanic(t *testing.T) {
	sv := NewSupervisor("test", RestartPolicy{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
	var calls atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sv.Run(ctx, func(ctx context.Context) error {
			n := calls.Add(1)
			if n >= 2 {
				cancel()
				return nil
			}
			panic("actor crashed")
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after recovering from a panic")
	}
	if calls.Load() < 2 {
		t.Errorf("calls = %d, want at least 2 (one panic, one clean run)", calls.Load())
	}
}

func TestSupervisor_GivesUpAfterMaxRestarts(t *testing.T) {
	sv := NewSupervisor("test", RestartPolicy{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxRestarts: 2})
	var calls atomic.Int32

	done := make(chan struct{})
	go func() {
		sv.Run(context.Background(), func(ctx context.Context) error {
			calls.Add(1)
			return errors.New("always fails")
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not give up after MaxRestarts")
	}
	if sv.Restarts() != 3 {
		t.Errorf("Restarts() = %d, want 3 (initial failure + 2 retries before giving up)", sv.Restarts())
	}
}
