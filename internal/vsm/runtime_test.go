package vsm

import (
	"context"
	"testing"
	"time"

	"github.com/vsmcore/vsmcore/internal/bus"
)

func TestRuntime_AlgedonicSignalReachesS5(t *testing.T) {
	b := bus.New(bus.DefaultConfig())
	rt := NewRuntime(b, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt.Start(ctx)

	// give the consumption goroutine a moment to subscribe
	time.Sleep(10 * time.Millisecond)

	if err := b.Publish(bus.Envelope{
		Channel: bus.ChannelAlgedonic,
		Payload: AlgedonicSignal{Intensity: 0.9, Reason: "overload"},
	}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		id := rt.S5.SetIdentity(nil)
		if id.Traits["last_algedonic_reason"] == "overload" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("S5 never observed the algedonic signal")
}

func TestRuntime_LowIntensitySignalDoesNotRecord(t *testing.T) {
	b := bus.New(bus.DefaultConfig())
	rt := NewRuntime(b, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt.Start(ctx)

	time.Sleep(10 * time.Millisecond)

	if err := b.Publish(bus.Envelope{
		Channel: bus.ChannelAlgedonic,
		Payload: AlgedonicSignal{Intensity: 0.1, Reason: "minor-blip"},
	}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	id := rt.S5.SetIdentity(nil)
	if _, ok := id.Traits["last_algedonic_reason"]; ok {
		t.Error("expected low-intensity signal to be ignored")
	}
}

func TestRuntime_StopsOnContextCancellation(t *testing.T) {
	b := bus.New(bus.DefaultConfig())
	rt := NewRuntime(b, 0)

	ctx, cancel := context.WithCancel(context.Background())
	rt.Start(ctx)
	time.Sleep(10 * time.Millisecond)
	cancel()

	// Publishing after cancellation should not panic or block; the
	// subscriber's mailbox simply stops being drained.
	if err := b.Publish(bus.Envelope{
		Channel: bus.ChannelAlgedonic,
		Payload: AlgedonicSignal{Intensity: 0.9, Reason: "after-stop"},
	}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}
