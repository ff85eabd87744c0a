package vsm

import (
	"context"
	"time"

	"github.com/vsmcore/vsmcore/internal/bus"
)

// Runtime wires the five subsystems together and drives S5's mandatory
// consumption of the algedonic channel. S1-S4 serialize through their own
// mutexes and are invoked directly by callers (the bus's command/intel/
// horizontal channels are dispatched to them by whatever wiring owns
// those subscriptions — typically the capability registry and tool-chain
// engine); S5 additionally runs a dedicated mailbox loop here because it
// is the one subsystem every algedonic signal must reach.
type Runtime struct {
	S1 *S1
	S2 *S2
	S3 *S3
	S4 *S4
	S5 *S5

	bus        *bus.Bus
	supervisor *Supervisor
}

// NewRuntime creates a Runtime with fresh subsystems, subscribed to b.
// scanningIntervalMs configures S4's environmental scan cadence.
func NewRuntime(b *bus.Bus, scanningIntervalMs int64) *Runtime {
	return &Runtime{
		S1:         NewS1(),
		S2:         NewS2(),
		S3:         NewS3(),
		S4:         NewS4(time.Duration(scanningIntervalMs) * time.Millisecond),
		S5:         NewS5(),
		bus:        b,
		supervisor: NewSupervisor("s5-algedonic", DefaultRestartPolicy()),
	}
}

// Start subscribes S5 to the algedonic channel (preempting any command
// traffic also addressed to it) and runs the supervised consumption loop
// until ctx is done.
func (rt *Runtime) Start(ctx context.Context) {
	mb := rt.bus.Subscribe("s5-algedonic",
		bus.Filter{Channel: bus.ChannelAlgedonic},
		bus.Filter{Channel: bus.ChannelCommand, Pattern: "system.5.*"},
	)
	go rt.supervisor.Run(ctx, func(ctx context.Context) error {
		return rt.runS5Loop(ctx, mb)
	})
}

func (rt *Runtime) runS5Loop(ctx context.Context, mb *bus.Mailbox) error {
	for {
		env, ok := mb.Next(ctx)
		if !ok {
			return nil
		}
		if sig, ok := env.Payload.(AlgedonicSignal); ok {
			rt.S5.HandleAlgedonic(sig)
		}
	}
}
