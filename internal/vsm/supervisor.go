package vsm

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"time"

	"github.com/vsmcore/vsmcore/internal/errs"
	"github.com/vsmcore/vsmcore/internal/infra/metrics"
)

// RestartPolicy controls how a Supervisor backs off between restarts of a
// failed actor loop.
type RestartPolicy struct {
	BaseDelay   time.Duration // default 1s
	MaxDelay    time.Duration // default 30s
	MaxRestarts int           // 0 means unlimited
}

// DefaultRestartPolicy returns production defaults.
func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Supervisor restarts an actor's run loop with escalating backoff when it
// returns an error or panics, mirroring the subsystem actor state
// machine: running -> terminated -> restarted(clean_state). Each restart
// invokes fn again from scratch, so fn is responsible for resetting
// whatever per-run state it owns — the supervisor itself is stateless
// about the actor's data, only about failure counts and timing.
type Supervisor struct {
	mu       sync.Mutex
	name     string
	policy   RestartPolicy
	restarts int
}

// NewSupervisor creates a supervisor for an actor named name.
func NewSupervisor(name string, policy RestartPolicy) *Supervisor {
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	return &Supervisor{name: name, policy: policy}
}

// Run invokes fn, restarting it with exponential backoff on error or
// panic until fn returns nil (graceful stop), ctx is done, or
// MaxRestarts is exceeded.
func (sv *Supervisor) Run(ctx context.Context, fn func(ctx context.Context) error) {
	delay := sv.policy.BaseDelay
	for {
		err := sv.runOnce(ctx, fn)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			return
		}

		sv.mu.Lock()
		sv.restarts++
		attempt := sv.restarts
		sv.mu.Unlock()
		metrics.SubsystemRestarts.WithLabelValues(sv.name).Inc()

		if sv.policy.MaxRestarts > 0 && attempt > sv.policy.MaxRestarts {
			errs.Log(slog.Default(), errs.New(errs.KindFatal, fmt.Errorf("%s: exceeded max restarts (%d): %w", sv.name, sv.policy.MaxRestarts, err), map[string]string{"cause": err.Error()}), sv.name)
			return
		}
		log.Printf("[vsm] %s: actor failed (%v), restarting in %s (attempt %d)", sv.name, err, delay, attempt)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		delay *= 2
		if delay > sv.policy.MaxDelay {
			delay = sv.policy.MaxDelay
		}
	}
}

func (sv *Supervisor) runOnce(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Restarts reports how many times the supervised actor has been
// restarted.
func (sv *Supervisor) Restarts() int {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.restarts
}
