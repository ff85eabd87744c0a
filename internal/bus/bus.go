// Package bus implements the topic-addressed publish/subscribe fabric that
// connects the subsystem runtime, the capability registry, and the CRDT
// context store. Five logical channels carry fixed default priorities;
// algedonic messages always preempt everything else queued at a shared
// subscriber.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vsmcore/vsmcore/internal/errs"
	"github.com/vsmcore/vsmcore/internal/hlc"
	"github.com/vsmcore/vsmcore/internal/infra/healing"
	"github.com/vsmcore/vsmcore/internal/infra/metrics"
)

// Channel names one of the bus's five logical channels.
type Channel string

const (
	ChannelCommand    Channel = "command"
	ChannelAudit      Channel = "audit"
	ChannelAlgedonic  Channel = "algedonic"
	ChannelHorizontal Channel = "horizontal"
	ChannelIntel      Channel = "intel"
)

// Routing describes how a channel's messages fan out to subscribers.
type Routing string

const (
	RoutingTopic  Routing = "topic"  // delivered to subscribers whose filter matches the routing key
	RoutingFanout Routing = "fanout" // delivered to every subscriber regardless of routing key
	RoutingDirect Routing = "direct" // delivered to every subscriber, preempting other channels
)

// ChannelSpec is the fixed routing/durability/priority contract for a
// channel.
type ChannelSpec struct {
	Routing         Routing
	Durable         bool
	DefaultPriority int
	UrgentPriority  int           // 0 if the channel has no urgent tier
	TTL             time.Duration // 0 if messages on this channel don't expire
}

var channelSpecs = map[Channel]ChannelSpec{
	ChannelCommand:    {Routing: RoutingTopic, DefaultPriority: 50, UrgentPriority: 150},
	ChannelAudit:      {Routing: RoutingFanout, Durable: true, DefaultPriority: 100},
	ChannelAlgedonic:  {Routing: RoutingDirect, DefaultPriority: 255, TTL: 60 * time.Second},
	ChannelHorizontal: {Routing: RoutingTopic, DefaultPriority: 10},
	ChannelIntel:      {Routing: RoutingTopic, DefaultPriority: 25, UrgentPriority: 75},
}

// Spec returns the fixed contract for a channel. The zero value is
// returned for an unrecognized channel.
func Spec(ch Channel) ChannelSpec { return channelSpecs[ch] }

// DefaultPriority returns a channel's default message priority.
func DefaultPriority(ch Channel) int { return channelSpecs[ch].DefaultPriority }

// Envelope is the wire shape carried on every channel.
type Envelope struct {
	Sender        string
	CorrelationID string
	HLC           hlc.Stamp
	Channel       Channel
	RoutingKey    string
	Priority      int
	TTL           time.Duration // zero means no expiry
	Payload       any
}

// Expired reports whether env has outlived its TTL as of now.
func (env Envelope) Expired(stampedAt, now time.Time) bool {
	if env.TTL == 0 {
		return false
	}
	return now.Sub(stampedAt) > env.TTL
}

// Config tunes the bus's mailbox sizing and reconnect behavior.
type Config struct {
	MailboxSize         int           // per-subscriber bound (default 10_000)
	BrokerURL           string        // external broker address, if any
	HeartbeatInterval   time.Duration // default 10s
	PrefetchCount       int           // default 32
	ReconnectBaseDelay  time.Duration // default 500ms
	ReconnectMaxDelay   time.Duration // default 30s
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MailboxSize:        10_000,
		HeartbeatInterval:  10 * time.Second,
		PrefetchCount:      32,
		ReconnectBaseDelay: 500 * time.Millisecond,
		ReconnectMaxDelay:  30 * time.Second,
	}
}

// ErrAlgedonicUnqueueable is the error passed to the fatal handler when an
// algedonic message cannot be buffered anywhere — per contract this is
// always treated as a fatal process error, never a silent drop.
var ErrAlgedonicUnqueueable = errs.New(errs.KindOverloaded, errors.New("bus: algedonic message could not be queued"), nil)

type subscriber struct {
	id      string
	filters []Filter
	mailbox *Mailbox
}

func (s *subscriber) matches(env Envelope) bool {
	for _, f := range s.filters {
		if f.Channel == env.Channel && (channelSpecs[env.Channel].Routing != RoutingTopic || matchRoutingKey(f.Pattern, env.RoutingKey)) {
			return true
		}
	}
	return false
}

// Bus is the in-process publish/subscribe fabric. An external broker can
// be layered in later by having Publish route through it instead of
// fanning out directly; until then the bus is its own transport and
// Disconnect/Reconnect exist to exercise the buffering and back-off
// contract deterministically.
type Bus struct {
	mu     sync.Mutex
	config Config
	subs   map[string]*subscriber
	seq    uint64

	connected bool
	outbox    []mailboxEntry // buffered publishes while disconnected

	breaker *healing.CircuitBreaker
	fatal   func(error)

	totalPublished atomic.Uint64
	totalDropped   atomic.Uint64
}

// New creates a bus ready to accept subscribers and publishes.
func New(config Config) *Bus {
	if config.MailboxSize <= 0 {
		config.MailboxSize = 10_000
	}
	return &Bus{
		config:    config,
		subs:      make(map[string]*subscriber),
		connected: true,
		breaker:   healing.NewCircuitBreaker("bus-broker", healing.DefaultCircuitBreakerConfig()),
		fatal:     func(err error) { log.Fatalf("[bus] %v", err) },
	}
}

// SetFatalHandler overrides what happens when an algedonic message can't
// be queued anywhere. Tests use this to observe the condition instead of
// crashing the process.
func (b *Bus) SetFatalHandler(f func(error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fatal = f
}

// Subscribe registers id to receive envelopes matching any of filters,
// delivered through the returned mailbox in priority order.
func (b *Bus) Subscribe(id string, filters ...Filter) *Mailbox {
	b.mu.Lock()
	defer b.mu.Unlock()
	mb := newMailbox(b.config.MailboxSize)
	b.subs[id] = &subscriber{id: id, filters: filters, mailbox: mb}
	return mb
}

// Unsubscribe closes id's mailbox and removes it from delivery.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.subs[id]; ok {
		s.mailbox.Close()
		delete(b.subs, id)
	}
}

// Publish fans env out to every matching subscriber. It never blocks: a
// full mailbox drops its lowest-priority entry if env outranks it,
// otherwise env itself is dropped — except on the algedonic channel,
// where an undroppable message is handed to the fatal handler.
func (b *Bus) Publish(env Envelope) error {
	if env.Channel == "" {
		return fmt.Errorf("bus: envelope missing channel")
	}
	if env.Priority == 0 {
		env.Priority = DefaultPriority(env.Channel)
	}
	if env.TTL == 0 {
		env.TTL = channelSpecs[env.Channel].TTL
	}

	b.mu.Lock()
	if !b.connected {
		dropped, fatal := b.bufferLocked(env)
		b.mu.Unlock()
		if fatal {
			err := fmt.Errorf("%w: no connection and outbox full", ErrAlgedonicUnqueueable)
			b.fatal(err)
			return err
		}
		if dropped {
			b.totalDropped.Add(1)
		}
		return nil
	}
	b.seq++
	seq := b.seq
	matches := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if s.matches(env) {
			matches = append(matches, s)
		}
	}
	b.mu.Unlock()

	b.totalPublished.Add(1)
	metrics.BusMessagesPublished.WithLabelValues(string(env.Channel)).Inc()
	for _, s := range matches {
		dropped, fatal := s.mailbox.enqueue(env, seq)
		if fatal {
			err := fmt.Errorf("%w: subscriber %q", ErrAlgedonicUnqueueable, s.id)
			b.fatal(err)
			return err
		}
		if dropped {
			b.totalDropped.Add(1)
		}
		metrics.BusMailboxDepth.WithLabelValues(s.id).Set(float64(s.mailbox.Len()))
	}
	return nil
}

// bufferLocked appends env to the outbox used while disconnected,
// applying the same priority-eviction policy as a subscriber mailbox.
// Caller must hold b.mu.
func (b *Bus) bufferLocked(env Envelope) (dropped, fatal bool) {
	b.seq++
	if len(b.outbox) < b.config.MailboxSize {
		b.outbox = append(b.outbox, mailboxEntry{env: env, queuedAt: time.Now(), seq: b.seq})
		return false, false
	}
	minIdx := 0
	for i := 1; i < len(b.outbox); i++ {
		if b.outbox[i].env.Priority < b.outbox[minIdx].env.Priority {
			minIdx = i
		}
	}
	if env.Priority > b.outbox[minIdx].env.Priority {
		b.outbox[minIdx] = mailboxEntry{env: env, queuedAt: time.Now(), seq: b.seq}
		return true, false
	}
	if env.Channel == ChannelAlgedonic {
		return false, true
	}
	return true, false
}

// Disconnect simulates broker loss: subsequent publishes buffer into the
// outbox instead of fanning out immediately.
func (b *Bus) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	b.breaker.RecordFailure()
}

// Reconnect restores delivery and flushes any buffered envelopes to
// current subscribers, highest priority first.
func (b *Bus) Reconnect() {
	b.mu.Lock()
	b.connected = true
	outbox := b.outbox
	b.outbox = nil
	b.mu.Unlock()

	b.breaker.RecordSuccess()

	now := time.Now()
	for len(outbox) > 0 {
		best := 0
		for i := 1; i < len(outbox); i++ {
			a, c := outbox[i], outbox[best]
			if a.env.Priority > c.env.Priority || (a.env.Priority == c.env.Priority && a.seq < c.seq) {
				best = i
			}
		}
		entry := outbox[best]
		outbox = append(outbox[:best], outbox[best+1:]...)
		if entry.env.Expired(entry.queuedAt, now) {
			errs.Log(slog.Default(), errs.New(errs.KindTimeout, fmt.Errorf("buffered envelope expired before reconnect"), map[string]string{"channel": string(entry.env.Channel)}), entry.env.CorrelationID)
			continue
		}
		_ = b.Publish(entry.env)
	}
}

// Run drives automatic reconnection with exponential backoff while the
// bus is disconnected, mirroring the circuit breaker's own timeout-based
// recovery probing. It returns when ctx is done.
func (b *Bus) Run(ctx context.Context) {
	delay := b.config.ReconnectBaseDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := b.config.ReconnectMaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	ticker := time.NewTicker(delay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.mu.Lock()
			disconnected := !b.connected
			b.mu.Unlock()
			if !disconnected {
				delay = b.config.ReconnectBaseDelay
				if delay <= 0 {
					delay = 500 * time.Millisecond
				}
				ticker.Reset(delay)
				continue
			}
			if err := b.breaker.Allow(); err != nil {
				delay *= 2
				if delay > maxDelay {
					delay = maxDelay
				}
				ticker.Reset(delay)
				continue
			}
			b.Reconnect()
			delay = b.config.ReconnectBaseDelay
			if delay <= 0 {
				delay = 500 * time.Millisecond
			}
			ticker.Reset(delay)
		}
	}
}

// Stats summarizes bus throughput for status reporting.
type Stats struct {
	Connected      bool
	Subscribers    int
	OutboxDepth    int
	TotalPublished uint64
	TotalDropped   uint64
}

// Stats returns a point-in-time view of the bus.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Connected:      b.connected,
		Subscribers:    len(b.subs),
		OutboxDepth:    len(b.outbox),
		TotalPublished: b.totalPublished.Load(),
		TotalDropped:   b.totalDropped.Load(),
	}
}
