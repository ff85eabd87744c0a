package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vsmcore/vsmcore/internal/errs"
)

// mailboxEntry wraps an envelope with the bookkeeping needed to break
// priority ties in arrival order.
type mailboxEntry struct {
	env      Envelope
	queuedAt time.Time
	seq      uint64
}

// Mailbox is a bounded, priority-ordered inbox for one subscriber. Delivery
// always returns the highest-priority entry present, oldest first among
// ties — the same linear best-of-N scan scheduler.Scheduler.Dequeue uses
// across its five priority classes, generalized to the bus's open-ended
// priority values.
type Mailbox struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	items    []mailboxEntry
	closed   bool
}

func newMailbox(capacity int) *Mailbox {
	mb := &Mailbox{capacity: capacity}
	mb.cond = sync.NewCond(&mb.mu)
	return mb
}

// enqueue appends env if there's room. Otherwise it evicts the lowest
// priority entry currently queued, provided env outranks it; if the
// mailbox is full and env cannot displace anything, it is dropped unless
// it is an algedonic message, which is never droppable — the caller must
// treat that case as fatal.
func (mb *Mailbox) enqueue(env Envelope, seq uint64) (dropped, fatal bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.closed {
		return true, false
	}
	if len(mb.items) < mb.capacity {
		mb.items = append(mb.items, mailboxEntry{env: env, queuedAt: time.Now(), seq: seq})
		mb.cond.Signal()
		return false, false
	}

	minIdx := 0
	for i := 1; i < len(mb.items); i++ {
		if mb.items[i].env.Priority < mb.items[minIdx].env.Priority {
			minIdx = i
		}
	}
	if env.Priority > mb.items[minIdx].env.Priority {
		mb.items[minIdx] = mailboxEntry{env: env, queuedAt: time.Now(), seq: seq}
		mb.cond.Signal()
		return true, false // the displaced entry was dropped
	}
	if env.Channel == ChannelAlgedonic {
		return false, true
	}
	return true, false // env itself was dropped
}

// Next blocks until an envelope is available, the mailbox is closed, or
// ctx is done. The second return is false once the mailbox is drained and
// closed (or ctx ends) — callers should stop reading at that point.
func (mb *Mailbox) Next(ctx context.Context) (Envelope, bool) {
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			mb.mu.Lock()
			mb.cond.Broadcast()
			mb.mu.Unlock()
		case <-watchDone:
		}
	}()

	mb.mu.Lock()
	defer mb.mu.Unlock()
	for {
		mb.dropExpiredLocked()
		if len(mb.items) > 0 {
			break
		}
		if mb.closed || ctx.Err() != nil {
			return Envelope{}, false
		}
		mb.cond.Wait()
	}

	best := 0
	for i := 1; i < len(mb.items); i++ {
		a, b := mb.items[i], mb.items[best]
		if a.env.Priority > b.env.Priority || (a.env.Priority == b.env.Priority && a.seq < b.seq) {
			best = i
		}
	}
	e := mb.items[best].env
	mb.items = append(mb.items[:best], mb.items[best+1:]...)
	return e, true
}

// dropExpiredLocked removes every entry that has outlived its channel TTL,
// logging each as a timeout rather than delivering it stale. Caller must
// hold mb.mu.
func (mb *Mailbox) dropExpiredLocked() {
	if len(mb.items) == 0 {
		return
	}
	now := time.Now()
	live := mb.items[:0]
	for _, item := range mb.items {
		if item.env.Expired(item.queuedAt, now) {
			errs.Log(slog.Default(), errs.New(errs.KindTimeout, fmt.Errorf("envelope expired before delivery"), map[string]string{"channel": string(item.env.Channel)}), item.env.CorrelationID)
			continue
		}
		live = append(live, item)
	}
	mb.items = live
}

// Len reports the number of envelopes currently queued.
func (mb *Mailbox) Len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.items)
}

// Close wakes any blocked Next call and marks the mailbox drained.
func (mb *Mailbox) Close() {
	mb.mu.Lock()
	mb.closed = true
	mb.cond.Broadcast()
	mb.mu.Unlock()
}
