// Package eventlog is the bounded append-only record of emitted events,
// used exclusively for reconnect resync. The session actor is the only
// writer; readers (reconnecting clients) take a short read lock and never
// touch the broadcast path.
package eventlog

import (
	"sync"

	"github.com/pewpew-tabletop/range-backend/internal/engine"
)

const DefaultCap = 512

type Log struct {
	mu     sync.RWMutex
	events []engine.Event
	cap    int
	next   int64 // seq for the next append, starts at 1
}

func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &Log{cap: capacity, next: 1}
}

// Append assigns the next strictly increasing seq, stores the event and
// returns it. Oldest entries are evicted past the cap; past entries are
// never reordered or mutated.
func (l *Log) Append(e engine.Event) engine.Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.Seq = l.next
	l.next++
	l.events = append(l.events, e)
	if len(l.events) > l.cap {
		// Drop in one step so the backing array doesn't pin evicted events.
		trimmed := make([]engine.Event, l.cap)
		copy(trimmed, l.events[len(l.events)-l.cap:])
		l.events = trimmed
	}
	return e
}

// AppendAll appends a batch in order and returns the stored events with
// their assigned seqs.
func (l *Log) AppendAll(events []engine.Event) []engine.Event {
	out := make([]engine.Event, 0, len(events))
	for _, e := range events {
		out = append(out, l.Append(e))
	}
	return out
}

// Since returns all events after seq, in append order. ok is false when seq
// has been evicted, in which case the caller must fall back to a full
// snapshot.
func (l *Log) Since(seq int64) ([]engine.Event, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if seq >= l.next-1 {
		return nil, true
	}
	if len(l.events) == 0 || l.events[0].Seq > seq+1 {
		return nil, false
	}
	idx := int(seq + 1 - l.events[0].Seq)
	out := make([]engine.Event, len(l.events)-idx)
	copy(out, l.events[idx:])
	return out, true
}

// Recent returns up to n of the newest events in append order.
func (l *Log) Recent(n int) []engine.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n > len(l.events) {
		n = len(l.events)
	}
	out := make([]engine.Event, n)
	copy(out, l.events[len(l.events)-n:])
	return out
}

// LastSeq returns the seq of the newest event, zero when empty.
func (l *Log) LastSeq() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.next - 1
}
