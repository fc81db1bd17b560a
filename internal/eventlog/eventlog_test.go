package eventlog

import (
	"fmt"
	"testing"

	"github.com/pewpew-tabletop/range-backend/internal/engine"
)

func fill(l *Log, n int) []engine.Event {
	var stored []engine.Event
	for i := 0; i < n; i++ {
		stored = append(stored, l.Append(engine.Event{
			Kind:    engine.EvtActivity,
			Payload: map[string]any{"n": i},
		}))
	}
	return stored
}

func TestSeqStrictlyIncreasing(t *testing.T) {
	l := New(8)
	stored := fill(l, 20)
	for i, e := range stored {
		if e.Seq != int64(i+1) {
			t.Fatalf("event %d has seq %d", i, e.Seq)
		}
	}
	if l.LastSeq() != 20 {
		t.Fatalf("LastSeq = %d", l.LastSeq())
	}
}

func TestSinceReturnsSuffix(t *testing.T) {
	l := New(100)
	fill(l, 10)

	events, ok := l.Since(4)
	if !ok {
		t.Fatalf("seq 4 should still be retained")
	}
	if len(events) != 6 || events[0].Seq != 5 || events[5].Seq != 10 {
		t.Fatalf("Since(4) = %v", seqs(events))
	}

	events, ok = l.Since(10)
	if !ok || len(events) != 0 {
		t.Fatalf("Since(last) should be empty and ok, got %v %v", seqs(events), ok)
	}
}

func TestSinceReportsEviction(t *testing.T) {
	l := New(5)
	fill(l, 12) // retained: 8..12

	if _, ok := l.Since(3); ok {
		t.Fatalf("seq 3 evicted, Since must report a gap")
	}
	// seq 7 is the newest evicted entry: the suffix after it is complete.
	events, ok := l.Since(7)
	if !ok || len(events) != 5 {
		t.Fatalf("Since(7) = %v, %v", seqs(events), ok)
	}
	if _, ok := l.Since(6); ok {
		t.Fatalf("seq 6's successor is evicted")
	}
}

// Replaying Since(seq) on top of the events known at seq must equal the
// full retained window, with no duplicate ids.
func TestSincePlusReplayEqualsSnapshot(t *testing.T) {
	l := New(64)
	fill(l, 30)

	have, ok := l.Since(0)
	if !ok {
		t.Fatalf("nothing evicted yet")
	}
	known := have[:12]
	rest, ok := l.Since(known[len(known)-1].Seq)
	if !ok {
		t.Fatalf("resync within window must succeed")
	}

	replayed := append(append([]engine.Event{}, known...), rest...)
	snapshot := l.Recent(30)
	if len(replayed) != len(snapshot) {
		t.Fatalf("replay has %d events, snapshot %d", len(replayed), len(snapshot))
	}
	seen := map[int64]bool{}
	for i := range replayed {
		if replayed[i].Seq != snapshot[i].Seq {
			t.Fatalf("order diverges at %d: %d vs %d", i, replayed[i].Seq, snapshot[i].Seq)
		}
		if seen[replayed[i].Seq] {
			t.Fatalf("duplicate seq %d", replayed[i].Seq)
		}
		seen[replayed[i].Seq] = true
	}
}

func TestRecentBounded(t *testing.T) {
	l := New(4)
	fill(l, 10)

	recent := l.Recent(100)
	if len(recent) != 4 {
		t.Fatalf("Recent should cap at retained size, got %d", len(recent))
	}
	if recent[0].Seq != 7 || recent[3].Seq != 10 {
		t.Fatalf("Recent window = %v", seqs(recent))
	}
}

func seqs(events []engine.Event) string {
	out := ""
	for _, e := range events {
		out += fmt.Sprintf("%d ", e.Seq)
	}
	return out
}
