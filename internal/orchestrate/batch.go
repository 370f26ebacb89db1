package orchestrate

import (
	"sync"
	"time"

	"lastro/internal/event"
)

// deferred is an event the gate pushed past its detection cycle, with the
// moment it becomes due again.
type deferred struct {
	ev event.Event
	at time.Time
}

// holdQueue keeps per-broker events that could not go out yet: gate
// deferrals waiting for the next budget day or a retry, and routine
// events batched for the next summary. In-memory by design; a restart loses
// only deferrals, and the next detection cycle re-finds anything still true.
type holdQueue struct {
	mu       sync.Mutex
	deferred map[string][]deferred    // brokerID -> scheduled events
	batched  map[string][]event.Event // brokerID -> daily-summary batch
}

func newHoldQueue() *holdQueue {
	return &holdQueue{
		deferred: map[string][]deferred{},
		batched:  map[string][]event.Event{},
	}
}

// Defer parks an event until at.
func (q *holdQueue) Defer(brokerID string, ev event.Event, at time.Time) {
	q.mu.Lock()
	q.deferred[brokerID] = append(q.deferred[brokerID], deferred{ev: ev, at: at})
	q.mu.Unlock()
}

// Due removes and returns the deferred events whose time has come, FIFO.
func (q *holdQueue) Due(brokerID string, now time.Time) []event.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []event.Event
	var rest []deferred
	for _, d := range q.deferred[brokerID] {
		if d.at.After(now) {
			rest = append(rest, d)
			continue
		}
		due = append(due, d.ev)
	}
	if len(rest) == 0 {
		delete(q.deferred, brokerID)
	} else {
		q.deferred[brokerID] = rest
	}
	return due
}

// Batch adds a routine event to the broker's next-summary batch.
func (q *holdQueue) Batch(brokerID string, ev event.Event) {
	q.mu.Lock()
	q.batched[brokerID] = append(q.batched[brokerID], ev)
	q.mu.Unlock()
}

// DrainBatch removes and returns the whole batch, FIFO.
func (q *holdQueue) DrainBatch(brokerID string) []event.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.batched[brokerID]
	delete(q.batched, brokerID)
	return out
}

// Pending reports queue sizes, for status logging.
func (q *holdQueue) Pending(brokerID string) (waiting, batched int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.deferred[brokerID]), len(q.batched[brokerID])
}
