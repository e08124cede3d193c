package host

import (
	"fmt"
	"sync/atomic"

	"github.com/ardnew/picousb/hal"
	"github.com/ardnew/picousb/pkg"
)

// EventKind identifies the variant of an Event.
type EventKind uint8

// Event kinds.
const (
	EventConnection EventKind = iota + 1 // device attached or detached
	EventTransfer                        // transaction completed
	EventFunction                        // deferred function call
)

func (k EventKind) String() string {
	switch k {
	case EventConnection:
		return "connection"
	case EventTransfer:
		return "transfer"
	case EventFunction:
		return "function"
	}
	return fmt.Sprintf("event(%d)", uint8(k))
}

// Event is a unit of work passed from interrupt context to the task loop.
// It is copied by value through the queue.
type Event struct {
	Kind    EventKind
	DevAddr uint8

	// Connection
	Speed hal.Speed

	// Transfer
	EPAddr uint8
	Slot   uint8 // interrupt endpoint slot, 0 for EPX
	Result pkg.TransferStatus
	Len    uint16

	// Function
	Func func(any)
	Arg  any
}

func (e Event) String() string {
	switch e.Kind {
	case EventConnection:
		return fmt.Sprintf("connection speed=%s", e.Speed)
	case EventTransfer:
		return fmt.Sprintf("transfer dev=%d ep=0x%02x slot=%d result=%s len=%d",
			e.DevAddr, e.EPAddr, e.Slot, e.Result, e.Len)
	}
	return e.Kind.String()
}

// Queue is a bounded multi-producer, single-consumer FIFO of events. Push
// never blocks and never takes a lock, so it is safe from interrupt
// context; a full queue drops the event.
type Queue struct {
	mask    uint64
	slots   []queueSlot
	head    atomic.Uint64 // next position to push
	tail    atomic.Uint64 // next position to pop
	dropped atomic.Uint64
}

type queueSlot struct {
	seq atomic.Uint64
	ev  Event
}

// NewQueue returns a queue holding at least depth events. The capacity is
// rounded up to a power of two.
func NewQueue(depth int) *Queue {
	n := 1
	for n < depth {
		n <<= 1
	}
	q := &Queue{mask: uint64(n - 1), slots: make([]queueSlot, n)}
	for i := range q.slots {
		q.slots[i].seq.Store(uint64(i))
	}
	return q
}

// Push appends ev. It returns pkg.ErrQueueFull, and counts the drop, if
// the queue is full.
func (q *Queue) Push(ev Event) error {
	pos := q.head.Load()
	for {
		s := &q.slots[pos&q.mask]
		seq := s.seq.Load()
		switch diff := int64(seq - pos); {
		case diff == 0:
			if q.head.CompareAndSwap(pos, pos+1) {
				s.ev = ev
				s.seq.Store(pos + 1)
				return nil
			}
			pos = q.head.Load()
		case diff < 0:
			q.dropped.Add(1)
			return pkg.ErrQueueFull
		default:
			pos = q.head.Load()
		}
	}
}

// Pop removes the oldest event. It reports false if the queue is empty.
// Only one goroutine may pop.
func (q *Queue) Pop() (Event, bool) {
	pos := q.tail.Load()
	for {
		s := &q.slots[pos&q.mask]
		seq := s.seq.Load()
		switch diff := int64(seq - (pos + 1)); {
		case diff == 0:
			if q.tail.CompareAndSwap(pos, pos+1) {
				ev := s.ev
				s.ev = Event{}
				s.seq.Store(pos + q.mask + 1)
				return ev, true
			}
			pos = q.tail.Load()
		case diff < 0:
			return Event{}, false
		default:
			pos = q.tail.Load()
		}
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	return int(q.head.Load() - q.tail.Load())
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return len(q.slots) }

// Dropped returns the number of events rejected because the queue was
// full.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }
