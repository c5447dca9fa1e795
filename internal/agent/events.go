package agent

import (
	"sync"
	"time"
)

// Event is one scored history line as shown on the dashboard feed.
type Event struct {
	Time   string  `json:"time"`
	Line   string  `json:"line"`
	Score  float64 `json:"score"`
	Alert  bool    `json:"alert"`
	Reason string  `json:"reason"`
	Source string  `json:"source"`
}

// EventLog keeps the newest events up to a fixed size.
type EventLog struct {
	mu     sync.Mutex
	events []Event
	max    int
}

// NewEventLog creates a log holding at most max events (100 if max <= 0).
func NewEventLog(max int) *EventLog {
	if max <= 0 {
		max = 100
	}
	return &EventLog{max: max}
}

// Add appends e, dropping the oldest events beyond the limit.
func (l *EventLog) Add(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Time == "" {
		e.Time = time.Now().Format(time.RFC3339)
	}
	l.events = append(l.events, e)
	if len(l.events) > l.max {
		l.events = append([]Event(nil), l.events[len(l.events)-l.max:]...)
	}
}

// Snapshot returns a copy of the events, oldest first. It is never nil.
func (l *EventLog) Snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}
