// Package notify holds the short-lived user-facing messages raised by
// ledger operations. Each entry expires on its own after the queue's TTL.
package notify

import (
	"strconv"
	"sync"
	"time"
)

// DefaultTTL is how long a notification stays visible.
const DefaultTTL = 3 * time.Second

type Kind string

const (
	Success Kind = "success"
	Error   Kind = "error"
	Info    Kind = "info"
	Warning Kind = "warning"
)

type Notification struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"timestamp"`
}

// Queue is safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	ttl     time.Duration
	seq     uint64
	entries []Notification
	timers  map[string]*time.Timer
	closed  bool
}

// New creates a queue whose entries expire after ttl. A non-positive ttl
// uses DefaultTTL.
func New(ttl time.Duration) *Queue {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Queue{
		ttl:    ttl,
		timers: make(map[string]*time.Timer),
	}
}

// Enqueue appends a notification and schedules its removal.
// On a closed queue the notification is returned but not stored.
func (q *Queue) Enqueue(kind Kind, message string) Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	n := Notification{
		ID:        strconv.FormatUint(q.seq, 10),
		Kind:      kind,
		Message:   message,
		CreatedAt: time.Now(),
	}
	if q.closed {
		return n
	}
	q.entries = append(q.entries, n)
	id := n.ID
	q.timers[id] = time.AfterFunc(q.ttl, func() { q.Dismiss(id) })
	return n
}

// Dismiss removes a notification before it expires. Unknown ids are ignored.
func (q *Queue) Dismiss(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if t, ok := q.timers[id]; ok {
		t.Stop()
		delete(q.timers, id)
	}
	for i, n := range q.entries {
		if n.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// List returns the live notifications in insertion order.
func (q *Queue) List() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Notification{}, q.entries...)
}

// Close stops pending timers and drops every entry.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
	q.entries = nil
	q.closed = true
}
