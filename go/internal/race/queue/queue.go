package queue

import (
	"sync"
	"time"

	"github.com/mcdev12/puzzlerace/go/internal/race/room"
)

// Entry is one waiting player.
type Entry struct {
	room.Identity
	EnqueuedAt time.Time
}

// Pair is two entries taken out of the queue together, in enqueue order.
type Pair struct {
	A Entry
	B Entry
}

// UserIDs returns both user IDs of the pair.
func (p Pair) UserIDs() []string {
	return []string{p.A.UserID, p.B.UserID}
}

// EnqueueResult describes what Enqueue did with an entry.
type EnqueueResult int

const (
	Queued EnqueueResult = iota
	AlreadyQueued
	Reserved
	InRoom
)

func (r EnqueueResult) String() string {
	switch r {
	case Queued:
		return "queued"
	case AlreadyQueued:
		return "already_queued"
	case Reserved:
		return "reserved"
	case InRoom:
		return "in_room"
	}
	return "unknown"
}

// CompatibleFunc decides whether two waiting entries may be paired.
type CompatibleFunc func(a, b Entry) bool

// MembershipFunc reports whether a user already occupies an active room.
type MembershipFunc func(userID string) bool

// Option configures a Queue.
type Option func(*Queue)

// WithCompatible replaces the default pairing predicate.
func WithCompatible(fn CompatibleFunc) Option {
	return func(q *Queue) {
		if fn != nil {
			q.compatible = fn
		}
	}
}

// WithMembership lets the queue refuse players who are already in a room.
func WithMembership(fn MembershipFunc) Option {
	return func(q *Queue) {
		q.inRoom = fn
	}
}

// DistinctUsers is the default predicate: anyone but yourself.
func DistinctUsers(a, b Entry) bool {
	return a.UserID != b.UserID
}

// Queue is a FIFO waiting list. Everything runs under one mutex, so concurrent
// joins can never hand the same player to two rooms.
type Queue struct {
	mu       sync.Mutex
	entries  []Entry
	reserved map[string]struct{}

	compatible CompatibleFunc
	inRoom     MembershipFunc
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		reserved:   make(map[string]struct{}),
		compatible: DistinctUsers,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue adds e and immediately tries to form a pair. The returned pair, if
// any, is reserved until Release is called for it.
func (q *Queue) Enqueue(e Entry) (EnqueueResult, *Pair) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.indexLocked(e.UserID) >= 0 {
		return AlreadyQueued, nil
	}
	if _, ok := q.reserved[e.UserID]; ok {
		return Reserved, nil
	}
	if q.inRoom != nil && q.inRoom(e.UserID) {
		return InRoom, nil
	}

	q.entries = append(q.entries, e)
	return Queued, q.tryPairLocked()
}

// Dequeue removes userID from the waiting list. It returns false when the
// user was not waiting, including when they were already paired.
func (q *Queue) Dequeue(userID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(userID)
	if i < 0 {
		return false
	}
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	return true
}

// Release drops the reservation taken when p was formed.
func (q *Queue) Release(p Pair) {
	q.mu.Lock()
	delete(q.reserved, p.A.UserID)
	delete(q.reserved, p.B.UserID)
	q.mu.Unlock()
}

// Len returns the number of waiting players.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Position returns the 1-based position of userID, or 0 when not waiting.
func (q *Queue) Position(userID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.indexLocked(userID) + 1
}

// Contains reports whether userID is waiting.
func (q *Queue) Contains(userID string) bool {
	return q.Position(userID) > 0
}

// tryPairLocked takes the two longest-waiting compatible entries.
func (q *Queue) tryPairLocked() *Pair {
	for i := 0; i < len(q.entries); i++ {
		for j := i + 1; j < len(q.entries); j++ {
			a, b := q.entries[i], q.entries[j]
			if !q.compatible(a, b) {
				continue
			}
			rest := make([]Entry, 0, len(q.entries)-2)
			for k, e := range q.entries {
				if k != i && k != j {
					rest = append(rest, e)
				}
			}
			q.entries = rest
			q.reserved[a.UserID] = struct{}{}
			q.reserved[b.UserID] = struct{}{}
			return &Pair{A: a, B: b}
		}
	}
	return nil
}

func (q *Queue) indexLocked(userID string) int {
	for i, e := range q.entries {
		if e.UserID == userID {
			return i
		}
	}
	return -1
}
