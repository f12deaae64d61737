package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/puzzlerace/go/internal/race/room"
	"github.com/mcdev12/puzzlerace/go/internal/race/scoring"
)

// Store owns every active room. Its mutex guards the maps only; room state is
// protected by each room's own lock.
type Store struct {
	mu     sync.RWMutex
	rooms  map[string]*room.Room
	codes  map[string]string
	users  map[string]string
	rules  scoring.Rules
	codeFn CodeFunc
}

// Option configures a Store.
type Option func(*Store)

// WithCodeFunc overrides room code generation.
func WithCodeFunc(fn CodeFunc) Option {
	return func(s *Store) { s.codeFn = fn }
}

// New creates an empty store whose rooms use rules.
func New(rules scoring.Rules, opts ...Option) *Store {
	s := &Store{
		rooms:  make(map[string]*room.Room),
		codes:  make(map[string]string),
		users:  make(map[string]string),
		rules:  rules,
		codeFn: RandomCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create builds a room for a and b with a fresh ID and a code unique among
// active rooms.
func (s *Store) Create(puzzleID string, a, b room.Identity, now time.Time) (*room.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range []string{a.UserID, b.UserID} {
		if s.occupiesLocked(id) {
			return nil, ErrUserInRoom
		}
	}

	code := ""
	for i := 0; i < codeAttempts; i++ {
		c := s.codeFn()
		if _, taken := s.codes[c]; !taken {
			code = c
			break
		}
	}
	if code == "" {
		return nil, ErrCodeExhausted
	}

	r := room.New(uuid.NewString(), code, puzzleID, a, b, s.rules, now)
	s.rooms[r.ID] = r
	s.codes[code] = r.ID
	s.users[a.UserID] = r.ID
	s.users[b.UserID] = r.ID
	return r, nil
}

// Get returns the room with the given ID.
func (s *Store) Get(roomID string) (*room.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// GetByCode looks a room up by its short code.
func (s *Store) GetByCode(code string) (*room.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.codes[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return s.rooms[id], nil
}

// RoomOf returns the room userID currently occupies.
func (s *Store) RoomOf(userID string) (*room.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.users[userID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return s.rooms[id], nil
}

// HasUser reports whether userID is in a room whose race is not over.
// Finished rooms waiting for teardown do not count.
func (s *Store) HasUser(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.occupiesLocked(userID)
}

func (s *Store) occupiesLocked(userID string) bool {
	id, ok := s.users[userID]
	if !ok {
		return false
	}
	r, ok := s.rooms[id]
	return ok && r.State() != room.StateComplete
}

// Remove drops a room and its indexes. Removing an unknown room is a no-op.
func (s *Store) Remove(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(roomID)
}

// Active returns every stored room, oldest first.
func (s *Store) Active() []*room.Room {
	s.mu.RLock()
	out := make([]*room.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of stored rooms.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// Sweep evicts rooms created more than maxAge before now and returns them.
func (s *Store) Sweep(now time.Time, maxAge time.Duration) []*room.Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []*room.Room
	for id, r := range s.rooms {
		if now.Sub(r.CreatedAt) < maxAge {
			continue
		}
		r.Close()
		s.removeLocked(id)
		evicted = append(evicted, r)
	}
	return evicted
}

func (s *Store) removeLocked(roomID string) bool {
	r, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	delete(s.rooms, roomID)
	delete(s.codes, r.Code)
	for _, p := range r.Players() {
		if s.users[p.UserID] == roomID {
			delete(s.users, p.UserID)
		}
	}
	return true
}
