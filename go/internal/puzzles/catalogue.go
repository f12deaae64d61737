package puzzles

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
)

var ErrEmptyCatalogue = errors.New("puzzle catalogue is empty")

// Catalogue hands out puzzle IDs suitable for a race.
type Catalogue interface {
	RandomPuzzleID(ctx context.Context) (string, error)
}

// Set is an in-memory catalogue. It is safe for concurrent use and can be
// replaced wholesale by Replace.
type Set struct {
	mu  sync.RWMutex
	ids []string
}

func NewSet(ids ...string) *Set {
	s := &Set{}
	s.Replace(ids)
	return s
}

func (s *Set) RandomPuzzleID(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.ids) == 0 {
		return "", ErrEmptyCatalogue
	}
	return s.ids[rand.IntN(len(s.ids))], nil
}

// Replace swaps the contents, dropping duplicates and empty IDs.
func (s *Set) Replace(ids []string) {
	seen := make(map[string]struct{}, len(ids))
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		clean = append(clean, id)
	}

	s.mu.Lock()
	s.ids = clean
	s.mu.Unlock()
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// IDs returns a copy of the current contents.
func (s *Set) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.ids...)
}
