package profile

import (
	"context"
	"errors"
	"sync"

	"github.com/mcdev12/puzzlerace/go/internal/race/room"
)

var ErrProfileNotFound = errors.New("profile not found")

// Provider is the external identity and economy service.
type Provider interface {
	GetProfile(ctx context.Context, userID string) (room.Identity, error)
	AwardCoins(ctx context.Context, userID string, amount int, reason string) error
}

// StaticProvider keeps profiles and coin balances in memory.
type StaticProvider struct {
	mu       sync.Mutex
	profiles map[string]room.Identity
	coins    map[string]int
}

func NewStaticProvider(profiles ...room.Identity) *StaticProvider {
	p := &StaticProvider{
		profiles: make(map[string]room.Identity),
		coins:    make(map[string]int),
	}
	for _, id := range profiles {
		p.profiles[id.UserID] = id
	}
	return p
}

// GetProfile returns the stored profile, or one named after the user ID.
func (p *StaticProvider) GetProfile(_ context.Context, userID string) (room.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.profiles[userID]; ok {
		return id, nil
	}
	return room.Identity{UserID: userID, DisplayName: userID}, nil
}

func (p *StaticProvider) AwardCoins(_ context.Context, userID string, amount int, _ string) error {
	p.mu.Lock()
	p.coins[userID] += amount
	p.mu.Unlock()
	return nil
}

// Coins returns the balance credited so far.
func (p *StaticProvider) Coins(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.coins[userID]
}

// Resolve fetches an identity and falls back to the bare user ID when the
// provider fails.
func Resolve(ctx context.Context, p Provider, userID string) room.Identity {
	id, err := p.GetProfile(ctx, userID)
	if err != nil || id.UserID == "" {
		return room.Identity{UserID: userID, DisplayName: userID}
	}
	if id.DisplayName == "" {
		id.DisplayName = userID
	}
	return id
}
