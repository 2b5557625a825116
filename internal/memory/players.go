package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/snake-arena/internal/domain"
)

// ActivePlayers holds the games that can be spectated. The data is transient
// and never persisted.
type ActivePlayers struct {
	mu      sync.RWMutex
	order   []string
	players map[string]domain.ActivePlayer
}

// NewActivePlayers creates a registry seeded with players
func NewActivePlayers(players ...domain.ActivePlayer) *ActivePlayers {
	ap := &ActivePlayers{players: make(map[string]domain.ActivePlayer, len(players))}
	for _, p := range players {
		ap.Put(p)
	}
	return ap
}

// Put adds or replaces a player
func (a *ActivePlayers) Put(p domain.ActivePlayer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.players[p.ID]; !ok {
		a.order = append(a.order, p.ID)
	}
	a.players[p.ID] = p
}

// List returns all active players in registration order
func (a *ActivePlayers) List(ctx context.Context) ([]domain.ActivePlayer, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]domain.ActivePlayer, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, clonePlayer(a.players[id]))
	}
	return out, nil
}

// Get returns one active player
func (a *ActivePlayers) Get(ctx context.Context, id string) (*domain.ActivePlayer, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	p, ok := a.players[id]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	p = clonePlayer(p)
	return &p, nil
}

func clonePlayer(p domain.ActivePlayer) domain.ActivePlayer {
	p.GameState.Snake = slices.Clone(p.GameState.Snake)
	return p
}
