package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/snake-arena/internal/domain"
)

// PlayerSource lists games that can be watched
type PlayerSource interface {
	List(ctx context.Context) ([]domain.ActivePlayer, error)
	Get(ctx context.Context, id string) (*domain.ActivePlayer, error)
}

// SpectateService exposes read-only views of games in progress
type SpectateService struct {
	players PlayerSource
	logger  *slog.Logger
}

// NewSpectateService creates a new spectate service
func NewSpectateService(players PlayerSource, logger *slog.Logger) *SpectateService {
	return &SpectateService{
		players: players,
		logger:  logger,
	}
}

// ActivePlayers returns everyone currently playing
func (s *SpectateService) ActivePlayers(ctx context.Context) ([]domain.ActivePlayer, error) {
	players, err := s.players.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing active players: %w", err)
	}
	return players, nil
}

// Player returns the game state of one active player
func (s *SpectateService) Player(ctx context.Context, id string) (*domain.ActivePlayer, error) {
	if id == "" {
		return nil, domain.ErrInvalidRequest
	}
	return s.players.Get(ctx, id)
}
