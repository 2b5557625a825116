// Package seed loads the demo accounts, leaderboard rows and spectatable
// games used by local setups.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/snake-arena/internal/domain"
	"github.com/snake-arena/internal/ledger"
)

// Registrar creates accounts
type Registrar interface {
	Signup(ctx context.Context, email, username, password string) (*domain.User, error)
}

type demoUser struct {
	username, email, password string
}

type demoEntry struct {
	username string
	score    int64
	mode     domain.GameMode
	date     time.Time
}

var demoUsers = []demoUser{
	{"DemoPlayer", "demo@snake.game", "demo123"},
	{"SnakeMaster", "master@snake.game", "master123"},
	{"PyThonKing", "python@snake.game", "python123"},
	{"NeonViper", "neon@snake.game", "neon123"},
	{"PixelSnake", "pixel@snake.game", "pixel123"},
}

func day(d int) time.Time {
	return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC)
}

var demoEntries = []demoEntry{
	{"SnakeMaster", 2450, domain.GameModeWalls, day(15)},
	{"PyThonKing", 2180, domain.GameModePassThrough, day(14)},
	{"NeonViper", 1920, domain.GameModeWalls, day(14)},
	{"PixelSnake", 1750, domain.GameModePassThrough, day(13)},
	{"RetroGamer", 1680, domain.GameModeWalls, day(13)},
	{"DemoPlayer", 1550, domain.GameModePassThrough, day(12)},
	{"SpeedRunner", 1420, domain.GameModeWalls, day(12)},
	{"CasualGamer", 1280, domain.GameModePassThrough, day(11)},
	{"ProSnake", 1150, domain.GameModeWalls, day(11)},
	{"Beginner", 890, domain.GameModePassThrough, day(10)},
}

// Seeder inserts demo data into empty stores
type Seeder struct {
	users  Registrar
	ledger ledger.Ledger
	logger *slog.Logger
}

// NewSeeder creates a seeder
func NewSeeder(users Registrar, l ledger.Ledger, logger *slog.Logger) *Seeder {
	return &Seeder{users: users, ledger: l, logger: logger}
}

// Run registers the demo accounts that do not exist yet and, if the ledger
// holds no records at all, inserts the demo leaderboard rows.
func (s *Seeder) Run(ctx context.Context) error {
	created := 0
	for _, u := range demoUsers {
		_, err := s.users.Signup(ctx, u.email, u.username, u.password)
		switch {
		case err == nil:
			created++
		case errors.Is(err, domain.ErrEmailTaken), errors.Is(err, domain.ErrUsernameTaken):
		default:
			return fmt.Errorf("seeding user %s: %w", u.username, err)
		}
	}

	existing, err := s.ledger.List(ctx, nil)
	if err != nil {
		return fmt.Errorf("checking ledger: %w", err)
	}
	if len(existing) > 0 {
		s.logger.Info("ledger already has data, skipping demo scores",
			"users_created", created,
			"records", len(existing),
		)
		return nil
	}

	for _, e := range demoEntries {
		if _, err := s.ledger.Insert(ctx, e.username, e.score, e.mode, e.date); err != nil {
			return fmt.Errorf("seeding score for %s: %w", e.username, err)
		}
	}

	s.logger.Info("demo data seeded",
		"users_created", created,
		"records", len(demoEntries),
	)
	return nil
}

// ActivePlayers returns the demo games shown on the spectate page
func ActivePlayers() []domain.ActivePlayer {
	return []domain.ActivePlayer{
		activePlayer("ap1", "LivePlayer1", domain.GameModeWalls, 340, 150, domain.DirectionRight,
			domain.Position{X: 15, Y: 15},
			[]domain.Position{{X: 10, Y: 10}, {X: 9, Y: 10}, {X: 8, Y: 10}, {X: 7, Y: 10}}),
		activePlayer("ap2", "LivePlayer2", domain.GameModePassThrough, 520, 120, domain.DirectionUp,
			domain.Position{X: 12, Y: 8},
			[]domain.Position{{X: 5, Y: 5}, {X: 5, Y: 6}, {X: 5, Y: 7}, {X: 5, Y: 8}, {X: 5, Y: 9}}),
		activePlayer("ap3", "SpeedDemon", domain.GameModeWalls, 780, 100, domain.DirectionLeft,
			domain.Position{X: 8, Y: 8},
			[]domain.Position{{X: 15, Y: 12}, {X: 14, Y: 12}, {X: 13, Y: 12}, {X: 12, Y: 12}, {X: 11, Y: 12}, {X: 10, Y: 12}}),
	}
}

func activePlayer(id, username string, mode domain.GameMode, score int64, speed int, dir domain.Direction, food domain.Position, snake []domain.Position) domain.ActivePlayer {
	return domain.ActivePlayer{
		ID:       id,
		Username: username,
		Score:    score,
		Mode:     mode,
		GameState: domain.GameState{
			Snake:     snake,
			Food:      food,
			Direction: dir,
			Score:     score,
			Mode:      mode,
			Speed:     speed,
		},
	}
}
