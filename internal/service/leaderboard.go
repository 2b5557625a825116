package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/snake-arena/internal/domain"
	"github.com/snake-arena/internal/ledger"
)

// Notifier is told about every accepted score
type Notifier interface {
	NotifyScoreAccepted(record domain.ScoreRecord, rank int64)
}

// LeaderboardService provides business logic for leaderboard operations
type LeaderboardService struct {
	store    ledger.Store
	logger   *slog.Logger
	now      func() time.Time
	notifier Notifier
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(store ledger.Store, logger *slog.Logger) *LeaderboardService {
	return &LeaderboardService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// SetNotifier registers a listener for accepted scores
func (s *LeaderboardService) SetNotifier(n Notifier) {
	s.notifier = n
}

// SubmitScore records score for username if it beats their best in mode.
// A score that does not improve the best is not an error: it comes back as
// domain.ScoreRejected.
func (s *LeaderboardService) SubmitScore(ctx context.Context, username string, mode domain.GameMode, score int64) (domain.SubmitResult, error) {
	if username == "" {
		return nil, domain.ErrInvalidRequest
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidMode, mode)
	}
	if score < 0 {
		return nil, domain.ErrInvalidScore
	}

	now := s.now()
	today := ledger.Today(now)

	var decision domain.Decision
	err := s.store.WithinKey(ctx, username, mode, func(l ledger.Ledger) error {
		var err error
		decision, err = Decide(ctx, l, username, mode, score, today)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("submitting score: %w", err)
	}

	if !decision.Accepted {
		s.logger.Debug("score not improved",
			"username", username,
			"mode", mode,
			"score", score,
			"previous_best", *decision.PreviousBest,
		)
		return domain.ScoreRejected{
			Rank:         decision.Rank,
			PreviousBest: *decision.PreviousBest,
		}, nil
	}

	// CreatedAt is the service's submission time; adapters stamp the stored
	// row with their own clock, so the two may differ slightly.
	record := domain.ScoreRecord{
		ID:        decision.RecordID,
		Username:  username,
		Score:     score,
		Mode:      mode,
		Date:      today,
		CreatedAt: now,
	}

	s.logger.Info("new best score",
		"username", username,
		"mode", mode,
		"score", score,
		"rank", decision.Rank,
	)

	if s.notifier != nil {
		s.notifier.NotifyScoreAccepted(record, decision.Rank)
	}

	return domain.ScoreAccepted{
		Record:       record,
		Rank:         decision.Rank,
		PreviousBest: decision.PreviousBest,
	}, nil
}

// GetLeaderboard returns every record, or the records of *mode, best first
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, mode *domain.GameMode) ([]domain.ScoreRecord, error) {
	if mode != nil && !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidMode, *mode)
	}

	records, err := s.store.List(ctx, mode)
	if err != nil {
		return nil, fmt.Errorf("listing leaderboard: %w", err)
	}
	return records, nil
}

// GetTopN returns the first n records of a mode's leaderboard. Stores that
// implement ledger.TopLister answer without loading the whole mode.
func (s *LeaderboardService) GetTopN(ctx context.Context, mode domain.GameMode, n int) ([]domain.ScoreRecord, error) {
	if top, ok := s.store.(ledger.TopLister); ok && n > 0 {
		if !mode.Valid() {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidMode, mode)
		}
		records, err := top.Top(ctx, mode, n)
		if err != nil {
			return nil, fmt.Errorf("listing top scores: %w", err)
		}
		return records, nil
	}

	records, err := s.GetLeaderboard(ctx, &mode)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(records) > n {
		records = records[:n]
	}
	return records, nil
}

// GetUserBestScore returns the user's best score in mode, if any
func (s *LeaderboardService) GetUserBestScore(ctx context.Context, username string, mode domain.GameMode) (int64, bool, error) {
	if !mode.Valid() {
		return 0, false, fmt.Errorf("%w: %q", domain.ErrInvalidMode, mode)
	}

	best, found, err := s.store.FindBest(ctx, username, mode)
	if err != nil {
		return 0, false, fmt.Errorf("getting best score: %w", err)
	}
	return best, found, nil
}

// RankOf reports where score would rank in mode without storing anything
func (s *LeaderboardService) RankOf(ctx context.Context, mode domain.GameMode, score int64) (domain.RankInfo, error) {
	if !mode.Valid() {
		return domain.RankInfo{}, fmt.Errorf("%w: %q", domain.ErrInvalidMode, mode)
	}
	if score < 0 {
		return domain.RankInfo{}, domain.ErrInvalidScore
	}

	rank, err := RankOf(ctx, s.store, mode, score)
	if err != nil {
		return domain.RankInfo{}, err
	}
	return domain.RankInfo{Mode: mode, Score: score, Rank: rank}, nil
}
