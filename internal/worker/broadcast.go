// Package worker runs background jobs around the leaderboard.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/snake-arena/internal/config"
	"github.com/snake-arena/internal/domain"
)

// TopNSource reads the head of a mode's leaderboard
type TopNSource interface {
	GetTopN(ctx context.Context, mode domain.GameMode, n int) ([]domain.ScoreRecord, error)
}

// Broadcaster pushes snapshots to connected spectators
type Broadcaster interface {
	BroadcastLeaderboard(mode domain.GameMode, records []domain.ScoreRecord)
	GetSubscriberCount(mode domain.GameMode) int
}

// BroadcastWorker periodically pushes the top-N of every mode that has subscribers
type BroadcastWorker struct {
	source  TopNSource
	hub     Broadcaster
	config  *config.BroadcastConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewBroadcastWorker creates a new broadcast worker
func NewBroadcastWorker(source TopNSource, hub Broadcaster, cfg *config.BroadcastConfig, logger *slog.Logger) *BroadcastWorker {
	return &BroadcastWorker{
		source: source,
		hub:    hub,
		config: cfg,
		logger: logger,
	}
}

// Start begins the background broadcast loop
func (w *BroadcastWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	w.logger.Info("broadcast worker started", "interval", w.config.Interval, "top_n", w.config.TopN)

	go w.run(ctx, w.stopCh, w.doneCh)
	return nil
}

// Stop stops the background loop and waits for it to exit
func (w *BroadcastWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.running = false
	w.mu.Unlock()

	close(stopCh)
	<-doneCh

	w.logger.Info("broadcast worker stopped")
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *BroadcastWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *BroadcastWorker) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce broadcasts one snapshot per subscribed mode and returns how many were sent
func (w *BroadcastWorker) RunOnce(ctx context.Context) int {
	sent := 0
	for _, mode := range domain.AllModes {
		if w.hub.GetSubscriberCount(mode) == 0 {
			continue
		}

		records, err := w.source.GetTopN(ctx, mode, w.config.TopN)
		if err != nil {
			w.logger.Error("failed to load leaderboard for broadcast",
				"mode", mode,
				"error", err,
			)
			continue
		}

		w.hub.BroadcastLeaderboard(mode, records)
		sent++
	}

	if sent > 0 {
		w.logger.Debug("leaderboard broadcast completed", "modes", sent)
	}
	return sent
}
