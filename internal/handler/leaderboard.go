package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/snake-arena/internal/domain"
)

// leaderboardEntry is the wire form of a score record
type leaderboardEntry struct {
	ID       string          `json:"id"`
	Username string          `json:"username"`
	Score    int64           `json:"score"`
	Mode     domain.GameMode `json:"mode"`
	Date     string          `json:"date"`
}

func toEntries(records []domain.ScoreRecord) []leaderboardEntry {
	entries := make([]leaderboardEntry, len(records))
	for i, rec := range records {
		entries[i] = leaderboardEntry{
			ID:       rec.ID,
			Username: rec.Username,
			Score:    rec.Score,
			Mode:     rec.Mode,
			Date:     rec.Date.Format(domain.DateLayout),
		}
	}
	return entries
}

type submitScoreRequest struct {
	Score *int64 `json:"score"`
	Mode  string `json:"mode"`
}

type submitScoreResponse struct {
	Success bool   `json:"success"`
	Rank    *int64 `json:"rank,omitempty"`
	Error   string `json:"error,omitempty"`
}

// GetLeaderboard lists all records, or one mode's with ?mode=
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	var mode *domain.GameMode
	if raw := r.URL.Query().Get("mode"); raw != "" {
		m, err := domain.ParseGameMode(raw)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		mode = &m
	}

	records, err := h.leaderboard.GetLeaderboard(r.Context(), mode)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toEntries(records))
}

// SubmitScore handles a finished game. The response is 201 whether or not the
// score became a new best; success tells the two apart.
func (h *Handler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	var req submitScoreRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if req.Score == nil {
		h.writeServiceError(w, r, fmt.Errorf("%w: score is required", domain.ErrInvalidScore))
		return
	}
	mode, err := domain.ParseGameMode(req.Mode)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	user := currentUser(r.Context())
	if user == nil {
		h.writeJSON(w, http.StatusCreated, submitScoreResponse{Success: false, Error: "User not found"})
		return
	}

	result, err := h.leaderboard.SubmitScore(r.Context(), user.Username, mode, *req.Score)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	rank := result.Position()
	switch res := result.(type) {
	case domain.ScoreAccepted:
		h.writeJSON(w, http.StatusCreated, submitScoreResponse{Success: true, Rank: &rank})
	case domain.ScoreRejected:
		h.writeJSON(w, http.StatusCreated, submitScoreResponse{Success: false, Rank: &rank, Error: res.Message()})
	}
}

// GetBestScore returns the caller's best score in a mode, or null
func (h *Handler) GetBestScore(w http.ResponseWriter, r *http.Request) {
	mode, err := domain.ParseGameMode(chi.URLParam(r, "mode"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	user := currentUser(r.Context())
	if user == nil {
		h.writeError(w, http.StatusNotFound, domain.ErrUserNotFound)
		return
	}

	best, found, err := h.leaderboard.GetUserBestScore(r.Context(), user.Username, mode)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if !found {
		h.writeJSON(w, http.StatusOK, nil)
		return
	}
	h.writeJSON(w, http.StatusOK, best)
}

// GetRank reports where ?score= would place in ?mode= without storing it
func (h *Handler) GetRank(w http.ResponseWriter, r *http.Request) {
	mode, err := domain.ParseGameMode(r.URL.Query().Get("mode"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	score, err := strconv.ParseInt(r.URL.Query().Get("score"), 10, 64)
	if err != nil {
		h.writeServiceError(w, r, fmt.Errorf("%w: score must be an integer", domain.ErrInvalidScore))
		return
	}

	info, err := h.leaderboard.RankOf(r.Context(), mode, score)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}
