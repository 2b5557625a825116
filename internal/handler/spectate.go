package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ListActivePlayers returns every game that can be watched
func (h *Handler) ListActivePlayers(w http.ResponseWriter, r *http.Request) {
	players, err := h.spectate.ActivePlayers(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, players)
}

// GetActivePlayer returns the game state of one player
func (h *Handler) GetActivePlayer(w http.ResponseWriter, r *http.Request) {
	player, err := h.spectate.Player(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, player)
}
