package handlers

import (
	"context"
	"net/http"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
)

// Corpus is the part of *corpus.Store the admin endpoints use.
type Corpus interface {
	Current() (*corpus.Snapshot, error)
	Ready() bool
	Reload(ctx context.Context) (*corpus.Snapshot, error)
}

// AdminHandler serves health, readiness and reload.
type AdminHandler struct {
	logger *observability.Logger
	corpus Corpus
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(logger *observability.Logger, c Corpus) *AdminHandler {
	return &AdminHandler{logger: logger.WithComponent("admin-handler"), corpus: c}
}

// Health handles GET /health.
func (h *AdminHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "atlas"})
}

// Ready handles GET /ready. It fails until a corpus snapshot is published.
func (h *AdminHandler) Ready(w http.ResponseWriter, _ *http.Request) {
	snap, err := h.corpus.Current()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, NotReadyMessage, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ready",
		"version": snap.Version,
		"chunks":  len(snap.Chunks()),
	})
}

// Reload handles POST /admin/reload.
func (h *AdminHandler) Reload(w http.ResponseWriter, r *http.Request) {
	snap, err := h.corpus.Reload(r.Context())
	if err != nil {
		h.logger.WithContext(r.Context()).Error().Err(err).Msg("manual reload failed")
		writeError(w, http.StatusInternalServerError, "reload failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap.Stats())
}
