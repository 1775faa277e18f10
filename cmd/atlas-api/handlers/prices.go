package handlers

import (
	"errors"
	"net/http"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/pricing"
)

// PriceHandler serves GET /api/v1/prices.
type PriceHandler struct {
	logger *observability.Logger
	corpus Corpus
}

// NewPriceHandler creates a price handler.
func NewPriceHandler(logger *observability.Logger, c Corpus) *PriceHandler {
	return &PriceHandler{logger: logger.WithComponent("price-handler"), corpus: c}
}

// Get resolves ?service= for an optional city and office.
func (h *PriceHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	service := q.Get("service")
	if service == "" {
		writeError(w, http.StatusBadRequest, "service is required", "")
		return
	}

	snap, err := h.corpus.Current()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, NotReadyMessage, "")
		return
	}

	quote, err := pricing.NewResolver(snap).Resolve(pricing.Request{
		City:    q.Get("city"),
		Office:  q.Get("office"),
		Service: service,
	})
	if errors.Is(err, pricing.ErrNoPrice) {
		writeError(w, http.StatusNotFound, "no price found", service)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "price lookup failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, quote)
}
