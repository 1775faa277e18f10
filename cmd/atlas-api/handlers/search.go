package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/pipeline"
)

// Error messages of the search endpoint.
const (
	MissingQueryMessage = "Query saknas"
	EmptyQueryMessage   = "Tom fråga mottagen"
	NotReadyMessage     = "Kunskapsbasen är inte laddad"
)

// Turns answers one conversational turn. *pipeline.Pipeline implements it.
type Turns interface {
	Handle(ctx context.Context, req pipeline.Request) (*pipeline.Response, error)
}

// SearchHandler serves POST /search_all.
type SearchHandler struct {
	logger *observability.Logger
	turns  Turns
}

// NewSearchHandler creates a search handler.
func NewSearchHandler(logger *observability.Logger, turns Turns) *SearchHandler {
	return &SearchHandler{logger: logger.WithComponent("search-handler"), turns: turns}
}

// SearchRequestDTO is the request body. Query is a pointer so a missing
// field can be told apart from an empty one.
type SearchRequestDTO struct {
	Query        *string `json:"query"`
	SessionID    string  `json:"sessionId,omitempty"`
	SavedCity    string  `json:"savedCity,omitempty"`
	SavedArea    string  `json:"savedArea,omitempty"`
	SavedVehicle string  `json:"savedVehicle,omitempty"`
	// IsFirstMessage is decoded for older clients and ignored; the stored
	// session decides whether a turn is the first.
	IsFirstMessage *bool `json:"isFirstMessage,omitempty"`
}

// Search handles POST /search_all.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var dto SearchRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil || dto.Query == nil {
		writeError(w, http.StatusBadRequest, MissingQueryMessage, "")
		return
	}
	if strings.TrimSpace(*dto.Query) == "" {
		writeError(w, http.StatusBadRequest, EmptyQueryMessage, "")
		return
	}

	resp, err := h.turns.Handle(r.Context(), pipeline.Request{
		Query:        *dto.Query,
		SessionID:    dto.SessionID,
		SavedCity:    dto.SavedCity,
		SavedArea:    dto.SavedArea,
		SavedVehicle: dto.SavedVehicle,
	})

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, pipeline.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, EmptyQueryMessage, "")
	case errors.Is(err, corpus.ErrNoCorpus):
		writeError(w, http.StatusServiceUnavailable, NotReadyMessage, "")
	default:
		h.logger.WithContext(r.Context()).Error().Err(err).Msg("search_all failed")
		if resp == nil {
			resp = &pipeline.Response{SessionID: dto.SessionID, Answer: pipeline.NotUnderstoodAnswer}
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"answer":    resp.Answer,
			"sessionId": resp.SessionID,
		})
	}
}
