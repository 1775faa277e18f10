package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus/corpustest"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/pipeline"
)

type fakeTurns struct {
	got  pipeline.Request
	resp *pipeline.Response
	err  error
}

func (f *fakeTurns) Handle(_ context.Context, req pipeline.Request) (*pipeline.Response, error) {
	f.got = req
	return f.resp, f.err
}

func post(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/search_all", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestSearch(t *testing.T) {
	turns := &fakeTurns{resp: &pipeline.Response{SessionID: "s1", Answer: "Hej!", Context: []pipeline.ContextItem{}}}
	h := NewSearchHandler(observability.NopLogger(), turns)

	rec := post(t, h.Search, `{"query":"Vad kostar en körlektion?","sessionId":"s1","savedCity":"Göteborg","isFirstMessage":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "s1", body["sessionId"])
	assert.Equal(t, "Hej!", body["answer"])

	assert.Equal(t, "Vad kostar en körlektion?", turns.got.Query)
	assert.Equal(t, "Göteborg", turns.got.SavedCity)
	assert.Equal(t, pipeline.Request{Query: "Vad kostar en körlektion?", SessionID: "s1", SavedCity: "Göteborg"}, turns.got)
}

func TestSearch_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		resp   *pipeline.Response
		status int
		want   string
	}{
		{name: "missing query", body: `{"sessionId":"s1"}`, status: http.StatusBadRequest, want: `{"error":"Query saknas"}`},
		{name: "malformed body", body: `{`, status: http.StatusBadRequest, want: `{"error":"Query saknas"}`},
		{name: "empty query", body: `{"query":"  "}`, status: http.StatusBadRequest, want: `{"error":"Tom fråga mottagen"}`},
		{name: "pipeline empty query", body: `{"query":"x"}`, err: pipeline.ErrEmptyQuery, status: http.StatusBadRequest, want: `{"error":"Tom fråga mottagen"}`},
		{name: "corpus not loaded", body: `{"query":"x"}`, err: corpus.ErrNoCorpus, status: http.StatusServiceUnavailable, want: `{"error":"Kunskapsbasen är inte laddad"}`},
		{
			name:   "internal with response",
			body:   `{"query":"x","sessionId":"s9"}`,
			err:    fmt.Errorf("%w: boom", pipeline.ErrInternal),
			resp:   &pipeline.Response{SessionID: "s9", Answer: pipeline.NotUnderstoodAnswer},
			status: http.StatusInternalServerError,
			want:   `{"answer":"Jag förstår inte riktigt vad du menar nu? Kan du omformulera din fråga.","sessionId":"s9"}`,
		},
		{
			name:   "unexpected error",
			body:   `{"query":"x","sessionId":"s3"}`,
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			want:   `{"answer":"Jag förstår inte riktigt vad du menar nu? Kan du omformulera din fråga.","sessionId":"s3"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSearchHandler(observability.NopLogger(), &fakeTurns{resp: tt.resp, err: tt.err})
			rec := post(t, h.Search, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func newCorpus(t *testing.T, dir string) *corpus.Store {
	t.Helper()
	loader := corpus.NewLoader(dir, observability.NopLogger(), corpus.IndexOptions{FuzzyRatio: 0.2})
	return corpus.NewStore(loader, observability.NopLogger())
}

func TestAdmin(t *testing.T) {
	store := newCorpus(t, corpustest.WriteDir(t))
	h := NewAdminHandler(observability.NopLogger(), store)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	h.Reload(rec, httptest.NewRequest(http.MethodPost, "/admin/reload", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats corpus.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, uint64(1), stats.Version)
	assert.Equal(t, 3, stats.Offices)

	rec = httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ready"`)
}

func TestAdmin_ReloadFailure(t *testing.T) {
	store := newCorpus(t, filepath.Join(t.TempDir(), "missing"))
	h := NewAdminHandler(observability.NopLogger(), store)

	rec := httptest.NewRecorder()
	h.Reload(rec, httptest.NewRequest(http.MethodPost, "/admin/reload", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPrices(t *testing.T) {
	store := newCorpus(t, corpustest.WriteDir(t))
	_, err := store.Reload(context.Background())
	require.NoError(t, err)
	h := NewPriceHandler(observability.NopLogger(), store)

	tests := []struct {
		name   string
		query  string
		status int
		amount float64
		source string
	}{
		{name: "office", query: "service=K%C3%B6rlektion+BIL&office=Ullevi", status: http.StatusOK, amount: 695, source: "office_exact"},
		{name: "city", query: "service=K%C3%B6rlektion+BIL&city=Malm%C3%B6", status: http.StatusOK, amount: 720, source: "city_median"},
		{name: "global", query: "service=K%C3%B6rlektion+BIL", status: http.StatusOK, amount: 720, source: "global_median"},
		{name: "unknown service", query: "service=Fallsk%C3%A4rm", status: http.StatusNotFound},
		{name: "no service", query: "city=Malm%C3%B6", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/prices?"+tt.query, nil))
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status != http.StatusOK {
				return
			}
			var quote struct {
				Amount float64 `json:"amount"`
				Source string  `json:"source"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quote))
			assert.Equal(t, tt.amount, quote.Amount)
			assert.Equal(t, tt.source, quote.Source)
		})
	}
}
