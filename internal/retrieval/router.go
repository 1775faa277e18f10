package retrieval

import (
	"context"
	"errors"
	"time"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/contextlock"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/forceadd"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/intent"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
)

// ErrNoSnapshot is returned when a request carries no corpus snapshot.
var ErrNoSnapshot = errors.New("retrieval: no snapshot")

// RetrievalRequest is one retrieval over a fixed snapshot.
type RetrievalRequest struct {
	Snapshot *corpus.Snapshot
	Query    string
	Parsed   intent.Result
	Locked   contextlock.Context
}

// RetrievalResponse holds every stage's output so callers can explain a
// ranking.
type RetrievalResponse struct {
	SnapshotVersion uint64
	Search          *SearchResult
	ForceAdd        *forceadd.Result
	// Emergency is set when no rule fired and a critical answer matched.
	// Assembly is nil in that case.
	Emergency *corpus.CriticalAnswer
	Assembly  *Assembly
	LatencyMs int64
}

// RouterConfig holds router configuration.
type RouterConfig struct {
	Search    SearchConfig
	Assembler AssemblerConfig
	RuleOrder []string
}

// Router runs search, force-add and assembly in order.
type Router struct {
	logger    *observability.Logger
	searcher  *Searcher
	forceAdd  *forceadd.Engine
	assembler *Assembler
}

// NewRouter creates a retrieval router.
func NewRouter(logger *observability.Logger, cfg RouterConfig) (*Router, error) {
	engine, err := forceadd.NewEngine(logger, cfg.RuleOrder)
	if err != nil {
		return nil, err
	}

	return &Router{
		logger:    logger.WithComponent("retrieval"),
		searcher:  NewSearcher(logger, cfg.Search),
		forceAdd:  engine,
		assembler: NewAssembler(logger, cfg.Assembler),
	}, nil
}

// Searcher exposes the underlying searcher.
func (r *Router) Searcher() *Searcher {
	return r.searcher
}

// Query executes one retrieval.
func (r *Router) Query(ctx context.Context, req RetrievalRequest) (*RetrievalResponse, error) {
	if req.Snapshot == nil {
		return nil, ErrNoSnapshot
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	resp := &RetrievalResponse{SnapshotVersion: req.Snapshot.Version}

	resp.Search = r.searcher.Search(req.Snapshot, SearchRequest{
		Query:  req.Query,
		Locked: req.Locked,
		Intent: req.Parsed.Intent,
	})

	resp.ForceAdd = r.forceAdd.Execute(req.Snapshot, req.Query, req.Parsed, req.Locked.City)

	if len(resp.ForceAdd.MustAdd) == 0 {
		if answer, ok := forceadd.FindCriticalAnswer(req.Snapshot.CriticalAnswers(), req.Query); ok {
			resp.Emergency = &answer
			resp.LatencyMs = time.Since(start).Milliseconds()
			r.logger.WithContext(ctx).Info().Str("critical_answer", answer.ID).Msg("emergency fallback")
			return resp, nil
		}
	}

	resp.Assembly = r.assembler.Assemble(AssembleRequest{
		Snapshot:            req.Snapshot,
		Search:              resp.Search.Chunks,
		Forced:              resp.ForceAdd.MustAdd,
		Locked:              req.Locked,
		ForceHighConfidence: resp.ForceAdd.ForceHighConfidence,
	})
	resp.LatencyMs = time.Since(start).Milliseconds()

	r.logger.WithContext(ctx).Debug().
		Int("search_hits", resp.Search.Hits).
		Int("forced", len(resp.ForceAdd.MustAdd)).
		Strs("rules", resp.ForceAdd.Fired).
		Int("chunks", len(resp.Assembly.Chunks)).
		Bool("low_confidence", resp.Assembly.LowConfidence).
		Msg("retrieval complete")

	return resp, nil
}
