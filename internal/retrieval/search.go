// Package retrieval turns a parsed query into a ranked, filtered and
// token-bounded set of knowledge chunks.
package retrieval

import (
	"sort"
	"strings"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/contextlock"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/intent"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
)

// Contact boosts. They dwarf the locale boosts so that office cards lead a
// contact answer.
const (
	contactOfficeAreaBoost = 100000
	contactOfficeCityBoost = 90000
	contactAreaBoost       = 60000
	contactCityBoost       = 50000
	contactFactPenalty     = -20000
	contactMaxOthers       = 3
	companyFactSource      = "basfakta_om_foretaget"
)

// Boost is one named score adjustment.
type Boost struct {
	Name  string  `json:"name"`
	Delta float64 `json:"delta"`
}

// ScoredChunk is a chunk together with its ranking state.
type ScoredChunk struct {
	Chunk  *corpus.Chunk
	Score  float64
	Boosts []Boost
	Tier   Tier
	Forced bool
}

func (s *ScoredChunk) boost(name string, delta float64) {
	s.Score += delta
	s.Boosts = append(s.Boosts, Boost{Name: name, Delta: delta})
}

// SearchConfig holds search and re-scoring settings.
type SearchConfig struct {
	TopN               int
	MinWorkingSet      int
	MaxExpansionLength int
	AreaBoost          float64
	CityBoost          float64
	VehicleBoost       float64
	PerfectMatchBoost  float64
}

// DefaultSearchConfig returns the production search settings.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		TopN:               25,
		MinWorkingSet:      15,
		MaxExpansionLength: 250,
		AreaBoost:          600,
		CityBoost:          200,
		VehicleBoost:       6000,
		PerfectMatchBoost:  2_000_000,
	}
}

// SearchRequest is one search over a snapshot.
type SearchRequest struct {
	Query  string
	Locked contextlock.Context
	Intent intent.Intent
}

// SearchResult is the ranked output of Search.
type SearchResult struct {
	// Query is the augmented text sent to the index.
	Query  string
	Hits   int
	Chunks []ScoredChunk
}

// Searcher runs lexical search and domain re-scoring.
type Searcher struct {
	logger *observability.Logger
	config SearchConfig
}

// NewSearcher creates a searcher. Zero config values take the defaults.
func NewSearcher(logger *observability.Logger, cfg SearchConfig) *Searcher {
	def := DefaultSearchConfig()
	if cfg.TopN <= 0 {
		cfg.TopN = def.TopN
	}
	if cfg.MinWorkingSet <= 0 {
		cfg.MinWorkingSet = def.MinWorkingSet
	}
	if cfg.MaxExpansionLength <= 0 {
		cfg.MaxExpansionLength = def.MaxExpansionLength
	}
	if cfg.AreaBoost == 0 {
		cfg.AreaBoost = def.AreaBoost
	}
	if cfg.CityBoost == 0 {
		cfg.CityBoost = def.CityBoost
	}
	if cfg.VehicleBoost == 0 {
		cfg.VehicleBoost = def.VehicleBoost
	}
	if cfg.PerfectMatchBoost == 0 {
		cfg.PerfectMatchBoost = def.PerfectMatchBoost
	}

	return &Searcher{
		logger: logger.WithComponent("search"),
		config: cfg,
	}
}

// Search augments the query, searches the snapshot index and re-scores the
// baseline with locale, vehicle and contact boosts.
func (s *Searcher) Search(snap *corpus.Snapshot, req SearchRequest) *SearchResult {
	query := s.AugmentQuery(req.Query, req.Locked)
	hits := snap.Index().Search(query)

	chunks := s.baseline(snap, hits)
	chunks = dedupe(chunks)

	for i := range chunks {
		s.rescore(&chunks[i], req.Locked)
	}
	sortByScore(chunks)

	if req.Intent == intent.Contact {
		if req.Locked.City != "" || req.Locked.Area != "" {
			for i := range chunks {
				contactBoost(&chunks[i], req.Locked)
			}
			sortByScore(chunks)
		}
		chunks = contactFilter(chunks)
	}

	s.logger.Debug().
		Str("query", query).
		Int("hits", len(hits)).
		Int("chunks", len(chunks)).
		Msg("search complete")

	return &SearchResult{Query: query, Hits: len(hits), Chunks: chunks}
}

// AugmentQuery normalizes and expands the query, then appends the locked area
// (or city when no area is locked) unless the query already names it.
func (s *Searcher) AugmentQuery(query string, locked contextlock.Context) string {
	q := ExpandQuery(NormalizeQuery(query), s.config.MaxExpansionLength)
	lower := strings.ToLower(query)

	switch {
	case locked.Area != "":
		if area := strings.ToLower(locked.Area); !strings.Contains(lower, area) {
			q += " " + area
		}
	case locked.City != "":
		if city := strings.ToLower(locked.City); !strings.Contains(lower, city) {
			q += " " + city
		}
	}
	return strings.TrimSpace(q)
}

// baseline keeps the top N hits and pads with unused chunks at score zero up
// to the working set floor.
func (s *Searcher) baseline(snap *corpus.Snapshot, hits []corpus.Hit) []ScoredChunk {
	n := len(hits)
	if n > s.config.TopN {
		n = s.config.TopN
	}

	out := make([]ScoredChunk, 0, max(n, s.config.MinWorkingSet))
	used := make(map[string]struct{}, n)
	for _, h := range hits[:n] {
		out = append(out, ScoredChunk{Chunk: h.Chunk, Score: h.Score})
		used[h.Chunk.ID] = struct{}{}
	}

	for _, c := range snap.Chunks() {
		if len(out) >= s.config.MinWorkingSet {
			break
		}
		if _, ok := used[c.ID]; ok {
			continue
		}
		out = append(out, ScoredChunk{Chunk: c})
	}
	return out
}

func (s *Searcher) rescore(sc *ScoredChunk, locked contextlock.Context) {
	c := sc.Chunk

	switch {
	case locked.Area != "" && strings.EqualFold(c.Area, locked.Area):
		sc.boost("area", s.config.AreaBoost)
	case locked.Area == "" && corpus.SameCity(c.City, locked.City):
		sc.boost("city", s.config.CityBoost)
	}

	vehicleMatch := locked.Vehicle != "" && strings.EqualFold(c.Vehicle, locked.Vehicle)
	if vehicleMatch {
		sc.boost("vehicle", s.config.VehicleBoost)
	}

	if IsPerfectMatch(c, locked) {
		sc.boost("perfect_match", s.config.PerfectMatchBoost)
	}
}

// IsPerfectMatch reports whether c is the price line for the locked city and
// vehicle.
func IsPerfectMatch(c *corpus.Chunk, locked contextlock.Context) bool {
	return c.Kind == corpus.KindPrice &&
		locked.Vehicle != "" &&
		corpus.SameCity(c.City, locked.City) &&
		strings.EqualFold(c.Vehicle, locked.Vehicle)
}

func contactBoost(sc *ScoredChunk, locked contextlock.Context) {
	c := sc.Chunk
	if locked.Area != "" && c.Area != "" && !strings.EqualFold(c.Area, locked.Area) {
		return
	}
	areaMatch := locked.Area != "" && strings.EqualFold(c.Area, locked.Area)
	cityMatch := corpus.SameCity(c.City, locked.City)

	if c.Kind == corpus.KindOfficeInfo && cityMatch {
		switch {
		case areaMatch:
			sc.boost("contact_office_area", contactOfficeAreaBoost)
			return
		case locked.Area == "":
			sc.boost("contact_office_city", contactOfficeCityBoost)
			return
		}
	}

	if cityMatch && !c.FromFactSource() {
		switch {
		case areaMatch:
			sc.boost("contact_area", contactAreaBoost)
			return
		case locked.Area == "":
			sc.boost("contact_city", contactCityBoost)
			return
		}
	}

	if c.FromFactSource() {
		sc.boost("contact_fact_penalty", contactFactPenalty)
	}
}

// contactFilter narrows a contact answer to office cards and company facts.
// Price lines are never part of it.
func contactFilter(chunks []ScoredChunk) []ScoredChunk {
	var officeInfo, summaries, company, others []ScoredChunk
	for _, sc := range chunks {
		switch {
		case sc.Chunk.Kind == corpus.KindOfficeInfo:
			officeInfo = append(officeInfo, sc)
		case sc.Chunk.Kind == corpus.KindOfficeSummary:
			summaries = append(summaries, sc)
		case sc.Chunk.IsFact() && strings.Contains(sc.Chunk.Source, companyFactSource):
			company = append(company, sc)
		case sc.Chunk.Kind != corpus.KindPrice && len(others) < contactMaxOthers:
			others = append(others, sc)
		}
	}

	if len(officeInfo) == 0 {
		return append(summaries, company...)
	}

	out := make([]ScoredChunk, 0, len(officeInfo)+len(summaries)+len(company)+len(others))
	out = append(out, officeInfo...)
	out = append(out, summaries...)
	out = append(out, company...)
	return append(out, others...)
}

// dedupe keeps the highest scoring entry per chunk id, in first-seen order.
func dedupe(chunks []ScoredChunk) []ScoredChunk {
	pos := make(map[string]int, len(chunks))
	out := chunks[:0:0]
	for _, sc := range chunks {
		if i, ok := pos[sc.Chunk.ID]; ok {
			if sc.Score > out[i].Score {
				out[i] = sc
			}
			continue
		}
		pos[sc.Chunk.ID] = len(out)
		out = append(out, sc)
	}
	return out
}

func sortByScore(chunks []ScoredChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score > chunks[j].Score
	})
}
