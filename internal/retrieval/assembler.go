package retrieval

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/contextlock"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/forceadd"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
)

// Tier is a ranking band that outranks any score difference.
type Tier int

const (
	TierSearch Tier = iota
	TierForced
	TierForcedVehicle
	TierPerfectMatch
)

func (t Tier) String() string {
	switch t {
	case TierForced:
		return "forced"
	case TierForcedVehicle:
		return "forced_vehicle"
	case TierPerfectMatch:
		return "perfect_match"
	default:
		return "search"
	}
}

const officeRuleName = "office"

// AssemblerConfig holds context assembly settings.
type AssemblerConfig struct {
	MaxChunks              int
	TokenBudget            int
	LowConfidenceThreshold float64
	FactMultiplier         float64
	VehicleFilterMinimum   int
	ForceAddFloor          float64
	OfficeExtras           int
}

// DefaultAssemblerConfig returns the production assembly settings.
func DefaultAssemblerConfig() AssemblerConfig {
	return AssemblerConfig{
		MaxChunks:              18,
		TokenBudget:            3000,
		LowConfidenceThreshold: 0.25,
		FactMultiplier:         1.8,
		VehicleFilterMinimum:   3,
		ForceAddFloor:          9999,
		OfficeExtras:           3,
	}
}

// AssembleRequest is the input of Assemble.
type AssembleRequest struct {
	Snapshot *corpus.Snapshot
	Search   []ScoredChunk
	Forced   []forceadd.Added
	Locked   contextlock.Context
	// ForceHighConfidence bypasses the low-confidence gate.
	ForceHighConfidence bool
}

// Assembly is the selected and serialized context.
type Assembly struct {
	Chunks        []ScoredChunk
	Context       string
	Tokens        int
	LowConfidence bool
	BestScore     float64
}

// Assembler merges search results with force-adds and builds the bounded
// context handed to the generator.
type Assembler struct {
	logger *observability.Logger
	config AssemblerConfig
}

// NewAssembler creates an assembler. Zero config values take the defaults.
func NewAssembler(logger *observability.Logger, cfg AssemblerConfig) *Assembler {
	def := DefaultAssemblerConfig()
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = def.MaxChunks
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = def.TokenBudget
	}
	if cfg.LowConfidenceThreshold <= 0 {
		cfg.LowConfidenceThreshold = def.LowConfidenceThreshold
	}
	if cfg.FactMultiplier <= 0 {
		cfg.FactMultiplier = def.FactMultiplier
	}
	if cfg.VehicleFilterMinimum <= 0 {
		cfg.VehicleFilterMinimum = def.VehicleFilterMinimum
	}
	if cfg.ForceAddFloor <= 0 {
		cfg.ForceAddFloor = def.ForceAddFloor
	}
	if cfg.OfficeExtras <= 0 {
		cfg.OfficeExtras = def.OfficeExtras
	}

	return &Assembler{
		logger: logger.WithComponent("assembler"),
		config: cfg,
	}
}

// Assemble ranks, filters, gates and serializes.
func (a *Assembler) Assemble(req AssembleRequest) *Assembly {
	forced := append([]forceadd.Added(nil), req.Forced...)
	if req.Snapshot != nil {
		forced = append(forced, a.officeInjections(req.Snapshot, req.Locked)...)
	}

	ranked := a.merge(req.Search, forced, req.Locked)
	ranked = filterCity(ranked, req.Locked.City)
	ranked = a.filterVehicle(ranked, req.Locked.Vehicle)
	ranked = dropNonPositive(ranked)

	out := &Assembly{}
	// Tiers order the list, so the top entry is not always the top score.
	for _, sc := range ranked {
		if sc.Score > out.BestScore {
			out.BestScore = sc.Score
		}
	}

	if !req.ForceHighConfidence && !hasFact(ranked) &&
		out.BestScore < a.config.LowConfidenceThreshold {
		out.LowConfidence = true
		a.logger.Debug().Float64("best_score", out.BestScore).Msg("low confidence, asking for clarification")
		return out
	}

	if len(ranked) > a.config.MaxChunks {
		ranked = ranked[:a.config.MaxChunks]
	}

	parts := make([]string, 0, len(ranked))
	for _, sc := range ranked {
		text := Serialize(sc.Chunk)
		cost := EstimateTokens(text)
		if out.Tokens+cost > a.config.TokenBudget {
			break
		}
		parts = append(parts, text)
		out.Chunks = append(out.Chunks, sc)
		out.Tokens += cost
	}
	out.Context = strings.Join(parts, "\n\n")

	a.logger.Debug().
		Int("chunks", len(out.Chunks)).
		Int("tokens", out.Tokens).
		Msg("context assembled")

	return out
}

// officeInjections adds the office chunks of the locked city (and area):
// every chunk mentioning booking plus a few others.
func (a *Assembler) officeInjections(snap *corpus.Snapshot, locked contextlock.Context) []forceadd.Added {
	if locked.City == "" {
		return nil
	}

	var booking, other []forceadd.Added
	for _, c := range snap.Chunks() {
		if !c.IsOfficeSourced() || c.FromFactSource() || !corpus.SameCity(c.City, locked.City) {
			continue
		}
		if locked.Area != "" && !strings.EqualFold(c.Area, locked.Area) {
			continue
		}
		added := forceadd.Added{Chunk: c, Rule: officeRuleName}
		if mentionsBooking(c) {
			booking = append(booking, added)
		} else {
			other = append(other, added)
		}
	}
	if len(other) > a.config.OfficeExtras {
		other = other[:a.config.OfficeExtras]
	}
	return append(booking, other...)
}

func mentionsBooking(c *corpus.Chunk) bool {
	if strings.Contains(strings.ToLower(c.Text), "boka") {
		return true
	}
	for _, k := range c.Keywords {
		if strings.Contains(strings.ToLower(k), "boka") {
			return true
		}
	}
	return false
}

// merge folds force-adds into the search results, assigns tiers and sorts.
// A forced chunk already present keeps the higher of both scores.
func (a *Assembler) merge(search []ScoredChunk, forced []forceadd.Added, locked contextlock.Context) []ScoredChunk {
	out := make([]ScoredChunk, 0, len(search)+len(forced))
	pos := make(map[string]int, len(search)+len(forced))
	for _, sc := range search {
		sc.Boosts = append([]Boost(nil), sc.Boosts...)
		pos[sc.Chunk.ID] = len(out)
		out = append(out, sc)
	}

	for _, f := range forced {
		score := f.Score
		tier := TierForced
		if locked.Vehicle != "" && strings.EqualFold(f.Chunk.Vehicle, locked.Vehicle) {
			tier = TierForcedVehicle
		}
		if score <= 0 {
			score = a.config.ForceAddFloor
		}

		i, ok := pos[f.Chunk.ID]
		if !ok {
			pos[f.Chunk.ID] = len(out)
			out = append(out, ScoredChunk{Chunk: f.Chunk})
			i = len(out) - 1
		}
		sc := &out[i]
		// The forced copy may carry rewritten text.
		sc.Chunk = f.Chunk
		sc.Forced = true
		if tier > sc.Tier {
			sc.Tier = tier
		}
		if score > sc.Score {
			sc.Boosts = append(sc.Boosts, Boost{Name: "forced:" + f.Rule, Delta: score - sc.Score})
			sc.Score = score
		}
	}

	for i := range out {
		sc := &out[i]
		if IsPerfectMatch(sc.Chunk, locked) {
			sc.Tier = TierPerfectMatch
		}
		if sc.Chunk.IsFact() && sc.Score != 0 {
			delta := sc.Score*a.config.FactMultiplier - sc.Score
			sc.boost("fact_multiplier", delta)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return out[i].Tier > out[j].Tier
		}
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Chunk.IsFact() && !out[j].Chunk.IsFact()
	})
	return out
}

// filterCity drops chunks that belong to another city. Chunks without a
// city always stay.
func filterCity(chunks []ScoredChunk, city string) []ScoredChunk {
	if city == "" {
		return chunks
	}
	out := chunks[:0:0]
	for _, sc := range chunks {
		if sc.Chunk.City == "" || strings.EqualFold(sc.Chunk.City, city) {
			out = append(out, sc)
		}
	}
	return out
}

// filterVehicle drops chunks for another vehicle class unless they are
// facts, office cards or strongly forced. The filter is abandoned when it
// would leave too little context.
func (a *Assembler) filterVehicle(chunks []ScoredChunk, vehicle string) []ScoredChunk {
	if vehicle == "" {
		return chunks
	}
	out := chunks[:0:0]
	for _, sc := range chunks {
		c := sc.Chunk
		switch {
		case c.Vehicle == "", strings.EqualFold(c.Vehicle, vehicle):
		case c.IsFact(), c.Kind == corpus.KindOfficeInfo, c.Kind == corpus.KindOfficeSummary:
		case sc.Forced && sc.Score >= a.config.ForceAddFloor:
		default:
			continue
		}
		out = append(out, sc)
	}

	floor := a.config.VehicleFilterMinimum
	if len(out) < floor && len(chunks) >= floor {
		a.logger.Debug().Int("kept", len(out)).Int("available", len(chunks)).Msg("vehicle filter too strict, keeping all")
		return chunks
	}
	return out
}

func dropNonPositive(chunks []ScoredChunk) []ScoredChunk {
	out := chunks[:0:0]
	for _, sc := range chunks {
		if sc.Score > 0 {
			out = append(out, sc)
		}
	}
	return out
}

func hasFact(chunks []ScoredChunk) bool {
	for _, sc := range chunks {
		if sc.Chunk.IsFact() {
			return true
		}
	}
	return false
}

// Serialize renders one chunk as a context line.
func Serialize(c *corpus.Chunk) string {
	text := fmt.Sprintf("%s: %s", c.Title, c.Text)
	if c.Price != nil {
		text += fmt.Sprintf(" - %s SEK", corpus.FormatAmount(c.Price.Amount))
	}
	return text
}

// EstimateTokens approximates the token cost of text at four runes per token.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
