// Package forceadd injects business-critical chunks into a result set
// independent of their search score.
package forceadd

import (
	"fmt"
	"strings"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/intent"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
)

// RuleContext is the read-only input of a rule plus the halt switch.
type RuleContext struct {
	// Query is the lowercased raw query.
	Query      string
	Intent     intent.Intent
	Slots      intent.Slots
	LockedCity string
	Snapshot   *corpus.Snapshot

	halted         bool
	highConfidence bool
}

// Halt stops the engine after the current rule. Injections already made
// are discarded.
func (rc *RuleContext) Halt() {
	rc.halted = true
}

// TrustAnswer sets ForceHighConfidence without injecting anything, for turns
// answered by a tool rather than by the corpus.
func (rc *RuleContext) TrustAnswer() {
	rc.highConfidence = true
}

// Injection is a set of chunks a rule wants added at a fixed score.
type Injection struct {
	Chunks  []*corpus.Chunk
	Score   float64
	Prepend bool
	// HighConfidence suppresses the low-confidence gate when at least one
	// chunk of the injection was new.
	HighConfidence bool
}

// Rule is one force-add rule.
type Rule interface {
	Name() string
	Matches(rc *RuleContext) bool
	Apply(rc *RuleContext) []Injection
}

// Added is one chunk in the must-add list.
type Added struct {
	Chunk *corpus.Chunk
	Score float64
	Rule  string
}

// Result is the outcome of Execute.
type Result struct {
	MustAdd             []Added
	ForceHighConfidence bool
	Fired               []string
}

// ChunkIDs returns the must-add ids in order.
func (r *Result) ChunkIDs() []string {
	ids := make([]string, len(r.MustAdd))
	for i, a := range r.MustAdd {
		ids[i] = a.Chunk.ID
	}
	return ids
}

// Engine runs rules in a declared order.
type Engine struct {
	rules  []Rule
	logger *observability.Logger
}

// NewEngine builds an engine for the named rules. An empty order means
// DefaultOrder.
func NewEngine(logger *observability.Logger, order []string) (*Engine, error) {
	if len(order) == 0 {
		order = DefaultOrder
	}

	registry := make(map[string]Rule)
	for _, r := range BuiltinRules() {
		registry[r.Name()] = r
	}

	rules := make([]Rule, 0, len(order))
	seen := make(map[string]bool, len(order))
	for _, name := range order {
		r, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("unknown force-add rule %q", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("force-add rule %q listed twice", name)
		}
		seen[name] = true
		rules = append(rules, r)
	}

	return &Engine{rules: rules, logger: logger.WithComponent("forceadd")}, nil
}

// Rules returns the rule names in execution order.
func (e *Engine) Rules() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name()
	}
	return names
}

// Execute runs every rule against the query. A chunk is added at most once;
// the first rule to add it decides its score.
func (e *Engine) Execute(snap *corpus.Snapshot, query string, parsed intent.Result, lockedCity string) *Result {
	rc := &RuleContext{
		Query:      strings.ToLower(query),
		Intent:     parsed.Intent,
		Slots:      parsed.Slots,
		LockedCity: lockedCity,
		Snapshot:   snap,
	}

	res := &Result{}
	seen := make(map[string]struct{})

	for _, rule := range e.rules {
		if !rule.Matches(rc) {
			continue
		}
		injections := rule.Apply(rc)
		if rc.halted {
			e.logger.Debug().Str("rule", rule.Name()).Msg("force-add halted")
			return &Result{Fired: append(res.Fired, rule.Name()), ForceHighConfidence: rc.highConfidence}
		}

		added := 0
		for _, inj := range injections {
			var fresh []Added
			for _, c := range inj.Chunks {
				if _, dup := seen[c.ID]; dup {
					continue
				}
				seen[c.ID] = struct{}{}
				fresh = append(fresh, Added{Chunk: c, Score: inj.Score, Rule: rule.Name()})
			}
			if len(fresh) == 0 {
				continue
			}
			if inj.Prepend {
				res.MustAdd = append(fresh, res.MustAdd...)
			} else {
				res.MustAdd = append(res.MustAdd, fresh...)
			}
			if inj.HighConfidence {
				res.ForceHighConfidence = true
			}
			added += len(fresh)
		}

		if added > 0 {
			res.Fired = append(res.Fired, rule.Name())
			e.logger.Debug().Str("rule", rule.Name()).Int("added", added).Msg("force-add rule fired")
		}
	}

	if rc.highConfidence {
		res.ForceHighConfidence = true
	}
	return res
}

// FindCriticalAnswer returns the first critical answer with a keyword
// contained in the query.
func FindCriticalAnswer(answers []corpus.CriticalAnswer, query string) (corpus.CriticalAnswer, bool) {
	q := strings.ToLower(query)
	for _, a := range answers {
		for _, kw := range a.MatchKeywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(q, kw) {
				return a, true
			}
		}
	}
	return corpus.CriticalAnswer{}, false
}
