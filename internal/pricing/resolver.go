// Package pricing resolves the price of a service for an office, a city or
// the whole school.
package pricing

import (
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus"
)

// ErrNoPrice is returned when no office lists the service.
var ErrNoPrice = errors.New("no price found")

// Source tells which fallback level produced a quote.
type Source string

const (
	SourceOffice       Source = "office_exact"
	SourceCityMedian   Source = "city_median"
	SourceGlobalMedian Source = "global_median"
)

// Match is one price line that contributed to a quote.
type Match struct {
	OfficeID string  `json:"office_id"`
	Office   string  `json:"office"`
	City     string  `json:"city"`
	Service  string  `json:"service"`
	Amount   float64 `json:"amount"`
}

// Quote is a resolved price.
type Quote struct {
	Service  string  `json:"service"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Source   Source  `json:"source"`
	Matches  []Match `json:"matches"`
}

// Request selects a price. Office may be an office id, its display name or
// its area.
type Request struct {
	City    string
	Office  string
	Service string
}

// Resolver looks up prices in a corpus snapshot.
type Resolver struct {
	snap *corpus.Snapshot
}

// NewResolver creates a resolver over snap.
func NewResolver(snap *corpus.Snapshot) *Resolver {
	return &Resolver{snap: snap}
}

// Resolve tries the exact office, then the median of the city, then the
// median over every office.
func (r *Resolver) Resolve(req Request) (*Quote, error) {
	term := strings.ToLower(strings.TrimSpace(req.Service))
	if term == "" {
		return nil, ErrNoPrice
	}

	if req.Office != "" {
		for _, o := range r.snap.Offices() {
			if !officeMatches(o, req.Office) {
				continue
			}
			if m := matchesIn([]*corpus.Office{o}, term); len(m) > 0 {
				return &Quote{Service: m[0].Service, Amount: m[0].Amount, Currency: "SEK", Source: SourceOffice, Matches: m[:1]}, nil
			}
		}
	}

	if req.City != "" {
		if m := matchesIn(r.snap.OfficesIn(req.City, ""), term); len(m) > 0 {
			return medianQuote(req.Service, SourceCityMedian, m), nil
		}
	}

	if m := matchesIn(r.snap.Offices(), term); len(m) > 0 {
		return medianQuote(req.Service, SourceGlobalMedian, m), nil
	}

	return nil, ErrNoPrice
}

func officeMatches(o *corpus.Office, office string) bool {
	return strings.EqualFold(o.ID, office) ||
		strings.EqualFold(o.DisplayName(), office) ||
		(o.Area != "" && strings.EqualFold(o.Area, office))
}

func matchesIn(offices []*corpus.Office, term string) []Match {
	var out []Match
	for _, o := range offices {
		for _, p := range o.Prices {
			if !serviceMatches(term, p) {
				continue
			}
			out = append(out, Match{
				OfficeID: o.ID,
				Office:   o.DisplayName(),
				City:     o.City,
				Service:  p.ServiceName,
				Amount:   p.Amount,
			})
		}
	}
	return out
}

// serviceMatches compares case-insensitively on the service name, then on
// keywords in either direction.
func serviceMatches(term string, p corpus.ServicePrice) bool {
	name := strings.ToLower(p.ServiceName)
	if name == term || strings.Contains(name, term) {
		return true
	}
	for _, kw := range p.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && (strings.Contains(term, kw) || strings.Contains(kw, term)) {
			return true
		}
	}
	return false
}

func medianQuote(service string, src Source, matches []Match) *Quote {
	amounts := make([]float64, len(matches))
	for i, m := range matches {
		amounts[i] = m.Amount
	}
	return &Quote{Service: service, Amount: Median(amounts), Currency: "SEK", Source: src, Matches: matches}
}

// Median returns the middle value; an even count averages and rounds the
// two middle values.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return math.Round((sorted[mid-1] + sorted[mid]) / 2)
	}
	return sorted[mid]
}
