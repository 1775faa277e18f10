package corpus

import (
	"errors"
	"strings"
	"time"
)

// ErrNoCorpus is returned when no snapshot has been loaded yet.
var ErrNoCorpus = errors.New("corpus not loaded")

// Office is one office record with its contact card and booking links.
type Office struct {
	ID           string
	File         string
	City         string
	Area         string
	Name         string
	Contact      Contact
	OpeningHours []OpeningHours
	BookingLinks map[string]string
	Prices       []ServicePrice
}

// Contact is an office contact card.
type Contact struct {
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

// OpeningHours is one opening hours line.
type OpeningHours struct {
	Days  string `json:"days"`
	Hours string `json:"hours"`
}

// ServicePrice is one raw price list line.
type ServicePrice struct {
	ServiceName string
	Amount      float64
	Vehicle     string
	Keywords    []string
}

// DisplayName is "<city> - <area>" or the city alone.
func (o *Office) DisplayName() string {
	if o.Area != "" {
		return o.City + " - " + o.Area
	}
	return o.City
}

// CriticalAnswer is a canned answer used as a last-resort fallback.
type CriticalAnswer struct {
	ID            string   `json:"id"`
	MatchKeywords []string `json:"match_keywords"`
	Answer        string   `json:"answer"`
}

// Snapshot is an immutable, fully built corpus. Queries read one snapshot for
// their whole lifetime.
type Snapshot struct {
	Version  uint64
	LoadedAt time.Time

	chunks   []*Chunk
	byID     map[string]*Chunk
	index    *Index
	cities   []string
	areas    map[string]string
	offices  []*Office
	critical []CriticalAnswer
	skipped  []string
}

// Chunks returns all chunks in load order.
func (s *Snapshot) Chunks() []*Chunk {
	return s.chunks
}

// Chunk returns a chunk by id.
func (s *Snapshot) Chunk(id string) (*Chunk, bool) {
	c, ok := s.byID[id]
	return c, ok
}

// Index returns the lexical index.
func (s *Snapshot) Index() *Index {
	return s.index
}

// Cities returns the canonical city names in first-seen order.
func (s *Snapshot) Cities() []string {
	return s.cities
}

// Areas returns the lowercase area → canonical city table.
func (s *Snapshot) Areas() map[string]string {
	return s.areas
}

// Offices returns every office record.
func (s *Snapshot) Offices() []*Office {
	return s.offices
}

// CriticalAnswers returns the ordered fallback table.
func (s *Snapshot) CriticalAnswers() []CriticalAnswer {
	return s.critical
}

// Skipped lists files that failed to parse.
func (s *Snapshot) Skipped() []string {
	return s.skipped
}

// OfficesIn returns offices in city, restricted to area when area is set.
func (s *Snapshot) OfficesIn(city, area string) []*Office {
	var out []*Office
	for _, o := range s.offices {
		if !SameCity(o.City, city) {
			continue
		}
		if area != "" && !strings.EqualFold(o.Area, area) {
			continue
		}
		out = append(out, o)
	}
	return out
}

// Office returns an office by id.
func (s *Snapshot) Office(id string) (*Office, bool) {
	for _, o := range s.offices {
		if o.ID == id {
			return o, true
		}
	}
	return nil, false
}

// FactsBySource returns fact chunks whose source contains fragment.
func (s *Snapshot) FactsBySource(fragment string) []*Chunk {
	fragment = strings.ToLower(fragment)
	var out []*Chunk
	for _, c := range s.chunks {
		if c.IsFact() && strings.Contains(strings.ToLower(c.Source), fragment) {
			out = append(out, c)
		}
	}
	return out
}

// Facts returns every fact chunk.
func (s *Snapshot) Facts() []*Chunk {
	var out []*Chunk
	for _, c := range s.chunks {
		if c.IsFact() {
			out = append(out, c)
		}
	}
	return out
}

// PriceChunks returns the price chunks of a city.
func (s *Snapshot) PriceChunks(city string) []*Chunk {
	var out []*Chunk
	for _, c := range s.chunks {
		if c.Kind == KindPrice && SameCity(c.City, city) {
			out = append(out, c)
		}
	}
	return out
}

// Stats summarizes a snapshot.
type Stats struct {
	Version  uint64         `json:"version"`
	Chunks   int            `json:"chunks"`
	ByKind   map[Kind]int   `json:"by_kind"`
	ByCity   map[string]int `json:"by_city"`
	Offices  int            `json:"offices"`
	Critical int            `json:"critical_answers"`
	Skipped  []string       `json:"skipped,omitempty"`
}

// Stats counts chunks per kind and city.
func (s *Snapshot) Stats() Stats {
	st := Stats{
		Version:  s.Version,
		Chunks:   len(s.chunks),
		ByKind:   make(map[Kind]int),
		ByCity:   make(map[string]int),
		Offices:  len(s.offices),
		Critical: len(s.critical),
		Skipped:  s.skipped,
	}
	for _, c := range s.chunks {
		st.ByKind[c.Kind]++
		if c.City != "" {
			st.ByCity[c.City]++
		}
	}
	return st
}
