package intent

import (
	"sort"
	"strings"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/textutil"
)

type area struct {
	name string // normalized
	city string
}

type alias struct {
	phrase string // normalized
	city   string
}

// Parser extracts slots against the cities and areas of one corpus snapshot.
// It is immutable and safe for concurrent use.
type Parser struct {
	cities  []string
	areas   []area
	aliases []alias
}

// NewParser builds a parser. areas maps lowercase area names to cities.
func NewParser(cities []string, areas map[string]string) *Parser {
	p := &Parser{cities: append([]string(nil), cities...)}

	for name, city := range areas {
		p.areas = append(p.areas, area{name: textutil.Normalize(name), city: city})
	}
	// Longer names first so "västra hamnen" wins over "hamnen".
	sort.Slice(p.areas, func(i, j int) bool {
		if len(p.areas[i].name) != len(p.areas[j].name) {
			return len(p.areas[i].name) > len(p.areas[j].name)
		}
		return p.areas[i].name < p.areas[j].name
	})

	for _, a := range cityAliases {
		for _, phrase := range a.phrases {
			p.aliases = append(p.aliases, alias{phrase: textutil.Normalize(phrase), city: a.target})
		}
	}

	return p
}

// Parse classifies the query and extracts slots. Slots the query does not
// mention are filled from fallback.
func (p *Parser) Parse(query string, fallback Slots) Result {
	q := textutil.Normalize(query)

	var found Slots
	for _, a := range p.areas {
		if textutil.ContainsWord(q, a.name) {
			found.Area = p.displayArea(a.name)
			found.City = a.city
			break
		}
	}
	if found.City == "" {
		found.City = p.extractCity(q, fallback.City)
	}
	found.Vehicle = extractVehicle(q, fallback.Vehicle)
	found.Service = extractService(q)

	in, conf := Classify(q)

	return Result{
		Intent:     in,
		Confidence: conf,
		Slots:      merge(found, fallback),
		Extracted:  found,
	}
}

func (p *Parser) extractCity(q, sessionCity string) string {
	for _, a := range p.aliases {
		if textutil.ContainsWord(q, a.phrase) {
			return a.city
		}
	}
	for _, c := range p.cities {
		if textutil.ContainsWord(q, textutil.Normalize(c)) {
			return c
		}
	}
	if sessionCity != "" && textutil.ContainsWord(q, textutil.Normalize(sessionCity)) {
		return sessionCity
	}
	return ""
}

// displayArea capitalizes a normalized area name the way offices spell it.
func (p *Parser) displayArea(name string) string {
	words := strings.Fields(name)
	for i, w := range words {
		r := []rune(w)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func extractVehicle(q, sessionVehicle string) string {
	for _, v := range vehicleMap {
		for _, phrase := range v.phrases {
			if textutil.ContainsWord(q, textutil.Normalize(phrase)) {
				return v.target
			}
		}
	}
	if sessionVehicle != "" && textutil.ContainsWord(q, textutil.Normalize(sessionVehicle)) {
		return strings.ToUpper(sessionVehicle)
	}
	return ""
}

func extractService(q string) string {
	for _, s := range serviceMap {
		for _, phrase := range s.phrases {
			if textutil.ContainsWord(q, phrase) {
				return s.target
			}
		}
	}
	return ""
}

func merge(found, fallback Slots) Slots {
	out := found
	if out.City == "" {
		out.City = fallback.City
	}
	if out.Area == "" {
		out.Area = fallback.Area
	}
	if out.Vehicle == "" {
		out.Vehicle = fallback.Vehicle
	}
	if out.Service == "" {
		out.Service = fallback.Service
	}
	return out
}
