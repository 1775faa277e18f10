// Package corpus loads the knowledge directory into immutable snapshots of
// chunks, lookup tables and a lexical index.
package corpus

import (
	"strconv"
	"strings"
)

// Kind tags the closed set of chunk variants.
type Kind string

const (
	// KindFact is a canonical, office-independent fact (basfakta).
	KindFact Kind = "basfakta"
	// KindPrice is one priced service line of one office.
	KindPrice Kind = "price"
	// KindOfficeInfo is a descriptive section of one office.
	KindOfficeInfo Kind = "office_info"
	// KindOfficeSummary is the one-line descriptor of an office.
	KindOfficeSummary Kind = "kontor_info"
)

// Vehicle classes used as slot values and on price chunks.
const (
	VehicleCar     = "BIL"
	VehicleMC      = "MC"
	VehicleAM      = "AM"
	VehicleTrailer = "SLÄP"
	VehicleTruck   = "LASTBIL"
	VehicleIntro   = "INTRO"
)

// Chunk is an immutable unit of retrievable knowledge. Office-sourced kinds
// carry City/Area/Office; only KindPrice carries Price.
type Chunk struct {
	ID       string
	Kind     Kind
	Title    string
	Text     string
	Source   string
	City     string
	Area     string
	Office   string
	OfficeID string
	Vehicle  string
	Keywords []string
	Price    *PriceDetail
}

// PriceDetail holds the fields specific to price chunks.
type PriceDetail struct {
	ServiceName string
	Amount      float64
	BookingURL  string
}

// FormatAmount renders a price without trailing zeros.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// IsFact reports whether the chunk is a canonical fact.
func (c *Chunk) IsFact() bool {
	return c.Kind == KindFact
}

// IsOfficeSourced reports whether the chunk was derived from an office file.
func (c *Chunk) IsOfficeSourced() bool {
	return c.Kind == KindPrice || c.Kind == KindOfficeInfo || c.Kind == KindOfficeSummary
}

// FromFactSource reports whether the chunk's source file is a basfakta file.
func (c *Chunk) FromFactSource() bool {
	return strings.HasPrefix(strings.ToLower(c.Source), "basfakta")
}

// WithText returns a copy of the chunk with its text replaced.
func (c *Chunk) WithText(text string) *Chunk {
	cp := *c
	cp.Text = text
	return &cp
}

// SameCity compares cities case-insensitively; an empty city never matches.
func SameCity(a, b string) bool {
	return a != "" && b != "" && strings.EqualFold(a, b)
}

// BookingKey maps a vehicle class to the key used in office booking links.
func BookingKey(vehicle string) string {
	if vehicle == VehicleCar {
		return "CAR"
	}
	return vehicle
}
