// Package intent classifies a query into a fixed intent enum and extracts the
// city, area, vehicle and service slots.
package intent

import (
	"regexp"
	"strings"
)

// Intent is the classified purpose of a query.
type Intent string

const (
	Weather    Intent = "weather"
	TestLesson Intent = "testlesson_info"
	Risk       Intent = "risk_info"
	Handledare Intent = "handledare_course"
	Permit     Intent = "tillstand_info"
	Policy     Intent = "policy"
	Contact    Intent = "contact_info"
	Booking    Intent = "booking"
	Price      Intent = "price_lookup"
	Discount   Intent = "discount"
	Info       Intent = "intent_info"
	Unknown    Intent = "unknown"
)

// UnknownConfidence is reported when no pattern matches.
const UnknownConfidence = 0.2

// Slots are the entities extracted from a query. Empty means not found.
type Slots struct {
	City    string `json:"city"`
	Area    string `json:"area"`
	Vehicle string `json:"vehicle"`
	Service string `json:"service"`
}

// Result is the parser output. Slots are merged with the caller's fallback;
// Extracted holds only what the query itself mentioned.
type Result struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Slots      Slots   `json:"slots"`
	Extracted  Slots   `json:"-"`
}

// Pattern is one row of the classification cascade.
type Pattern struct {
	Intent     Intent
	Confidence float64
	Re         *regexp.Regexp
}

// Word boundaries that treat å, ä and ö as letters.
const (
	lb = `(?:^|[^\p{L}\p{N}_])`
	rb = `(?:$|[^\p{L}\p{N}_])`
)

// Patterns is the classification cascade in precedence order; first match wins.
var Patterns = []Pattern{
	{Weather, 0.95, regexp.MustCompile(lb + `(?:väder|vad är det för väder|temperatur|hur varmt|regn|snö|sol)` + rb)},
	{TestLesson, 0.92, regexp.MustCompile(`testlektion|provlektion|prova[-\s]?på|prova[-\s]?på-?uppkörning|prov-?lektion|vad kostar(?:.*\s)?testlek(?:tion)?|kostar.*testlek(?:tion)?`)},
	{Risk, 0.86, regexp.MustCompile(lb + `(?:risk ?1|riskettan|risk ?2|risktvåan|halkbana)` + rb)},
	{Handledare, 0.82, regexp.MustCompile(`handledare|introduktionskurs|introkurs|handledarkurs|` + lb + `\d{1,2}\s?år` + rb + `|` + lb + `\d+\s?års` + rb)},
	{Permit, 0.80, regexp.MustCompile(`körkortstillstånd|tillstånd|körkortstillståndet`)},
	{Policy, 0.85, regexp.MustCompile(`avboka|ånger|återbetalning|avbokning|vab|villkor|ångerrätt|avbokningsregler|policy|kundavtal|faktura\s?(?:adress|till)|vart\s?skicka|skicka\s?till|betala|giltighet`)},
	{Contact, 0.80, regexp.MustCompile(`adress|hitta|ligger|karta|telefon|telefonnummer|nummer|numret|kontakt|mail|öppettider|vart`)},
	{Booking, 0.76, regexp.MustCompile(`boka|bokning|bokar|ledig tid|bokningslänk|bokningssida|hur bokar`)},
	{Price, 0.75, regexp.MustCompile(`vad kostar|pris|hur mycket|kostar det|pris för|vad tar ni|pris på|prislista|finns pris`)},
	{Discount, 0.70, regexp.MustCompile(`rabatt|erbjudande|rea|kampanj|studentrabatt|rabatter`)},
	{Info, 0.65, regexp.MustCompile(`vad är|beskriv|förklara|vad innebär|definition|hur fungerar`)},
}

// Classify runs the cascade over an already normalized query.
func Classify(normalized string) (Intent, float64) {
	for _, p := range Patterns {
		if p.Re.MatchString(normalized) {
			return p.Intent, p.Confidence
		}
	}
	return Unknown, UnknownConfidence
}

// ForceWeather overrides the intent when the raw query mentions the weather
// but the cascade missed it.
func ForceWeather(r Result, rawQuery string) Result {
	if r.Intent != Weather && strings.Contains(strings.ToLower(rawQuery), "väder") {
		r.Intent = Weather
		r.Confidence = 0.95
	}
	return r
}
