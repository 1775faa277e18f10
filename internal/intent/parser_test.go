package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestParser() *Parser {
	return NewParser(
		[]string{"Göteborg", "Malmö", "Stockholm"},
		map[string]string{"ullevi": "Göteborg", "triangeln": "Malmö", "västra hamnen": "Malmö"},
	)
}

func TestClassify_Precedence(t *testing.T) {
	tests := []struct {
		query string
		want  Intent
		conf  float64
	}{
		{query: "hur blir vädret imorgon, blir det regn", want: Weather, conf: 0.95},
		{query: "vad kostar en testlektion", want: TestLesson, conf: 0.92},
		{query: "vad är risk 1", want: Risk, conf: 0.86},
		{query: "jag har haft körkort i 6 år kan jag vara handledare", want: Handledare, conf: 0.82},
		{query: "hur lång är handläggningstiden för körkortstillstånd", want: Permit, conf: 0.80},
		{query: "vilka är era avbokningsregler", want: Policy, conf: 0.85},
		{query: "vad har ni för telefonnummer", want: Contact, conf: 0.80},
		{query: "hur bokar jag", want: Booking, conf: 0.76},
		{query: "vad kostar körlektion bil", want: Price, conf: 0.75},
		{query: "har ni studentrabatt", want: Discount, conf: 0.70},
		{query: "förklara vad automat innebär", want: Info, conf: 0.65},
		{query: "hej hej", want: Unknown, conf: UnknownConfidence},
		// testlesson outranks price even with price phrasing
		{query: "vad kostar en provlektion", want: TestLesson, conf: 0.92},
		// policy outranks contact
		{query: "vart skickar jag fakturaadress", want: Policy, conf: 0.85},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, conf := Classify(tt.query)
			assert.Equal(t, tt.want, got)
			assert.InDelta(t, tt.conf, conf, 1e-9)
		})
	}
}

func TestClassify_UnicodeBoundaries(t *testing.T) {
	// "sol" inside "solna" is not weather
	got, _ := Classify("finns ni i solna")
	assert.NotEqual(t, Weather, got)

	got, _ = Classify("blir det snö")
	assert.Equal(t, Weather, got)
}

func TestParse_AreaForcesCity(t *testing.T) {
	p := newTestParser()

	r := p.Parse("Vad kostar en körlektion vid Ullevi?", Slots{City: "Malmö"})
	assert.Equal(t, "Ullevi", r.Extracted.Area)
	assert.Equal(t, "Göteborg", r.Extracted.City)
	assert.Equal(t, "Göteborg", r.Slots.City)
}

func TestParse_LongestAreaWins(t *testing.T) {
	p := NewParser([]string{"Malmö"}, map[string]string{"hamnen": "Malmö", "västra hamnen": "Malmö"})

	r := p.Parse("kontor i västra hamnen", Slots{})
	assert.Equal(t, "Västra Hamnen", r.Extracted.Area)
}

func TestParse_CityOrder(t *testing.T) {
	p := newTestParser()

	tests := []struct {
		name     string
		query    string
		fallback Slots
		want     string
	}{
		{name: "alias", query: "har ni kontor i gbg", want: "Göteborg"},
		{name: "alias misspelling", query: "körlektion i götebrog", want: "Göteborg"},
		{name: "known city", query: "jag menar Malmö istället", want: "Malmö"},
		{name: "city with non-ascii edge", query: "pris i malmö?", want: "Malmö"},
		{name: "city without diacritics", query: "pris i malmo", want: "Malmö"},
		{name: "session city mentioned", query: "finns ni i lund", fallback: Slots{City: "Lund"}, want: "Lund"},
		{name: "nothing", query: "vad kostar det", want: ""},
		{name: "alias before city", query: "solna eller malmö", want: "Stockholm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := p.Parse(tt.query, tt.fallback)
			assert.Equal(t, tt.want, r.Extracted.City)
		})
	}
}

func TestParse_Vehicle(t *testing.T) {
	p := newTestParser()

	tests := []struct {
		query    string
		fallback string
		want     string
	}{
		{query: "Vad kostar körlektion bil?", want: "BIL"},
		{query: "pris för b96", want: "SLÄP"},
		{query: "jag vill ta c-körkort", want: "LASTBIL"},
		{query: "moped klass 1", want: "AM"},
		{query: "tung motorcykel", want: "MC"},
		{query: "vad kostar handledarkurs", want: "INTRO"},
		{query: "bilen är röd", want: ""},
		{query: "och för mc då", fallback: "BIL", want: "MC"},
		{query: "hur många lektioner", fallback: "MC", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := p.Parse(tt.query, Slots{Vehicle: tt.fallback})
			assert.Equal(t, tt.want, r.Extracted.Vehicle)
		})
	}
}

func TestParse_Service(t *testing.T) {
	p := newTestParser()

	assert.Equal(t, "Risk 2", p.Parse("vad kostar halkbana", Slots{}).Extracted.Service)
	assert.Equal(t, "Körlektion BIL", p.Parse("pris på körlektion bil", Slots{}).Extracted.Service)
	assert.Equal(t, "Intensivkurs", p.Parse("har ni intensiv", Slots{}).Extracted.Service)
	assert.Empty(t, p.Parse("hej", Slots{}).Extracted.Service)
}

func TestParse_FallbackMerge(t *testing.T) {
	p := newTestParser()
	fallback := Slots{City: "Göteborg", Area: "Ullevi", Vehicle: "BIL", Service: "Risk 1"}

	r := p.Parse("vad kostar det", fallback)
	assert.Equal(t, Price, r.Intent)
	assert.Equal(t, fallback, r.Slots)
	assert.Equal(t, Slots{}, r.Extracted)

	r = p.Parse("och i malmö", fallback)
	assert.Equal(t, "Malmö", r.Slots.City)
	assert.Equal(t, "BIL", r.Slots.Vehicle)
}

func TestForceWeather(t *testing.T) {
	r := Result{Intent: Price, Confidence: 0.75}
	r = ForceWeather(r, "Vad blir vädret? Väder i Kiruna")
	assert.Equal(t, Weather, r.Intent)
	assert.InDelta(t, 0.95, r.Confidence, 1e-9)

	r = ForceWeather(Result{Intent: Price}, "vad kostar det")
	assert.Equal(t, Price, r.Intent)
}

func TestCanonicalCity(t *testing.T) {
	tests := map[string]string{
		"gbg":         "Göteborg",
		" Gothenburg": "Göteborg",
		"sthlm":       "Stockholm",
		"växjö":       "Växjö",
		"MALMÖ":       "Malmö",
		"malmo":       "Malmö",
		"goteborg":    "Göteborg",
		"Umeå ":       "Umeå",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, CanonicalCity(in))
		})
	}
}
