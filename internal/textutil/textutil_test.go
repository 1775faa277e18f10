package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "  Vad KOSTAR körlektion bil?? ", want: "vad kostar körlektion bil"},
		{in: "B-körkort, Göteborg!", want: "b-körkort göteborg"},
		{in: "risk\t1\n\ni Malmö", want: "risk 1 i malmö"},
		{in: "ＡＭ kurs", want: "am kurs"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestContainsWord(t *testing.T) {
	tests := []struct {
		text   string
		phrase string
		want   bool
	}{
		{text: "jag bor i malmö", phrase: "malmö", want: true},
		{text: "malmöbor", phrase: "malmö", want: false},
		{text: "vad kostar bil?", phrase: "bil", want: true},
		{text: "bilen är röd", phrase: "bil", want: false},
		{text: "personbil och bil", phrase: "bil", want: true},
		{text: "be-kort tack", phrase: "be", want: true},
		{text: "behöver", phrase: "be", want: false},
		{text: "växjö", phrase: "växjö", want: true},
		{text: "risk 1 kurs", phrase: "risk 1", want: true},
		{text: "risk 12", phrase: "risk 1", want: false},
		{text: "anything", phrase: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.text+"/"+tt.phrase, func(t *testing.T) {
			assert.Equal(t, tt.want, ContainsWord(tt.text, tt.phrase))
		})
	}
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"körlektion", "bil", "695", "sek"}, Tokenize("Körlektion BIL: 695 SEK."))
	assert.Empty(t, Tokenize("  -- "))
}

func TestContainsAny(t *testing.T) {
	assert.True(t, ContainsAny("hur bokar jag", "boka"))
	assert.False(t, ContainsAny("hej", "boka", ""))
}
