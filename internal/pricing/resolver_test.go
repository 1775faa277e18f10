package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus/corpustest"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/pricing"
)

func TestResolver_Resolve(t *testing.T) {
	r := pricing.NewResolver(corpustest.Load(t))

	tests := []struct {
		name   string
		req    pricing.Request
		amount float64
		source pricing.Source
	}{
		{"office by area", pricing.Request{Office: "Ullevi", Service: "Körlektion BIL"}, 695, pricing.SourceOffice},
		{"office by id", pricing.Request{Office: "goteborg_ullevi", Service: "risk 1"}, 800, pricing.SourceOffice},
		{"office by display name", pricing.Request{Office: "malmö - triangeln", Service: "am moped"}, 4500, pricing.SourceOffice},
		{"city median", pricing.Request{City: "Stockholm", Service: "körlektion mc"}, 900, pricing.SourceCityMedian},
		{"office miss falls back to city", pricing.Request{City: "Malmö", Office: "Ullevi", Service: "AM Moped"}, 4500, pricing.SourceCityMedian},
		// 695, 720, 750
		{"global median odd", pricing.Request{Service: "körlektion bil"}, 720, pricing.SourceGlobalMedian},
		// 850, 900
		{"global median even", pricing.Request{City: "Umeå", Service: "mc"}, 875, pricing.SourceGlobalMedian},
		{"keyword match", pricing.Request{City: "Göteborg", Service: "testlektion"}, 499, pricing.SourceCityMedian},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := r.Resolve(tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.amount, q.Amount)
			assert.Equal(t, tt.source, q.Source)
			assert.Equal(t, "SEK", q.Currency)
			assert.NotEmpty(t, q.Matches)
		})
	}
}

func TestResolver_NoPrice(t *testing.T) {
	r := pricing.NewResolver(corpustest.Load(t))

	_, err := r.Resolve(pricing.Request{City: "Göteborg", Service: "helikopter"})
	assert.ErrorIs(t, err, pricing.ErrNoPrice)

	_, err = r.Resolve(pricing.Request{City: "Göteborg", Service: "  "})
	assert.ErrorIs(t, err, pricing.ErrNoPrice)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, pricing.Median(nil))
	assert.Equal(t, 5.0, pricing.Median([]float64{9, 1, 5}))
	assert.Equal(t, 3.0, pricing.Median([]float64{4, 1}))
	assert.Equal(t, 4.0, pricing.Median([]float64{4, 3, 1, 5}))
}
