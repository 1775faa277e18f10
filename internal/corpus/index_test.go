package corpus_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus/corpustest"
)

func ids(hits []corpus.Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Chunk.ID
	}
	return out
}

func TestIndex_FieldBoosts(t *testing.T) {
	chunks := []*corpus.Chunk{
		{ID: "text", Text: "halkbana"},
		{ID: "keywords", Keywords: []string{"halkbana"}},
		{ID: "title", Title: "halkbana"},
	}
	ix := corpus.BuildIndex(chunks, corpus.IndexOptions{})

	hits := ix.Search("halkbana")
	assert.Equal(t, []string{"keywords", "title", "text"}, ids(hits))
}

func TestIndex_PrefixAndFuzzy(t *testing.T) {
	chunks := []*corpus.Chunk{
		{ID: "risk", Title: "riskutbildning"},
		{ID: "moped", Title: "mopedutbildning"},
		{ID: "other", Title: "teori"},
	}
	ix := corpus.BuildIndex(chunks, corpus.IndexOptions{FuzzyRatio: 0.2})

	prefix := ix.Search("riskutb")
	require.NotEmpty(t, prefix)
	assert.Equal(t, "risk", prefix[0].Chunk.ID)

	// one substitution away from "mopedutbildning"
	fuzzy := ix.Search("mopedutbildnimg")
	require.NotEmpty(t, fuzzy)
	assert.Equal(t, "moped", fuzzy[0].Chunk.ID)

	assert.Empty(t, ix.Search("xyz"))
	assert.Empty(t, ix.Search(""))
}

func TestIndex_FuzzyCountsRunes(t *testing.T) {
	chunks := []*corpus.Chunk{
		{ID: "malmo", City: "Malmö"},
		{ID: "vaxjo", City: "Växjö"},
		{ID: "gbg", City: "Göteborg"},
	}
	ix := corpus.BuildIndex(chunks, corpus.IndexOptions{FuzzyRatio: 0.2})

	tests := []struct {
		query string
		want  string
	}{
		{"malmo", "malmo"},
		{"vaxjö", "vaxjo"},
		{"goteborg", "gbg"},
		{"goteborj", "gbg"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			hits := ix.Search(tt.query)
			require.NotEmpty(t, hits)
			assert.Equal(t, tt.want, hits[0].Chunk.ID)
		})
	}
}

func TestIndex_MoreTermsRankHigher(t *testing.T) {
	chunks := []*corpus.Chunk{
		{ID: "one", Text: "körlektion"},
		{ID: "two", Text: "körlektion bil"},
	}
	ix := corpus.BuildIndex(chunks, corpus.IndexOptions{})

	hits := ix.Search("körlektion bil")
	require.Len(t, hits, 2)
	assert.Equal(t, "two", hits[0].Chunk.ID)
	assert.Equal(t, 2, hits[0].Terms)
}

func TestIndex_Deterministic(t *testing.T) {
	a := corpustest.Load(t)
	b := corpustest.Load(t)

	for _, q := range []string{"vad kostar körlektion bil göteborg", "risk 1", "adress ullevi"} {
		ha, hb := a.Index().Search(q), b.Index().Search(q)
		require.Equal(t, len(ha), len(hb), q)
		assert.Equal(t, ids(ha), ids(hb), q)
		for i := range ha {
			assert.InDelta(t, ha[i].Score, hb[i].Score, 1e-9)
		}
	}
}
