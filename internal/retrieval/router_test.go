package retrieval_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/contextlock"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus/corpustest"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/intent"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/retrieval"
)

type routerFixture struct {
	snap   *corpus.Snapshot
	parser *intent.Parser
	router *retrieval.Router
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	snap := corpustest.Load(t)
	router, err := retrieval.NewRouter(observability.NopLogger(), retrieval.RouterConfig{})
	require.NoError(t, err)
	return &routerFixture{
		snap:   snap,
		parser: intent.NewParser(snap.Cities(), snap.Areas()),
		router: router,
	}
}

// ask runs one fresh-session turn the way the pipeline does.
func (f *routerFixture) ask(t *testing.T, query string) *retrieval.RetrievalResponse {
	t.Helper()
	parsed := f.parser.Parse(query, intent.Slots{})
	locked := contextlock.Resolve(contextlock.Context{}, contextlock.Context{
		City:    parsed.Extracted.City,
		Area:    parsed.Extracted.Area,
		Vehicle: parsed.Extracted.Vehicle,
	})
	resp, err := f.router.Query(context.Background(), retrieval.RetrievalRequest{
		Snapshot: f.snap,
		Query:    query,
		Parsed:   parsed,
		Locked:   locked,
	})
	require.NoError(t, err)
	return resp
}

func TestRouter_PriceInLockedCity(t *testing.T) {
	f := newRouterFixture(t)

	resp := f.ask(t, "Vad kostar en körlektion BIL i Göteborg?")

	require.Nil(t, resp.Emergency)
	require.NotNil(t, resp.Assembly)
	require.False(t, resp.Assembly.LowConfidence)
	require.NotEmpty(t, resp.Assembly.Chunks)

	top := resp.Assembly.Chunks[0]
	assert.Equal(t, corpustest.GoteborgCarPriceID, top.Chunk.ID)
	assert.Equal(t, retrieval.TierPerfectMatch, top.Tier)
	assert.Contains(t, resp.ForceAdd.Fired, "locked-city-price")

	for _, sc := range resp.Assembly.Chunks {
		if sc.Chunk.City != "" {
			assert.Equal(t, "Göteborg", sc.Chunk.City, sc.Chunk.ID)
		}
	}
	assert.Contains(t, resp.Assembly.Context, "Körlektion BIL i Göteborg - Ullevi")
}

func TestRouter_PerfectMatchAlwaysFirst(t *testing.T) {
	f := newRouterFixture(t)

	for _, q := range []string{
		"pris körlektion bil göteborg",
		"vad kostar körlektion bil i göteborg och hur funkar risk 1",
		"bil paket göteborg testlektion",
	} {
		t.Run(q, func(t *testing.T) {
			resp := f.ask(t, q)
			require.NotNil(t, resp.Assembly)
			require.NotEmpty(t, resp.Assembly.Chunks)
			locked := contextlock.Context{City: "Göteborg", Vehicle: corpus.VehicleCar}
			assert.True(t, retrieval.IsPerfectMatch(resp.Assembly.Chunks[0].Chunk, locked))
		})
	}
}

func TestRouter_RiskQuestionIsHighConfidence(t *testing.T) {
	f := newRouterFixture(t)

	resp := f.ask(t, "Vad är Risk 1?")

	require.NotNil(t, resp.Assembly)
	assert.True(t, resp.ForceAdd.ForceHighConfidence)
	assert.False(t, resp.Assembly.LowConfidence)
	assert.Contains(t, ids(resp.Assembly.Chunks), corpustest.Risk1ID)
	assert.Equal(t, corpustest.Risk1ID, resp.Assembly.Chunks[0].Chunk.ID)
}

func TestRouter_GibberishIsLowConfidence(t *testing.T) {
	f := newRouterFixture(t)

	resp := f.ask(t, "xyzzy qwerty")

	require.Nil(t, resp.Emergency)
	require.NotNil(t, resp.Assembly)
	assert.True(t, resp.Assembly.LowConfidence)
	assert.Empty(t, resp.Assembly.Context)

}

func TestRouter_CriticalAnswerFallback(t *testing.T) {
	f := newRouterFixture(t)

	resp := f.ask(t, "Jag vill prata med kundtjänst")

	require.NotNil(t, resp.Emergency)
	assert.Equal(t, "ca_kundtjanst", resp.Emergency.ID)
	assert.Nil(t, resp.Assembly)
	assert.Empty(t, resp.ForceAdd.MustAdd)
}

func TestRouter_ForcedRuleSuppressesCriticalAnswer(t *testing.T) {
	f := newRouterFixture(t)

	// "kontakt" fires the contact rule, so the canned answer is not used.
	resp := f.ask(t, "kontakt kundtjänst")

	assert.Nil(t, resp.Emergency)
	require.NotNil(t, resp.Assembly)
	assert.Contains(t, resp.ForceAdd.Fired, "contact")
}

func TestRouter_Bounds(t *testing.T) {
	f := newRouterFixture(t)

	for _, q := range []string{
		"körlektion",
		"vad kostar det att ta körkort för bil och mc i malmö stockholm göteborg",
		"paket presentkort giltighet",
	} {
		t.Run(q, func(t *testing.T) {
			resp := f.ask(t, q)
			if resp.Assembly == nil {
				return
			}
			assert.LessOrEqual(t, len(resp.Assembly.Chunks), 18)
			assert.LessOrEqual(t, resp.Assembly.Tokens, 3000)
			seen := map[string]bool{}
			for _, sc := range resp.Assembly.Chunks {
				assert.False(t, seen[sc.Chunk.ID], "duplicate %s", sc.Chunk.ID)
				seen[sc.Chunk.ID] = true
				assert.Greater(t, sc.Score, 0.0)
			}
		})
	}
}

func TestRouter_Errors(t *testing.T) {
	f := newRouterFixture(t)

	_, err := f.router.Query(context.Background(), retrieval.RetrievalRequest{Query: "hej"})
	assert.ErrorIs(t, err, retrieval.ErrNoSnapshot)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.router.Query(ctx, retrieval.RetrievalRequest{Snapshot: f.snap, Query: "hej"})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = retrieval.NewRouter(observability.NopLogger(), retrieval.RouterConfig{RuleOrder: []string{"nope"}})
	assert.Error(t, err)
}
