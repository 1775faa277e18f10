package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/storage"
)

func TestNew_None(t *testing.T) {
	for _, driver := range []string{"", storage.DriverNone} {
		rec, err := New(context.Background(), storage.Config{Driver: driver}, observability.NopLogger())
		require.NoError(t, err)
		assert.IsType(t, &LogRecorder{}, rec)
		assert.NoError(t, rec.Record(context.Background(), &storage.TurnRecord{SessionID: "s"}))
		assert.NoError(t, rec.Close())
	}
}

func TestSQLRecorder_SQLite(t *testing.T) {
	ctx := context.Background()
	rec, err := New(ctx, storage.Config{
		Driver: storage.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "audit.db"),
	}, observability.NopLogger())
	require.NoError(t, err)
	defer rec.Close()

	sqlRec, ok := rec.(*SQLRecorder)
	require.True(t, ok)

	require.NoError(t, rec.Record(ctx, &storage.TurnRecord{
		SessionID: "s1",
		Query:     "vad är risk 1?",
		Intent:    "risk_info",
		ChunkIDs:  []string{"basfakta_riskutbildning_bil_mc.json_0"},
	}))

	turns, err := sqlRec.Turns().ListBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "risk_info", turns[0].Intent)
}

func TestNew_BadDriver(t *testing.T) {
	_, err := New(context.Background(), storage.Config{Driver: "oracle"}, observability.NopLogger())
	assert.Error(t, err)
}
