package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/config"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/corpus/corpustest"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Corpus.Dir = corpustest.WriteDir(t)
	cfg.Auth.ClientAPIKey = "client-key"
	cfg.Generator.APIKey = "test-key"
	cfg.Generator.BaseURL = "http://127.0.0.1:1"
	return cfg
}

func TestNew_WiresPipeline(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit.Driver = storage.DriverSQLite
	cfg.Audit.SQLite.Path = filepath.Join(t.TempDir(), "audit.db")

	a, err := New(context.Background(), cfg, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.True(t, a.Corpus.Ready())
	assert.NotNil(t, a.Pipeline)
	assert.NotNil(t, a.Sessions)

	snap, err := a.Corpus.Current()
	require.NoError(t, err)
	assert.Contains(t, snap.Cities(), "Göteborg")
}

func TestNew_MissingCorpus(t *testing.T) {
	cfg := testConfig(t)
	cfg.Corpus.Dir = filepath.Join(t.TempDir(), "missing")

	_, err := New(context.Background(), cfg, observability.NopLogger())
	assert.ErrorContains(t, err, "load corpus")
}

func TestNew_BadRuleOrder(t *testing.T) {
	cfg := testConfig(t)
	cfg.Retrieval.RuleOrder = []string{"no-such-rule"}

	_, err := New(context.Background(), cfg, observability.NopLogger())
	assert.ErrorContains(t, err, "create router")
}

func TestRouterConfig(t *testing.T) {
	rc := RouterConfig(config.DefaultRetrievalConfig())

	assert.Equal(t, 25, rc.Search.TopN)
	assert.Equal(t, 15, rc.Search.MinWorkingSet)
	assert.Equal(t, 6000.0, rc.Search.VehicleBoost)
	assert.Equal(t, 18, rc.Assembler.MaxChunks)
	assert.Equal(t, 3000, rc.Assembler.TokenBudget)
	assert.Equal(t, 9999.0, rc.Assembler.ForceAddFloor)
	assert.Equal(t, 3, rc.Assembler.OfficeExtras)
}

func TestAuditConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RootPath = "/srv/atlas"
	cfg.Audit.Driver = storage.DriverSQLite

	sc := AuditConfig(cfg)
	assert.Equal(t, storage.DriverSQLite, sc.Driver)
	assert.Equal(t, "/srv/atlas/atlas-audit.db", sc.DSN)
	assert.Equal(t, "WAL", sc.JournalMode)

	cfg.Audit.Driver = storage.DriverPostgres
	cfg.Audit.Postgres.DSN = "postgres://atlas@db/atlas"
	pc := AuditConfig(cfg)
	assert.Equal(t, "postgres://atlas@db/atlas", pc.DSN)
	assert.Equal(t, 10, pc.MaxOpenConns)
}
