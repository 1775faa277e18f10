package corpus

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
)

// Source builds snapshots. *Loader is the production implementation.
type Source interface {
	Load(ctx context.Context) (*Snapshot, error)
}

// Store publishes the current snapshot. Readers never block; a reload builds
// a complete snapshot off to the side and swaps it in one atomic store.
type Store struct {
	source  Source
	logger  *observability.Logger
	current atomic.Pointer[Snapshot]
	version atomic.Uint64
	group   singleflight.Group
}

// NewStore creates an empty store. Call Reload before serving.
func NewStore(source Source, logger *observability.Logger) *Store {
	return &Store{source: source, logger: logger.WithComponent("corpus-store")}
}

// Current returns the active snapshot or ErrNoCorpus.
func (s *Store) Current() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrNoCorpus
	}
	return snap, nil
}

// Ready reports whether a snapshot has been published.
func (s *Store) Ready() bool {
	return s.current.Load() != nil
}

// Reload rebuilds the snapshot. Concurrent callers share one load. On error
// the previous snapshot stays active.
func (s *Store) Reload(ctx context.Context) (*Snapshot, error) {
	v, err, shared := s.group.Do("reload", func() (interface{}, error) {
		snap, err := s.source.Load(ctx)
		if err != nil {
			return nil, err
		}
		snap.Version = s.version.Add(1)
		s.current.Store(snap)
		return snap, nil
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("corpus reload failed, keeping previous snapshot")
		return nil, fmt.Errorf("reload corpus: %w", err)
	}

	snap := v.(*Snapshot)
	s.logger.Info().Int("chunks", len(snap.Chunks())).Bool("shared", shared).Msgf("corpus version %d active", snap.Version)
	return snap, nil
}
