package store

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// FailoverStore reads and writes through a primary store, switching to a
// fallback when the primary errors. The primary is probed again after a
// minute so a recovered backend takes over without a restart.
type FailoverStore struct {
	primary   KeyValueStore
	fallback  KeyValueStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverStore(primary, fallback KeyValueStore, logger *zerolog.Logger) *FailoverStore {
	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (s *FailoverStore) Load(ctx context.Context) ([]byte, error) {
	if !s.isDown.Load() {
		data, err := s.primary.Load(ctx)
		if err == nil {
			return data, nil
		}
		s.markDown(err)
	}

	if s.shouldProbe() {
		data, err := s.primary.Load(ctx)
		if err == nil {
			s.isDown.Store(false)
			return data, nil
		}
		s.lastCheck.Store(time.Now().UnixNano())
	}

	return s.fallback.Load(ctx)
}

func (s *FailoverStore) Save(ctx context.Context, data []byte) error {
	if !s.isDown.Load() {
		err := s.primary.Save(ctx, data)
		if err == nil {
			return nil
		}
		// Quota rejections are the caller's problem, not a backend outage.
		if isStorageFull(err) {
			return err
		}
		s.markDown(err)
	}

	return s.fallback.Save(ctx, data)
}

func (s *FailoverStore) markDown(err error) {
	s.logger.Error().Err(err).Msg("primary snapshot store failed, falling back")
	s.isDown.Store(true)
	s.lastCheck.Store(time.Now().UnixNano())
}

func (s *FailoverStore) shouldProbe() bool {
	if !s.isDown.Load() {
		return false
	}
	return time.Since(time.Unix(0, s.lastCheck.Load())) > time.Minute
}
