package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// listLoadTimeout bounds a shared list load, which runs detached from the
// request that started it.
const listLoadTimeout = 30 * time.Second

// RecordCache is satisfied by *cache.ListCache[Record].
type RecordCache interface {
	GetList(ctx context.Context) ([]Record, bool, error)
	Generation(ctx context.Context) (int64, error)
	SetListAt(ctx context.Context, gen int64, list []Record) (bool, error)
	Invalidate(ctx context.Context) error
}

type Service struct {
	repo  Repository
	cache RecordCache
	sf    singleflight.Group
	log   zerolog.Logger
}

// NewService creates a Service. If cache is nil, caching is disabled.
func NewService(repo Repository, cache RecordCache, logger zerolog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		log:   logger.With().Str("component", "patient").Logger(),
	}
}

// CreateRecord validates req and stores one record. Nothing is stored when
// validation fails.
func (s *Service) CreateRecord(ctx context.Context, req CreateRequest) (*Record, error) {
	rec, err := req.Record()
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, s.fault("create record", err)
	}

	if s.cache != nil {
		// The row is committed; a departed client must not leave the cache stale.
		if err := s.cache.Invalidate(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn().Err(err).Msg("record cache invalidate failed")
		}
	}
	return rec, nil
}

// ListRecords returns all records. The result is never nil.
func (s *Service) ListRecords(ctx context.Context) ([]Record, error) {
	if s.cache == nil {
		return s.load(ctx)
	}

	// Callers share one load, so it must not fail because the first caller
	// went away.
	v, err, _ := s.sf.Do("list", func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), listLoadTimeout)
		defer cancel()
		return s.loadCached(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Record), nil
}

// GetRecord returns one record by id.
func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, s.fault("get record", err)
	}
	return rec, nil
}

func (s *Service) loadCached(ctx context.Context) ([]Record, error) {
	list, ok, err := s.cache.GetList(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("record cache read failed")
	}
	if ok {
		return list, nil
	}

	// The generation is read before the store so a create that lands while
	// loading keeps this snapshot out of the cache.
	gen, genErr := s.cache.Generation(ctx)
	if genErr != nil {
		s.log.Warn().Err(genErr).Msg("record cache generation read failed")
	}

	list, err = s.load(ctx)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		return list, nil
	}
	if stored, err := s.cache.SetListAt(ctx, gen, list); err != nil {
		s.log.Warn().Err(err).Msg("record cache write failed")
	} else if !stored {
		s.log.Debug().Int64("generation", gen).Msg("record list changed during load, not cached")
	}
	return list, nil
}

func (s *Service) load(ctx context.Context) ([]Record, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, s.fault("list records", err)
	}
	if list == nil {
		list = []Record{}
	}
	return list, nil
}

func (s *Service) fault(op string, err error) error {
	s.log.Error().Err(err).Str("op", op).Msg("patient operation failed")
	return fmt.Errorf("%w: %s: %v", ErrServerFault, op, err)
}
