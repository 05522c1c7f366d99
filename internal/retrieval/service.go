package retrieval

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/telemed-faq/backend/internal/metrics"
	"github.com/telemed-faq/backend/internal/storage"
	"github.com/telemed-faq/backend/internal/textproc"
	"github.com/telemed-faq/backend/internal/tuning"
	"github.com/telemed-faq/backend/pkg/logger"
	"github.com/telemed-faq/backend/pkg/utils"
)

// Cache stores ranked result sets keyed by query fingerprint.
type Cache interface {
	GetSearch(ctx context.Context, key string, dest interface{}) (bool, error)
	SetSearch(ctx context.Context, key string, results interface{}) error
	InvalidateSearch(ctx context.Context) error
}

type Service struct {
	store    storage.Store
	settings *tuning.Store
	cache    Cache
	log      *zap.Logger
}

func NewService(store storage.Store, settings *tuning.Store) *Service {
	return &Service{
		store:    store,
		settings: settings,
		log:      logger.Named("retrieval"),
	}
}

// WithCache enables result caching. Pass only a non-nil cache.
func (s *Service) WithCache(cache Cache) *Service {
	s.cache = cache
	return s
}

// Search ranks reviewed entries for query using the live relevance cutoff.
// Store failures are logged and yield no results.
func (s *Service) Search(ctx context.Context, query string, limit int) []Result {
	return s.search(ctx, query, Options{Limit: limit, Cutoff: s.settings.Get().RelevanceCutoff})
}

// SearchWithOptions ranks without the cache, for maintenance paths that need
// fresh scores.
func (s *Service) SearchWithOptions(ctx context.Context, query string, opts Options) ([]Result, error) {
	candidates, err := s.store.ListReviewedEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load reviewed entries: %w", err)
	}
	return Rank(query, candidates, opts), nil
}

func (s *Service) search(ctx context.Context, query string, opts Options) []Result {
	normalized := textproc.Normalize(query)
	if normalized == "" {
		return []Result{}
	}

	key := utils.CacheKey(normalized, strconv.Itoa(opts.Limit), strconv.FormatFloat(opts.Cutoff, 'f', -1, 64))
	if s.cache != nil {
		var cached []Result
		hit, err := s.cache.GetSearch(ctx, key, &cached)
		if err != nil {
			s.log.Warn("Search cache read failed", zap.Error(err))
		}
		if hit {
			metrics.CacheHits.WithLabelValues("search").Inc()
			return cached
		}
		metrics.CacheMisses.WithLabelValues("search").Inc()
	}

	results, err := s.SearchWithOptions(ctx, query, opts)
	if err != nil {
		s.log.Error("Knowledge search failed, continuing without knowledge",
			zap.String("query", query),
			zap.Error(err),
		)
		metrics.RetrievalTotal.WithLabelValues("error").Inc()
		return []Result{}
	}

	if len(results) == 0 {
		metrics.RetrievalTotal.WithLabelValues("miss").Inc()
	} else {
		metrics.RetrievalTotal.WithLabelValues("hit").Inc()
		metrics.RetrievalScore.Observe(results[0].Score)
	}

	if s.cache != nil {
		if err := s.cache.SetSearch(ctx, key, results); err != nil {
			s.log.Warn("Search cache write failed", zap.Error(err))
		}
	}

	s.log.Debug("Knowledge search",
		zap.String("query", query),
		zap.Int("results", len(results)),
	)
	return results
}

// Invalidate drops cached result sets after the reviewed corpus changed.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateSearch(ctx); err != nil {
		s.log.Warn("Search cache invalidation failed", zap.Error(err))
	}
}
