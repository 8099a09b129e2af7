// Package loader provides the batch data loader that coalesces point lookups
// into a single upstream fetch and caches the results by owning entity.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AtRiskMedia/compliance-core/internal/domain/records"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/caching/stores"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/compliance-core/pkg/config"
)

// ErrInvalidPaginationArgs is returned by Paginate for out-of-range arguments.
var ErrInvalidPaginationArgs = errors.New("invalid pagination arguments")

const recordKeyPrefix = "record:"

// Config holds the loader bounds.
type Config struct {
	TTL          time.Duration
	MaxPageSize  int
	FetchTimeout time.Duration
}

// NewConfig reads the loader settings from the central config package.
func NewConfig() Config {
	return Config{
		TTL:          config.LoaderTTL,
		MaxPageSize:  config.LoaderMaxPageSize,
		FetchTimeout: config.LoaderFetchTimeout,
	}
}

// PageQuery is a base query bounded to one page.
type PageQuery struct {
	Query  string `json:"query"`
	Page   int    `json:"page"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// Stats counts loader activity since start.
type Stats struct {
	Requested int64 `json:"requested"`
	CacheHits int64 `json:"cacheHits"`
	Fetches   int64 `json:"fetches"`
	Fetched   int64 `json:"fetched"`
}

// BatchLoader serves records from the cache store and fetches the remainder
// from the upstream repository in one call.
type BatchLoader struct {
	store  *stores.TaggedStore
	source records.RecordRepository
	config Config
	group  singleflight.Group
	logger *logging.ChanneledLogger

	requested atomic.Int64
	cacheHits atomic.Int64
	fetches   atomic.Int64
	fetched   atomic.Int64
}

// NewBatchLoader creates a loader over store and source.
func NewBatchLoader(store *stores.TaggedStore, source records.RecordRepository, cfg Config, logger *logging.ChanneledLogger) *BatchLoader {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.MaxPageSize < 1 {
		cfg.MaxPageSize = 100
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	return &BatchLoader{
		store:  store,
		source: source,
		config: cfg,
		logger: logger,
	}
}

// EntityTag is the cache tag carried by every record owned by entity id.
func EntityTag(id string) string {
	return "entity:" + id
}

// LoadMany returns the records for ids keyed by id. Duplicate and empty ids
// are ignored; ids unknown upstream are absent from the result. The shared
// upstream fetch is detached from any one caller's cancellation and bounded by
// FetchTimeout; each caller still stops waiting when its own ctx ends.
func (l *BatchLoader) LoadMany(ctx context.Context, ids []string) (map[string]*records.Record, error) {
	unique := dedupe(ids)
	result := make(map[string]*records.Record, len(unique))
	l.requested.Add(int64(len(unique)))

	missing := make([]string, 0, len(unique))
	for _, id := range unique {
		if cached, ok := l.store.Get(recordKeyPrefix + id); ok {
			if record, ok := cached.(*records.Record); ok {
				result[id] = record
				continue
			}
		}
		missing = append(missing, id)
	}
	l.cacheHits.Add(int64(len(result)))

	if len(missing) == 0 {
		return result, nil
	}

	sort.Strings(missing)
	flightKey := strings.Join(missing, ",")
	ch := l.group.DoChan(flightKey, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.config.FetchTimeout)
		defer cancel()
		return l.fetch(fetchCtx, missing)
	})

	fetched := 0
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("failed to load records: %w", res.Err)
		}
		for _, record := range res.Val.([]*records.Record) {
			if record == nil {
				continue
			}
			result[record.ID] = record
			fetched++
		}
	}

	l.logger.Cache().Debug("Batch load completed",
		"requested", len(unique), "cacheHits", len(unique)-len(missing), "fetched", fetched)
	return result, nil
}

// fetch issues the single upstream call and writes every record back to the store.
func (l *BatchLoader) fetch(ctx context.Context, ids []string) ([]*records.Record, error) {
	start := time.Now()
	l.fetches.Add(1)

	fetched, err := l.source.FindByIDs(ctx, ids)
	if err != nil {
		l.logger.Cache().Error("Upstream batch fetch failed", "error", err.Error(), "ids", len(ids))
		return nil, err
	}

	for _, record := range fetched {
		if record == nil {
			continue
		}
		tags := []string{EntityTag(record.OwnerID)}
		if record.OwnerID != record.ID {
			tags = append(tags, EntityTag(record.ID))
		}
		l.store.Set(recordKeyPrefix+record.ID, record, l.config.TTL, tags...)
	}
	l.fetched.Add(int64(len(fetched)))

	l.logger.Cache().Debug("Upstream batch fetch completed",
		"ids", len(ids), "found", len(fetched), "duration", time.Since(start))
	return fetched, nil
}

// InvalidateEntity drops every cached record owned by or identified as id.
// Mutation paths call it after writing.
func (l *BatchLoader) InvalidateEntity(id string) int {
	return l.store.InvalidateByTag(EntityTag(id))
}

// Paginate bounds base to one page. Pages are numbered from one.
func (l *BatchLoader) Paginate(base string, page, pageSize int) (PageQuery, error) {
	if page < 1 || pageSize < 1 || pageSize > l.config.MaxPageSize {
		return PageQuery{}, fmt.Errorf("%w: page=%d pageSize=%d maxPageSize=%d",
			ErrInvalidPaginationArgs, page, pageSize, l.config.MaxPageSize)
	}

	offset := (page - 1) * pageSize
	return PageQuery{
		Query:  fmt.Sprintf("%s LIMIT %d OFFSET %d", strings.TrimSpace(base), pageSize, offset),
		Page:   page,
		Limit:  pageSize,
		Offset: offset,
	}, nil
}

// Stats returns the loader counters.
func (l *BatchLoader) Stats() Stats {
	return Stats{
		Requested: l.requested.Load(),
		CacheHits: l.cacheHits.Load(),
		Fetches:   l.fetches.Load(),
		Fetched:   l.fetched.Load(),
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}
