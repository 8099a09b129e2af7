package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AtRiskMedia/compliance-core/internal/domain/records"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/caching/loader"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
)

// ErrInvalidRecord rejects a write without an id or owner.
var ErrInvalidRecord = errors.New("invalid record")

const recordPageQuery = "SELECT id FROM records ORDER BY updated_at DESC, id"

// RecordStore is the write and paging side of the records table.
type RecordStore interface {
	Save(ctx context.Context, rec *records.Record) error
	QueryIDs(ctx context.Context, query string) ([]string, error)
}

// RecordPage is one page of records in listing order.
type RecordPage struct {
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
	Records  []*records.Record `json:"records"`
}

// RecordService reads records through the batch loader and invalidates the
// cache after writes.
type RecordService struct {
	loader *loader.BatchLoader
	store  RecordStore
	logger *logging.ChanneledLogger
}

func NewRecordService(batchLoader *loader.BatchLoader, store RecordStore, logger *logging.ChanneledLogger) *RecordService {
	return &RecordService{
		loader: batchLoader,
		store:  store,
		logger: logger,
	}
}

// GetByIDs loads the records for ids. Unknown ids are absent from the result.
func (s *RecordService) GetByIDs(ctx context.Context, ids []string) (map[string]*records.Record, error) {
	return s.loader.LoadMany(ctx, ids)
}

// ListPage returns page of the listing, newest first.
func (s *RecordService) ListPage(ctx context.Context, page, pageSize int) (*RecordPage, error) {
	q, err := s.loader.Paginate(recordPageQuery, page, pageSize)
	if err != nil {
		return nil, err
	}

	ids, err := s.store.QueryIDs(ctx, q.Query)
	if err != nil {
		return nil, err
	}

	loaded, err := s.loader.LoadMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*records.Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := loaded[id]; ok {
			out = append(out, rec)
		}
	}
	return &RecordPage{Page: q.Page, PageSize: q.Limit, Records: out}, nil
}

// Save writes rec and drops every cached copy tagged with its owner or id.
func (s *RecordService) Save(ctx context.Context, rec *records.Record) error {
	rec.ID = strings.TrimSpace(rec.ID)
	rec.OwnerID = strings.TrimSpace(rec.OwnerID)
	if rec.ID == "" || rec.OwnerID == "" {
		return fmt.Errorf("%w: id and ownerId are required", ErrInvalidRecord)
	}

	if err := s.store.Save(ctx, rec); err != nil {
		return err
	}

	removed := s.loader.InvalidateEntity(rec.OwnerID) + s.loader.InvalidateEntity(rec.ID)
	s.logger.Cache().Debug("Invalidated records after save", "recordId", rec.ID, "ownerId", rec.OwnerID, "removed", removed)
	return nil
}
