package records

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/compliance-core/internal/domain/records"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/persistence/database"
)

func newTestRepo(t *testing.T) *SQLRecordRepository {
	t.Helper()
	logger := logging.NewDiscardLogger()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := database.NewConnectionWithLogger(database.DriverSQLite, dsn, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.NewSchemaCreator().CreateSchema(context.Background(), db))
	return NewSQLRecordRepository(db, logger)
}

func TestFindByIDsReturnsOnlyExisting(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, rec := range []*records.Record{
		{ID: "r1", OwnerID: "org-1", Kind: "policy", Payload: `{"v":1}`},
		{ID: "r2", OwnerID: "org-1", Kind: "control", Payload: `{"v":2}`},
		{ID: "r3", OwnerID: "org-2", Kind: "policy", Payload: `{"v":3}`},
	} {
		require.NoError(t, repo.Save(ctx, rec))
	}

	found, err := repo.FindByIDs(ctx, []string{"r1", "r3", "missing"})
	require.NoError(t, err)
	require.Len(t, found, 2)

	byID := map[string]*records.Record{}
	for _, rec := range found {
		byID[rec.ID] = rec
	}
	assert.Equal(t, "org-2", byID["r3"].OwnerID)
	assert.Equal(t, `{"v":1}`, byID["r1"].Payload)
	assert.WithinDuration(t, time.Now(), byID["r1"].UpdatedAt, time.Minute)
}

func TestFindByIDsEmpty(t *testing.T) {
	repo := newTestRepo(t)
	found, err := repo.FindByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSaveReplaces(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &records.Record{ID: "r1", OwnerID: "org-1", Kind: "policy", Payload: "a"}))
	require.NoError(t, repo.Save(ctx, &records.Record{ID: "r1", OwnerID: "org-9", Kind: "policy", Payload: "b"}))

	found, err := repo.FindByIDs(ctx, []string{"r1"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "org-9", found[0].OwnerID)
	assert.Equal(t, "b", found[0].Payload)
}

func TestQueryIDsKeepsOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, repo.Save(ctx, &records.Record{ID: id, OwnerID: "o", Kind: "k", Payload: "p"}))
	}

	ids, err := repo.QueryIDs(ctx, "SELECT id FROM records ORDER BY id LIMIT 2 OFFSET 1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids)
}
