package status

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcloud/vector-db-proxy/internal/platform/logger"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	rec, err := Open(logger.NewNop(), Config{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "status.db")})
	require.NoError(t, err)
	store, ok := rec.(*Store)
	require.True(t, ok, "sqlite driver should return *Store, got %T", rec)
	return store
}

func TestOpenNoneIsNop(t *testing.T) {
	rec, err := Open(logger.NewNop(), Config{Driver: DriverNone})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, rec)
	assert.NoError(t, rec.Record(context.Background(), &FileIngestion{}))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(logger.NewNop(), Config{Driver: "mongo"})
	assert.True(t, errors.Is(err, ErrUnknownDriver))
}

func TestRecordAndList(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Record(ctx, &FileIngestion{
		DataSourceID: "ds1",
		Bucket:       "b1",
		Filename:     "a.pdf",
		FileType:     "pdf",
		Status:       StatusUpserted,
		Chunks:       3,
		Points:       2,
		Skipped:      1,
		Metadata:     MetadataJSON(map[string]string{"title": "Report"}),
		StartedAt:    now.Add(-time.Second),
		FinishedAt:   now.Add(-time.Second),
	}))
	require.NoError(t, store.Record(ctx, &FileIngestion{
		DataSourceID: "ds1",
		Filename:     "b.doc",
		Status:       StatusUnsupported,
		StartedAt:    now,
		FinishedAt:   now,
	}))
	require.NoError(t, store.Record(ctx, &FileIngestion{DataSourceID: "ds2", Status: StatusFetchFailed, StartedAt: now, FinishedAt: now}))

	rows, err := store.ByDataSource(ctx, "ds1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "b.doc", rows[0].Filename)
	assert.Equal(t, StatusUnsupported, rows[0].Status)
	assert.Equal(t, StatusUpserted, rows[1].Status)
	assert.Equal(t, 2, rows[1].Points)
	assert.Equal(t, "Report", rows[1].Metadata["title"])
	assert.Len(t, rows[1].ID, 36)
}

func TestResolveConfigFromEnv(t *testing.T) {
	t.Setenv("STATUS_DRIVER", "Postgres")
	t.Setenv("STATUS_DSN", "")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_PASSWORD", "pw")
	cfg := ResolveConfigFromEnv()
	assert.Equal(t, DriverPostgres, cfg.Driver)
	assert.Equal(t, "postgres://postgres:pw@db:5432/vector_db_proxy?sslmode=disable", cfg.DSN)

	t.Setenv("STATUS_DRIVER", "")
	assert.Equal(t, DriverNone, ResolveConfigFromEnv().Driver)
}

func TestMetadataJSONEmpty(t *testing.T) {
	assert.Nil(t, MetadataJSON(nil))
}
