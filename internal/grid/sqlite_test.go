package grid

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekballo/heatmap-api/internal/config"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "grid.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestSQLiteStore_UpsertAndGet(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	country := int64(100314737)
	units := []Unit{
		{GridID: country, Level: 0, Name: "Romania", CountryCode: "RO", Population: 19237691, Longitude: 24.97, Latitude: 45.94},
		{GridID: 100314800, Level: 1, Name: "Cluj", CountryCode: "RO", Population: 691106,
			ParentID: &country, Admin0GridID: &country, Longitude: 23.6, Latitude: 46.77},
	}

	written, err := store.BulkUpsertUnits(ctx, units)
	require.NoError(t, err)
	assert.Equal(t, int64(2), written)

	u, err := store.GetUnit(ctx, 100314800)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Cluj", u.Name)
	require.NotNil(t, u.ParentID)
	assert.Equal(t, country, *u.ParentID)

	// Upsert again with changed population, same key.
	units[1].Population = 700000
	written, err = store.BulkUpsertUnits(ctx, units)
	require.NoError(t, err)
	assert.Equal(t, int64(2), written)

	u, err = store.GetUnit(ctx, 100314800)
	require.NoError(t, err)
	assert.Equal(t, int64(700000), u.Population)
}

func TestSQLiteStore_GetUnit_NotFound(t *testing.T) {
	store := newTestSQLiteStore(t)

	u, err := store.GetUnit(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestSQLiteStore_ListUnits(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := store.BulkUpsertUnits(ctx, []Unit{
		{GridID: 100000200, Level: 0, Name: "Tonga", CountryCode: "TO"},
		{GridID: 100000100, Level: 0, Name: "Samoa", CountryCode: "WS"},
	})
	require.NoError(t, err)

	units, err := store.ListUnits(ctx)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "Samoa", units[0].Name)
	assert.Equal(t, "Tonga", units[1].Name)
}

func TestSQLiteStore_PeerCount(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	country := int64(100089589)
	_, err := store.BulkUpsertUnits(ctx, []Unit{
		{GridID: country, Level: 0, Name: "France", CountryCode: "FR"},
		{GridID: 100089600, Level: 1, Name: "Bretagne", ParentID: &country, Admin0GridID: &country},
		{GridID: 100089700, Level: 1, Name: "Normandie", ParentID: &country, Admin0GridID: &country},
	})
	require.NoError(t, err)

	count, err := store.PeerCount(ctx, &country, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	top, err := store.PeerCount(ctx, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), top)
}

func TestSQLiteStore_BulkUpsertEmpty(t *testing.T) {
	store := newTestSQLiteStore(t)

	written, err := store.BulkUpsertUnits(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, written)
}

func TestOpen_SQLiteDriver(t *testing.T) {
	cfg := config.StoreConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "units.db"),
	}
	store, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Migrate(context.Background()))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "oracle"})
	assert.Error(t, err)
}
