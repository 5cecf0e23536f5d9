package saturation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekballo/heatmap-api/internal/cache"
	"github.com/ekballo/heatmap-api/internal/grid"
)

type fakeStore struct {
	units     []grid.Unit
	listCalls int
}

func (f *fakeStore) ListUnits(_ context.Context) ([]grid.Unit, error) {
	f.listCalls++
	return f.units, nil
}

func (f *fakeStore) GetUnit(_ context.Context, gridID int64) (*grid.Unit, error) {
	for i := range f.units {
		if f.units[i].GridID == gridID {
			u := f.units[i]
			return &u, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) PeerCount(_ context.Context, parentID *int64, level int) (int64, error) {
	var count int64
	for _, u := range f.units {
		if u.Level != level {
			continue
		}
		switch {
		case parentID == nil && u.ParentID == nil:
			count++
		case parentID != nil && u.ParentID != nil && *u.ParentID == *parentID:
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) BulkUpsertUnits(_ context.Context, _ []grid.Unit) (int64, error) {
	return 0, nil
}

func (f *fakeStore) Migrate(_ context.Context) error { return nil }
func (f *fakeStore) Close() error                    { return nil }

type fakeCounter struct {
	byLevel map[grid.Level]map[int64]int64
	calls   int
}

func (f *fakeCounter) CountsByLevel(_ context.Context, level grid.Level) (map[int64]int64, error) {
	f.calls++
	return f.byLevel[level], nil
}

func newTestService(t *testing.T, store *fakeStore, counter *fakeCounter) *Service {
	t.Helper()
	svc, err := NewService(store, counter, cache.NewMemory(64), DefaultPolicy())
	require.NoError(t, err)
	return svc
}

func countryX() []grid.Unit {
	u := testUnit(900, 0, 100000)
	u.Name = "Country X"
	return []grid.Unit{u}
}

func TestNewService_RejectsBadPolicy(t *testing.T) {
	_, err := NewService(&fakeStore{}, &fakeCounter{}, cache.NewMemory(8), Policy{GlobalDivisor: 0})
	assert.Error(t, err)
}

func TestGetSelf(t *testing.T) {
	units := namedUnits()
	svc := newTestService(t, &fakeStore{units: units}, &fakeCounter{})

	detail, err := svc.GetSelf(context.Background(), 11, 1000)
	require.NoError(t, err)
	assert.Equal(t, "North", detail.Name)
	assert.Equal(t, "Atlantis", detail.ParentName)
	assert.Equal(t, 1, detail.Level)
	assert.Equal(t, 0, detail.ParentLevel)
	assert.Equal(t, int64(600), detail.Population)
	assert.Equal(t, int64(1), detail.Needed)
	assert.Equal(t, int64(2), detail.Peers) // North and South share Atlantis
}

func TestGetSelf_UnknownGrid(t *testing.T) {
	svc := newTestService(t, &fakeStore{}, &fakeCounter{})

	_, err := svc.GetSelf(context.Background(), 42, 1000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestGetLevel_EndToEnd(t *testing.T) {
	// Country X: population 100,000, divisor 1000, leaf set = itself.
	counter := &fakeCounter{byLevel: map[grid.Level]map[int64]int64{
		grid.LevelAdmin0: {900: 45},
	}}
	svc := newTestService(t, &fakeStore{units: countryX()}, counter)
	ctx := context.Background()

	stat, ok, err := svc.GetLevel(ctx, 900, grid.LevelAdmin0, 1000)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(100), stat.Needed)
	assert.Equal(t, int64(45), stat.Reported)
	assert.Equal(t, 45.0, stat.Percent)

	// Raw count overshoots the target: clamp to needed.
	counter.byLevel[grid.LevelAdmin0][900] = 150
	require.NoError(t, svc.InvalidateReports(ctx))

	stat, ok, err = svc.GetLevel(ctx, 900, grid.LevelAdmin0, 1000)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(100), stat.Reported)
	assert.Equal(t, 100.0, stat.Percent)
}

func TestGetLevel_World(t *testing.T) {
	counter := &fakeCounter{byLevel: map[grid.Level]map[int64]int64{
		grid.LevelWorld: {grid.WorldGridID: 10},
	}}
	svc := newTestService(t, &fakeStore{units: countryX()}, counter)

	stat, ok, err := svc.GetLevel(context.Background(), 900, grid.LevelWorld, 1000)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, grid.WorldGridID, stat.GridID)
	assert.Equal(t, grid.WorldName, stat.Name)
	assert.Equal(t, int64(10), stat.Reported)
}

func TestGetLevel_SoftMisses(t *testing.T) {
	svc := newTestService(t, &fakeStore{units: countryX()}, &fakeCounter{})
	ctx := context.Background()

	// Unknown grid id.
	stat, ok, err := svc.GetLevel(ctx, 42, grid.LevelAdmin0, 1000)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, stat)

	// No ancestor at the requested level.
	stat, ok, err = svc.GetLevel(ctx, 900, grid.LevelAdmin2, 1000)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, stat)
}

func TestGetLevel_NamelessAncestorIsSoftMiss(t *testing.T) {
	units := []grid.Unit{testUnit(900, 0, 100000)} // no name set
	svc := newTestService(t, &fakeStore{units: units}, &fakeCounter{})

	stat, ok, err := svc.GetLevel(context.Background(), 900, grid.LevelAdmin0, 1000)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, stat)
}

func TestCacheBehavior(t *testing.T) {
	store := &fakeStore{units: countryX()}
	counter := &fakeCounter{byLevel: map[grid.Level]map[int64]int64{
		grid.LevelAdmin0: {900: 45},
	}}
	svc := newTestService(t, store, counter)
	ctx := context.Background()

	_, _, err := svc.GetLevel(ctx, 900, grid.LevelAdmin0, 1000)
	require.NoError(t, err)
	listCallsAfterFirst := store.listCalls
	countsAfterFirst := counter.calls

	// Warm cache: neither the store nor the counter is consulted.
	_, _, err = svc.GetLevel(ctx, 900, grid.LevelAdmin0, 1000)
	require.NoError(t, err)
	assert.Equal(t, listCallsAfterFirst, store.listCalls)
	assert.Equal(t, countsAfterFirst, counter.calls)

	// Invalidation drops reported counts but keeps the flat grid.
	require.NoError(t, svc.InvalidateReports(ctx))
	_, _, err = svc.GetLevel(ctx, 900, grid.LevelAdmin0, 1000)
	require.NoError(t, err)
	assert.Equal(t, listCallsAfterFirst, store.listCalls)
	assert.Equal(t, countsAfterFirst+1, counter.calls)
}

func TestGetGridData(t *testing.T) {
	units := namedUnits()
	counter := &fakeCounter{byLevel: map[grid.Level]map[int64]int64{
		grid.LevelLeaf: {111: 7, 112: 1},
	}}
	svc := newTestService(t, &fakeStore{units: units}, counter)

	data, err := svc.GetGridData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, data.Count) // leaves: 12, 111, 112
	assert.Equal(t, int64(7), data.HighestValue)

	reef := data.Data[111]
	require.NotNil(t, reef)
	assert.Equal(t, int64(1), reef.Needed) // 350 people / 1000
	assert.Equal(t, int64(1), reef.Reported)
	assert.Equal(t, 100.0, reef.Percent)

	south := data.Data[12]
	require.NotNil(t, south)
	assert.Equal(t, int64(0), south.Reported)
	assert.Equal(t, 0.0, south.Percent)
}

func TestGetGridData_NoReportsHighestIsOne(t *testing.T) {
	svc := newTestService(t, &fakeStore{units: countryX()}, &fakeCounter{})

	data, err := svc.GetGridData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), data.HighestValue)
}

func TestGetGridData_CountrySpecificDivisor(t *testing.T) {
	u := testUnit(800, 0, 100000)
	u.Name = "United States"
	u.CountryCode = "US"
	svc := newTestService(t, &fakeStore{units: []grid.Unit{u}}, &fakeCounter{})

	data, err := svc.GetGridData(context.Background())
	require.NoError(t, err)
	require.NotNil(t, data.Data[800])
	assert.Equal(t, int64(20), data.Data[800].Needed) // 100000 / 5000
}
