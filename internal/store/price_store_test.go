package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/almatkai/woolet-sub004/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "prices.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func bar(date string, close float64) model.PriceBar {
	return model.PriceBar{
		Date:          date,
		Open:          close - 1,
		High:          close + 1,
		Low:           close - 2,
		Close:         close,
		AdjustedClose: close,
	}
}

func TestPriceStore_GetRangeAscending(t *testing.T) {
	db := openTestDB(t)
	ps := NewPriceStore(db)
	ctx := context.Background()

	// Inserted out of order on purpose.
	require.NoError(t, ps.UpsertRange(ctx, 1, []model.PriceBar{
		bar("2026-08-05", 102),
		bar("2026-08-03", 100),
		bar("2026-08-04", 101),
	}))

	bars, err := ps.GetRange(ctx, 1, "", "")
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, "2026-08-03", bars[0].Date)
	assert.Equal(t, "2026-08-04", bars[1].Date)
	assert.Equal(t, "2026-08-05", bars[2].Date)
}

func TestPriceStore_GetRangeBounds(t *testing.T) {
	db := openTestDB(t)
	ps := NewPriceStore(db)
	ctx := context.Background()

	require.NoError(t, ps.UpsertRange(ctx, 1, []model.PriceBar{
		bar("2026-08-01", 100),
		bar("2026-08-02", 101),
		bar("2026-08-03", 102),
		bar("2026-08-04", 103),
	}))

	tests := []struct {
		name  string
		start string
		end   string
		want  []string
	}{
		{"inner window", "2026-08-02", "2026-08-03", []string{"2026-08-02", "2026-08-03"}},
		{"open start", "", "2026-08-02", []string{"2026-08-01", "2026-08-02"}},
		{"open end", "2026-08-03", "", []string{"2026-08-03", "2026-08-04"}},
		{"no match", "2026-09-01", "2026-09-30", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bars, err := ps.GetRange(ctx, 1, tt.start, tt.end)
			require.NoError(t, err)
			var dates []string
			for _, b := range bars {
				dates = append(dates, b.Date)
			}
			assert.Equal(t, tt.want, dates)
		})
	}
}

func TestPriceStore_UpsertOverlapKeepsOneBarPerDay(t *testing.T) {
	db := openTestDB(t)
	ps := NewPriceStore(db)
	ctx := context.Background()

	require.NoError(t, ps.UpsertRange(ctx, 1, []model.PriceBar{
		bar("2026-08-01", 100),
		bar("2026-08-02", 101),
		bar("2026-08-03", 102),
	}))

	// Refetch overlapping the tail with revised values.
	require.NoError(t, ps.UpsertRange(ctx, 1, []model.PriceBar{
		bar("2026-08-02", 201),
		bar("2026-08-03", 202),
		bar("2026-08-04", 203),
	}))

	bars, err := ps.GetRange(ctx, 1, "", "")
	require.NoError(t, err)
	require.Len(t, bars, 4, "overlapping days must not duplicate")
	assert.Equal(t, 100.0, bars[0].Close)
	assert.Equal(t, 201.0, bars[1].Close, "overlapping day takes the refetched value")
	assert.Equal(t, 203.0, bars[3].Close)

	count, err := ps.Count(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestPriceStore_RangesAreScopedPerStock(t *testing.T) {
	db := openTestDB(t)
	ps := NewPriceStore(db)
	ctx := context.Background()

	require.NoError(t, ps.UpsertRange(ctx, 1, []model.PriceBar{bar("2026-08-01", 100)}))
	require.NoError(t, ps.UpsertRange(ctx, 2, []model.PriceBar{bar("2026-08-01", 55)}))

	bars, err := ps.GetRange(ctx, 2, "", "")
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 55.0, bars[0].Close)
}
