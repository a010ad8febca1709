package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/almatkai/woolet-sub004/internal/model"
)

// PriceStore is the durable, append-only store of daily price bars.
// At most one bar exists per (stock, date); overlapping refetches go
// through UpsertRange, which deletes the overlap before inserting.
type PriceStore struct {
	db *DB
}

// NewPriceStore creates a price store over db.
func NewPriceStore(db *DB) *PriceStore {
	return &PriceStore{db: db}
}

// GetRange returns the stored bars for a stock between start and end
// (inclusive calendar days), ascending by date. Empty bounds are open.
func (ps *PriceStore) GetRange(ctx context.Context, stockID int64, start, end string) ([]model.PriceBar, error) {
	query := `
		SELECT date, open, high, low, close, adjusted_close, volume
		FROM price_bars
		WHERE stock_id = ?
		  AND (? = '' OR date >= ?)
		  AND (? = '' OR date <= ?)
		ORDER BY date ASC
	`
	rows, err := ps.db.conn.QueryContext(ctx, query, stockID, start, start, end, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query price bars: %w", err)
	}
	defer rows.Close()

	var bars []model.PriceBar
	for rows.Next() {
		var bar model.PriceBar
		var volume sql.NullInt64

		if err := rows.Scan(&bar.Date, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.AdjustedClose, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan price bar: %w", err)
		}
		if volume.Valid {
			bar.Volume = &volume.Int64
		}
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price bars: %w", err)
	}
	return bars, nil
}

// UpsertRange persists freshly fetched bars: rows whose date falls within
// [oldest fetched, newest fetched] are deleted first, then the batch is
// inserted, all in one transaction. The delete avoids duplicate-key
// conflicts when the fetched range overlaps stored data.
func (ps *PriceStore) UpsertRange(ctx context.Context, stockID int64, bars []model.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	minDate, maxDate := bars[0].Date, bars[0].Date
	for _, bar := range bars[1:] {
		if bar.Date < minDate {
			minDate = bar.Date
		}
		if bar.Date > maxDate {
			maxDate = bar.Date
		}
	}

	tx, err := ps.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin upsert transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM price_bars WHERE stock_id = ? AND date >= ? AND date <= ?`,
		stockID, minDate, maxDate,
	); err != nil {
		return fmt.Errorf("failed to delete overlapping bars: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_bars (stock_id, date, open, high, low, close, adjusted_close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, bar := range bars {
		var volume interface{}
		if bar.Volume != nil {
			volume = *bar.Volume
		}
		if _, err := stmt.ExecContext(ctx, stockID, bar.Date, bar.Open, bar.High, bar.Low, bar.Close, bar.AdjustedClose, volume); err != nil {
			return fmt.Errorf("failed to insert bar for %s: %w", bar.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	return nil
}

// Count returns the number of stored bars for a stock. Used to decide
// whether an initial backfill is needed.
func (ps *PriceStore) Count(ctx context.Context, stockID int64) (int, error) {
	var count int
	err := ps.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM price_bars WHERE stock_id = ?`, stockID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count price bars: %w", err)
	}
	return count, nil
}
