package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/almatkai/woolet-sub004/internal/model"
)

// PortfolioRepository reads holdings, transactions and cash balances.
// Buy/sell processing mutates these tables elsewhere; the valuation
// engine only ever reads them.
type PortfolioRepository struct {
	db *DB
}

// NewPortfolioRepository creates a portfolio repository over db.
func NewPortfolioRepository(db *DB) *PortfolioRepository {
	return &PortfolioRepository{db: db}
}

// Holdings returns all of a user's positions.
func (pr *PortfolioRepository) Holdings(ctx context.Context, userID int64) ([]model.Holding, error) {
	rows, err := pr.db.conn.QueryContext(ctx, `
		SELECT id, symbol, name, currency, quantity, average_cost
		FROM stocks
		WHERE user_id = ? AND quantity > 0
		ORDER BY symbol ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []model.Holding
	for rows.Next() {
		var h model.Holding
		var name sql.NullString
		if err := rows.Scan(&h.StockID, &h.Symbol, &name, &h.Currency, &h.Quantity, &h.AvgCost); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		h.Name = name.String
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}
	return holdings, nil
}

// Stock returns a single stock row, or ErrStockNotFound.
func (pr *PortfolioRepository) Stock(ctx context.Context, stockID int64) (model.Holding, error) {
	var h model.Holding
	var name sql.NullString
	err := pr.db.conn.QueryRowContext(ctx, `
		SELECT id, symbol, name, currency, quantity, average_cost
		FROM stocks
		WHERE id = ?
	`, stockID).Scan(&h.StockID, &h.Symbol, &name, &h.Currency, &h.Quantity, &h.AvgCost)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Holding{}, ErrStockNotFound
	}
	if err != nil {
		return model.Holding{}, fmt.Errorf("failed to query stock: %w", err)
	}
	h.Name = name.String
	return h, nil
}

// Transactions returns a user's transactions for one symbol, ascending
// by date, the order FIFO lot matching consumes them in.
func (pr *PortfolioRepository) Transactions(ctx context.Context, userID int64, symbol string) ([]model.Transaction, error) {
	rows, err := pr.db.conn.QueryContext(ctx, `
		SELECT id, stock_id, symbol, type, quantity, price, date
		FROM transactions
		WHERE user_id = ? AND symbol = ?
		ORDER BY date ASC, id ASC
	`, userID, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var tx model.Transaction
		if err := rows.Scan(&tx.ID, &tx.StockID, &tx.Symbol, &tx.Type, &tx.Quantity, &tx.Price, &tx.Date); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txs, nil
}

// CashBalances returns a user's cash per currency.
func (pr *PortfolioRepository) CashBalances(ctx context.Context, userID int64) (map[string]float64, error) {
	rows, err := pr.db.conn.QueryContext(ctx, `
		SELECT currency, amount FROM cash_balances WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cash balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[string]float64)
	for rows.Next() {
		var currency string
		var amount float64
		if err := rows.Scan(&currency, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan cash balance: %w", err)
		}
		balances[currency] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cash balances: %w", err)
	}
	return balances, nil
}
