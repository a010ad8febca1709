package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/almatkai/woolet-sub004/internal/model"
)

func seedPortfolio(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()

	_, err := db.Conn().ExecContext(ctx, `
		INSERT INTO stocks (id, user_id, symbol, name, currency, quantity, average_cost) VALUES
			(1, 7, 'AAPL', 'Apple Inc', 'USD', 10, 150.0),
			(2, 7, 'SAP',  'SAP SE',    'EUR', 5,  120.0),
			(3, 7, 'SOLD', 'Closed',    'USD', 0,  10.0),
			(4, 9, 'MSFT', 'Microsoft', 'USD', 2,  400.0);

		INSERT INTO transactions (user_id, stock_id, symbol, type, quantity, price, date) VALUES
			(7, 1, 'AAPL', 'buy',  10, 140.0, '2026-01-05'),
			(7, 1, 'AAPL', 'buy',  10, 160.0, '2026-02-05'),
			(7, 1, 'AAPL', 'sell', 10, 170.0, '2026-03-05');

		INSERT INTO cash_balances (user_id, currency, amount) VALUES
			(7, 'USD', 2500.0),
			(7, 'EUR', 300.0);
	`)
	require.NoError(t, err)
}

func TestPortfolioRepository_Holdings(t *testing.T) {
	db := openTestDB(t)
	seedPortfolio(t, db)
	repo := NewPortfolioRepository(db)

	holdings, err := repo.Holdings(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, holdings, 2, "closed positions and other users are excluded")
	assert.Equal(t, "AAPL", holdings[0].Symbol)
	assert.Equal(t, "SAP", holdings[1].Symbol)
	assert.Equal(t, 10.0, holdings[0].Quantity)
	assert.Equal(t, "EUR", holdings[1].Currency)
}

func TestPortfolioRepository_TransactionsAscendingByDate(t *testing.T) {
	db := openTestDB(t)
	seedPortfolio(t, db)
	repo := NewPortfolioRepository(db)

	txs, err := repo.Transactions(context.Background(), 7, "AAPL")
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, "2026-01-05", txs[0].Date)
	assert.Equal(t, model.TransactionBuy, txs[0].Type)
	assert.Equal(t, model.TransactionSell, txs[2].Type)
}

func TestPortfolioRepository_Stock(t *testing.T) {
	db := openTestDB(t)
	seedPortfolio(t, db)
	repo := NewPortfolioRepository(db)

	stock, err := repo.Stock(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "SAP", stock.Symbol)

	_, err = repo.Stock(context.Background(), 999)
	assert.ErrorIs(t, err, ErrStockNotFound)
}

func TestPortfolioRepository_CashBalances(t *testing.T) {
	db := openTestDB(t)
	seedPortfolio(t, db)
	repo := NewPortfolioRepository(db)

	balances, err := repo.CashBalances(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"USD": 2500.0, "EUR": 300.0}, balances)
}
