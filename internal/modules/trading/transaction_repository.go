// Package trading provides trade execution against positions and the
// transaction ledger.
package trading

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"folio/internal/domain"
)

// TransactionFilter narrows transaction history queries. Zero values
// mean "no filter".
type TransactionFilter struct {
	Symbol string
	Type   domain.TransactionType
	From   time.Time
	To     time.Time
}

// TransactionRepository handles transaction ledger database operations
type TransactionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sql.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:  db,
		log: log.With().Str("repo", "transaction").Logger(),
	}
}

// Insert records a transaction
func (r *TransactionRepository) Insert(tx *domain.Transaction) error {
	return r.insertExec(r.db, tx)
}

// InsertTx records a transaction within a database transaction
func (r *TransactionRepository) InsertTx(dbTx *sql.Tx, tx *domain.Transaction) error {
	return r.insertExec(dbTx, tx)
}

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func (r *TransactionRepository) insertExec(e execer, tx *domain.Transaction) error {
	query := `INSERT INTO transactions (id, symbol, type, quantity, price, executed_at, realized_gain, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var realizedGain interface{}
	if tx.RealizedGain != nil {
		realizedGain = *tx.RealizedGain
	}

	_, err := e.Exec(query,
		tx.ID, tx.Symbol, string(tx.Type), tx.Quantity, tx.Price,
		tx.Date.Unix(), realizedGain, tx.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction for %s: %w", tx.Symbol, err)
	}

	return nil
}

// List returns transactions matching the filter, newest first
func (r *TransactionRepository) List(filter TransactionFilter) ([]domain.Transaction, error) {
	var conditions []string
	var args []interface{}

	if filter.Symbol != "" {
		conditions = append(conditions, "symbol = ?")
		args = append(args, filter.Symbol)
	}
	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(filter.Type))
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "executed_at >= ?")
		args = append(args, filter.From.Unix())
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "executed_at <= ?")
		args = append(args, filter.To.Unix())
	}

	query := `SELECT id, symbol, type, quantity, price, executed_at, realized_gain, created_at FROM transactions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY executed_at DESC, created_at DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var txType string
		var executedAt, createdAt int64
		var realizedGain sql.NullFloat64

		err := rows.Scan(&tx.ID, &tx.Symbol, &txType, &tx.Quantity, &tx.Price,
			&executedAt, &realizedGain, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		tx.Type = domain.TransactionType(txType)
		tx.Date = time.Unix(executedAt, 0).UTC()
		tx.CreatedAt = time.Unix(createdAt, 0).UTC()
		if realizedGain.Valid {
			g := realizedGain.Float64
			tx.RealizedGain = &g
		}

		transactions = append(transactions, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// TotalRealizedGains sums realized gains across all closing transactions
func (r *TransactionRepository) TotalRealizedGains() (float64, error) {
	var total sql.NullFloat64
	err := r.db.QueryRow("SELECT SUM(realized_gain) FROM transactions WHERE realized_gain IS NOT NULL").Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum realized gains: %w", err)
	}
	return total.Float64, nil
}

// RealizedGainsForSymbol returns the running realized gain total for one symbol
func (r *TransactionRepository) RealizedGainsForSymbol(symbol string) (float64, error) {
	var total sql.NullFloat64
	err := r.db.QueryRow(
		"SELECT SUM(realized_gain) FROM transactions WHERE symbol = ? AND realized_gain IS NOT NULL",
		symbol,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum realized gains for %s: %w", symbol, err)
	}
	return total.Float64, nil
}

// RealizedGainsBySymbol returns the running realized gain total per symbol
func (r *TransactionRepository) RealizedGainsBySymbol() (map[string]float64, error) {
	rows, err := r.db.Query(
		"SELECT symbol, SUM(realized_gain) FROM transactions WHERE realized_gain IS NOT NULL GROUP BY symbol",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query realized gains: %w", err)
	}
	defer rows.Close()

	gains := make(map[string]float64)
	for rows.Next() {
		var symbol string
		var total float64
		if err := rows.Scan(&symbol, &total); err != nil {
			return nil, fmt.Errorf("failed to scan realized gain: %w", err)
		}
		gains[symbol] = total
	}

	return gains, rows.Err()
}

// ClosingTrades returns all sell and cover transactions, oldest first.
// Used by analytics for win rate and performance metrics.
func (r *TransactionRepository) ClosingTrades() ([]domain.Transaction, error) {
	transactions, err := r.List(TransactionFilter{})
	if err != nil {
		return nil, err
	}

	closing := make([]domain.Transaction, 0, len(transactions))
	for i := len(transactions) - 1; i >= 0; i-- {
		if transactions[i].IsClosing() {
			closing = append(closing, transactions[i])
		}
	}

	return closing, nil
}

// Count returns the total number of transactions
func (r *TransactionRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM transactions").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}
