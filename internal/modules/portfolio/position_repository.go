// Package portfolio provides position storage and portfolio summary
// calculations.
package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"folio/internal/domain"
)

// PositionRepository handles position database operations
type PositionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		db:  db,
		log: log.With().Str("repo", "position").Logger(),
	}
}

const positionColumns = `id, symbol, position_type, quantity, cost_basis,
	current_price, sector, industry, beta, entry_date, last_updated`

// GetAll returns all positions ordered by symbol
func (r *PositionRepository) GetAll() ([]domain.Position, error) {
	query := fmt.Sprintf("SELECT %s FROM positions ORDER BY symbol, position_type", positionColumns)

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, pos)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// GetBySymbolAndType returns the open position for a symbol on one side.
// Returns domain.ErrPositionNotFound when none exists.
func (r *PositionRepository) GetBySymbolAndType(symbol string, posType domain.PositionType) (*domain.Position, error) {
	query := fmt.Sprintf("SELECT %s FROM positions WHERE symbol = ? AND position_type = ?", positionColumns)

	row := r.db.QueryRow(query, symbol, string(posType))
	pos, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s %s", domain.ErrPositionNotFound, posType, symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position for %s: %w", symbol, err)
	}

	return &pos, nil
}

// Save inserts or updates a position
func (r *PositionRepository) Save(pos *domain.Position) error {
	return r.saveExec(r.db, pos)
}

// SaveTx inserts or updates a position within a transaction
func (r *PositionRepository) SaveTx(tx *sql.Tx, pos *domain.Position) error {
	return r.saveExec(tx, pos)
}

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func (r *PositionRepository) saveExec(e execer, pos *domain.Position) error {
	query := `INSERT INTO positions (id, symbol, position_type, quantity, cost_basis,
		current_price, sector, industry, beta, entry_date, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, position_type) DO UPDATE SET
			quantity = excluded.quantity,
			cost_basis = excluded.cost_basis,
			current_price = excluded.current_price,
			sector = excluded.sector,
			industry = excluded.industry,
			beta = excluded.beta,
			last_updated = excluded.last_updated`

	_, err := e.Exec(query,
		pos.ID, pos.Symbol, string(pos.Type), pos.Quantity, pos.CostBasis,
		pos.CurrentPrice, pos.Sector, pos.Industry, pos.Beta,
		pos.EntryDate.Unix(), pos.LastUpdated.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save position %s: %w", pos.Symbol, err)
	}

	return nil
}

// Delete removes a position by id
func (r *PositionRepository) Delete(id string) error {
	return r.deleteExec(r.db, id)
}

// DeleteTx removes a position by id within a transaction
func (r *PositionRepository) DeleteTx(tx *sql.Tx, id string) error {
	return r.deleteExec(tx, id)
}

func (r *PositionRepository) deleteExec(e execer, id string) error {
	if _, err := e.Exec("DELETE FROM positions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete position %s: %w", id, err)
	}
	return nil
}

// UpdateMarketData refreshes price, sector, industry, and beta for a
// position after a provider refresh.
func (r *PositionRepository) UpdateMarketData(id string, price float64, sector, industry string, beta float64) error {
	query := `UPDATE positions SET current_price = ?, sector = ?, industry = ?, beta = ?, last_updated = ?
		WHERE id = ?`

	_, err := r.db.Exec(query, price, sector, industry, beta, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update market data for %s: %w", id, err)
	}

	return nil
}

// UpdatePrice refreshes only the current price of a position
func (r *PositionRepository) UpdatePrice(id string, price float64) error {
	query := `UPDATE positions SET current_price = ?, last_updated = ? WHERE id = ?`

	if _, err := r.db.Exec(query, price, time.Now().Unix(), id); err != nil {
		return fmt.Errorf("failed to update price for %s: %w", id, err)
	}

	return nil
}

// Count returns the number of open positions
func (r *PositionRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM positions").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count positions: %w", err)
	}
	return count, nil
}

// Symbols returns the distinct symbols with open positions
func (r *PositionRepository) Symbols() ([]string, error) {
	rows, err := r.db.Query("SELECT DISTINCT symbol FROM positions ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}

	return symbols, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner) (domain.Position, error) {
	var pos domain.Position
	var posType string
	var entryDate, lastUpdated int64

	err := row.Scan(
		&pos.ID, &pos.Symbol, &posType, &pos.Quantity, &pos.CostBasis,
		&pos.CurrentPrice, &pos.Sector, &pos.Industry, &pos.Beta,
		&entryDate, &lastUpdated,
	)
	if err != nil {
		return pos, err
	}

	pos.Type = domain.PositionType(posType)
	pos.EntryDate = time.Unix(entryDate, 0).UTC()
	pos.LastUpdated = time.Unix(lastUpdated, 0).UTC()

	return pos, nil
}
