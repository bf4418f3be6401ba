package contractor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"coitrack/pkg/domain"
	"coitrack/pkg/platform/sentinel"
)

// PostgresStore persists contractors in PostgreSQL. Trades are a text array;
// element order is preserved so the primary trade stays first.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, c *Contractor) error {
	trades := make([]string, len(c.Trades))
	for i, t := range c.Trades {
		trades[i] = t.String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contractors (id, name, trades, created_at)
		VALUES ($1,$2,$3,$4)`,
		c.ID.String(), c.Name, pq.Array(trades), c.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert contractor: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.ContractorID) (*Contractor, error) {
	var (
		c      Contractor
		rawID  string
		trades pq.StringArray
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, trades, created_at FROM contractors WHERE id = $1`, id.String(),
	).Scan(&rawID, &c.Name, &trades, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find contractor by id: %w", err)
	}
	parsedID, err := domain.ParseContractorID(rawID)
	if err != nil {
		return nil, err
	}
	c.ID = parsedID
	c.Trades = make([]domain.Trade, len(trades))
	for i, t := range trades {
		c.Trades[i] = domain.Trade(t)
	}
	return &c, nil
}
