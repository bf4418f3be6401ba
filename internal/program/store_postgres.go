package program

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"coitrack/pkg/domain"
	"coitrack/pkg/platform/sentinel"
)

// PostgresStore persists programs in PostgreSQL. Tiers are stored as a jsonb
// array so authoring order survives round-trips; the typed model is the
// source of truth for validation.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, p *Program) error {
	tiers, err := json.Marshal(p.Tiers)
	if err != nil {
		return fmt.Errorf("marshal tiers: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO programs (
			id, name, gl_each_occurrence, gl_aggregate, workers_comp, auto, umbrella,
			requires_hold_harmless, requires_additional_insured, requires_waiver_subrogation,
			tiers, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		p.ID.String(), p.Name,
		p.Minimums.GLEachOccurrence, p.Minimums.GLAggregate, p.Minimums.WorkersComp,
		p.Minimums.Auto, p.Minimums.Umbrella,
		p.RequiresHoldHarmless, p.RequiresAdditionalInsured, p.RequiresWaiverSubrogation,
		tiers, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert program: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.ProgramID) (*Program, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, gl_each_occurrence, gl_aggregate, workers_comp, auto, umbrella,
		       requires_hold_harmless, requires_additional_insured, requires_waiver_subrogation,
		       tiers, created_at, updated_at
		FROM programs WHERE id = $1`, id.String())
	p, err := scanProgram(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find program by id: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Program, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, gl_each_occurrence, gl_aggregate, workers_comp, auto, umbrella,
		       requires_hold_harmless, requires_additional_insured, requires_waiver_subrogation,
		       tiers, created_at, updated_at
		FROM programs ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	defer rows.Close()

	var programs []*Program
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, fmt.Errorf("scan program: %w", err)
		}
		programs = append(programs, p)
	}
	return programs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProgram(row rowScanner) (*Program, error) {
	var (
		p     Program
		rawID string
		tiers []byte
	)
	err := row.Scan(
		&rawID, &p.Name,
		&p.Minimums.GLEachOccurrence, &p.Minimums.GLAggregate, &p.Minimums.WorkersComp,
		&p.Minimums.Auto, &p.Minimums.Umbrella,
		&p.RequiresHoldHarmless, &p.RequiresAdditionalInsured, &p.RequiresWaiverSubrogation,
		&tiers, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	id, err := domain.ParseProgramID(rawID)
	if err != nil {
		return nil, err
	}
	p.ID = id
	if len(tiers) > 0 {
		if err := json.Unmarshal(tiers, &p.Tiers); err != nil {
			return nil, fmt.Errorf("unmarshal tiers: %w", err)
		}
	}
	return &p, nil
}
