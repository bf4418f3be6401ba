package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"coitrack/pkg/domain"
	"coitrack/pkg/platform/sentinel"
)

// PostgresStore persists projects in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, p *Project) error {
	var programID sql.NullString
	if !p.ProgramID.IsZero() {
		programID = sql.NullString{String: p.ProgramID.String(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, gc_id, program_id, location, additional_insured, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID.String(), p.Name, p.GCID.String(), programID, p.Location,
		pq.Array(p.AdditionalInsured), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.ProjectID) (*Project, error) {
	var (
		p         Project
		rawID     string
		rawGC     string
		programID sql.NullString
		insured   pq.StringArray
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, gc_id, program_id, location, additional_insured, created_at, updated_at
		FROM projects WHERE id = $1`, id.String(),
	).Scan(&rawID, &p.Name, &rawGC, &programID, &p.Location, &insured, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find project by id: %w", err)
	}
	parsedID, err := domain.ParseProjectID(rawID)
	if err != nil {
		return nil, err
	}
	gcID, err := domain.ParseActorID(rawGC)
	if err != nil {
		return nil, err
	}
	p.ID = parsedID
	p.GCID = gcID
	p.AdditionalInsured = []string(insured)
	if programID.Valid {
		pid, err := domain.ParseProgramID(programID.String)
		if err != nil {
			return nil, err
		}
		p.ProgramID = pid
	}
	return &p, nil
}
