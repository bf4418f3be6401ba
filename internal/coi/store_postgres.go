package coi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"coitrack/pkg/domain"
	"coitrack/pkg/platform/sentinel"
)

// PostgresStore persists COI records in PostgreSQL. Execute wraps each
// transition in a transaction: SELECT FOR UPDATE serializes concurrent
// writers on the row, and the UPDATE carries the expected-prior-state check
// as a second line of defense, so a lost race surfaces as ErrStaleState
// instead of a lost update.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const coiColumns = `id, project_id, subcontractor_id, program_id, trade, status,
	broker, policies, additional_insured, project_location, review_notes,
	hold_harmless_status, renewed_from, approved_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, c *COI) error {
	broker, policies, notes, err := marshalCOIBlobs(c)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cois (`+coiColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		c.ID.String(), c.ProjectID.String(), c.SubcontractorID.String(),
		nullID(c.ProgramID.IsZero(), c.ProgramID.String()), c.Trade.String(), string(c.Status),
		broker, policies, pq.Array(c.AdditionalInsured), c.ProjectLocation, notes,
		string(c.HoldHarmless), nullID(c.RenewedFrom.IsZero(), c.RenewedFrom.String()),
		nullTime(c.ApprovedAt), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert coi: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.COIID) (*COI, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+coiColumns+` FROM cois WHERE id = $1`, id.String())
	c, err := scanCOI(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find coi by id: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListByProject(ctx context.Context, projectID domain.ProjectID) ([]*COI, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+coiColumns+` FROM cois WHERE project_id = $1 ORDER BY created_at`, projectID.String())
	if err != nil {
		return nil, fmt.Errorf("list cois by project: %w", err)
	}
	defer rows.Close()

	var cois []*COI
	for rows.Next() {
		c, err := scanCOI(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coi: %w", err)
		}
		cois = append(cois, c)
	}
	return cois, rows.Err()
}

func (s *PostgresStore) Execute(ctx context.Context, id domain.COIID, validate func(*COI) error, mutate func(*COI)) (*COI, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+coiColumns+` FROM cois WHERE id = $1 FOR UPDATE`, id.String())
	c, err := scanCOI(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load coi for update: %w", err)
	}
	priorStatus := c.Status

	if err := validate(c); err != nil {
		return nil, err
	}
	mutate(c)

	broker, policies, notes, err := marshalCOIBlobs(c)
	if err != nil {
		return nil, err
	}
	result, err := tx.ExecContext(ctx, `
		UPDATE cois SET
			status = $2, broker = $3, policies = $4, additional_insured = $5,
			project_location = $6, review_notes = $7, hold_harmless_status = $8,
			approved_at = $9, updated_at = $10
		WHERE id = $1 AND status = $11`,
		c.ID.String(), string(c.Status), broker, policies, pq.Array(c.AdditionalInsured),
		c.ProjectLocation, notes, string(c.HoldHarmless),
		nullTime(c.ApprovedAt), c.UpdatedAt, string(priorStatus),
	)
	if err != nil {
		return nil, fmt.Errorf("write transition: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("write transition: %w", err)
	}
	if affected == 0 {
		return nil, sentinel.ErrStaleState
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return c, nil
}

func marshalCOIBlobs(c *COI) (broker, policies, notes []byte, err error) {
	if c.Broker != nil {
		broker, err = json.Marshal(c.Broker)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("marshal broker: %w", err)
		}
	}
	policies, err = json.Marshal(c.Policies)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal policies: %w", err)
	}
	notes, err = json.Marshal(c.ReviewNotes)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal review notes: %w", err)
	}
	return broker, policies, notes, nil
}

func scanCOI(row interface{ Scan(dest ...any) error }) (*COI, error) {
	var (
		c                        COI
		rawID, rawProject, rawSub string
		programID, renewedFrom   sql.NullString
		status, hhStatus, trade  string
		broker, policies, notes  []byte
		insured                  pq.StringArray
		approvedAt               sql.NullTime
	)
	err := row.Scan(
		&rawID, &rawProject, &rawSub, &programID, &trade, &status,
		&broker, &policies, &insured, &c.ProjectLocation, &notes,
		&hhStatus, &renewedFrom, &approvedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	id, err := domain.ParseCOIID(rawID)
	if err != nil {
		return nil, err
	}
	projectID, err := domain.ParseProjectID(rawProject)
	if err != nil {
		return nil, err
	}
	subID, err := domain.ParseContractorID(rawSub)
	if err != nil {
		return nil, err
	}
	c.ID = id
	c.ProjectID = projectID
	c.SubcontractorID = subID
	c.Trade = domain.Trade(trade)
	c.Status = Status(status)
	c.HoldHarmless = HoldHarmlessState(hhStatus)
	c.AdditionalInsured = []string(insured)
	if programID.Valid {
		pid, err := domain.ParseProgramID(programID.String)
		if err != nil {
			return nil, err
		}
		c.ProgramID = pid
	}
	if renewedFrom.Valid {
		rid, err := domain.ParseCOIID(renewedFrom.String)
		if err != nil {
			return nil, err
		}
		c.RenewedFrom = rid
	}
	if approvedAt.Valid {
		c.ApprovedAt = approvedAt.Time
	}
	if len(broker) > 0 {
		c.Broker = &BrokerInfo{}
		if err := json.Unmarshal(broker, c.Broker); err != nil {
			return nil, fmt.Errorf("unmarshal broker: %w", err)
		}
	}
	if err := json.Unmarshal(policies, &c.Policies); err != nil {
		return nil, fmt.Errorf("unmarshal policies: %w", err)
	}
	if len(notes) > 0 {
		if err := json.Unmarshal(notes, &c.ReviewNotes); err != nil {
			return nil, fmt.Errorf("unmarshal review notes: %w", err)
		}
	}
	return &c, nil
}

func nullID(isZero bool, value string) sql.NullString {
	if isZero {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
