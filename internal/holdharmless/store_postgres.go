package holdharmless

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

// PostgresStore persists agreements in PostgreSQL. The unique constraint on
// coi_id backs the one-agreement-per-COI rule; Execute uses the same
// SELECT FOR UPDATE plus expected-prior-state pattern as the COI store.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const agreementColumns = `id, coi_id, project_id, subcontractor_id, gc_id, status,
	document_ref, merged_document_ref, subcontractor_signature, gc_signature,
	created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, a *Agreement) error {
	subSig, gcSig, err := marshalSignatures(a)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO hold_harmless_agreements (`+agreementColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		a.ID.String(), a.COIID.String(), a.ProjectID.String(), a.SubcontractorID.String(),
		a.GCID.String(), string(a.Status), a.DocumentRef, a.MergedDocumentRef,
		subSig, gcSig, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert agreement: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.HoldHarmlessID) (*Agreement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agreementColumns+` FROM hold_harmless_agreements WHERE id = $1`, id.String())
	return scanAgreement(row, "find agreement by id")
}

func (s *PostgresStore) FindByCOI(ctx context.Context, coiID domain.COIID) (*Agreement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agreementColumns+` FROM hold_harmless_agreements WHERE coi_id = $1`, coiID.String())
	return scanAgreement(row, "find agreement by coi")
}

func (s *PostgresStore) Execute(ctx context.Context, id domain.HoldHarmlessID, validate func(*Agreement) error, mutate func(*Agreement)) (*Agreement, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+agreementColumns+` FROM hold_harmless_agreements WHERE id = $1 FOR UPDATE`, id.String())
	a, err := scanAgreement(row, "load agreement for update")
	if err != nil {
		return nil, err
	}
	priorStatus := a.Status

	if err := validate(a); err != nil {
		return nil, err
	}
	mutate(a)

	subSig, gcSig, err := marshalSignatures(a)
	if err != nil {
		return nil, err
	}
	result, err := tx.ExecContext(ctx, `
		UPDATE hold_harmless_agreements SET
			status = $2, merged_document_ref = $3,
			subcontractor_signature = $4, gc_signature = $5, updated_at = $6
		WHERE id = $1 AND status = $7`,
		a.ID.String(), string(a.Status), a.MergedDocumentRef,
		subSig, gcSig, a.UpdatedAt, string(priorStatus),
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
	return a, nil
}

func marshalSignatures(a *Agreement) (subSig, gcSig []byte, err error) {
	if a.SubcontractorSignature != nil {
		subSig, err = json.Marshal(a.SubcontractorSignature)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal subcontractor signature: %w", err)
		}
	}
	if a.GCSignature != nil {
		gcSig, err = json.Marshal(a.GCSignature)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal gc signature: %w", err)
		}
	}
	return subSig, gcSig, nil
}

func scanAgreement(row interface{ Scan(dest ...any) error }, op string) (*Agreement, error) {
	var (
		a                              Agreement
		rawID, rawCOI, rawProject      string
		rawSub, rawGC, status          string
		mergedRef                      sql.NullString
		subSig, gcSig                  []byte
	)
	err := row.Scan(
		&rawID, &rawCOI, &rawProject, &rawSub, &rawGC, &status,
		&a.DocumentRef, &mergedRef, &subSig, &gcSig,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	id, err := domain.ParseHoldHarmlessID(rawID)
	if err != nil {
		return nil, err
	}
	coiID, err := domain.ParseCOIID(rawCOI)
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
	gcID, err := domain.ParseActorID(rawGC)
	if err != nil {
		return nil, err
	}
	a.ID = id
	a.COIID = coiID
	a.ProjectID = projectID
	a.SubcontractorID = subID
	a.GCID = gcID
	a.Status = Status(status)
	a.MergedDocumentRef = mergedRef.String
	if len(subSig) > 0 {
		a.SubcontractorSignature = &Signature{}
		if err := json.Unmarshal(subSig, a.SubcontractorSignature); err != nil {
			return nil, fmt.Errorf("unmarshal subcontractor signature: %w", err)
		}
	}
	if len(gcSig) > 0 {
		a.GCSignature = &Signature{}
		if err := json.Unmarshal(gcSig, a.GCSignature); err != nil {
			return nil, fmt.Errorf("unmarshal gc signature: %w", err)
		}
	}
	return &a, nil
}
