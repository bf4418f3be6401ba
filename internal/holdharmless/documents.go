package holdharmless

import (
	"context"
	"fmt"

	"coitrack/pkg/domain"
)

// Documents renders and merges agreement documents. The engine treats
// document references as opaque; an implementation backed by a real
// renderer or object store plugs in here.
type Documents interface {
	// Render produces the unsigned agreement document for a COI.
	Render(ctx context.Context, coiID domain.COIID) (string, error)
	// Merge combines the agreement with both signature pages into one
	// completed document.
	Merge(ctx context.Context, a *Agreement) (string, error)
}

// RefDocuments derives deterministic document references without touching
// file contents. Deterministic refs keep generation and completion
// idempotent across retries.
type RefDocuments struct{}

func NewRefDocuments() RefDocuments { return RefDocuments{} }

func (RefDocuments) Render(_ context.Context, coiID domain.COIID) (string, error) {
	return fmt.Sprintf("hold-harmless/%s/agreement", coiID), nil
}

func (RefDocuments) Merge(_ context.Context, a *Agreement) (string, error) {
	return fmt.Sprintf("hold-harmless/%s/completed", a.COIID), nil
}
