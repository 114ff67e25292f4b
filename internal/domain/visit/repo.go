package visit

import (
	"context"

	"github.com/google/uuid"

	"github.com/dentalclinic/records/internal/domain/diagnosis"
)

// Shape selects how diagnoses are persisted.
type Shape string

const (
	// ShapeEmbedded keeps the diagnoses on the visit row as two
	// comma-joined text columns.
	ShapeEmbedded Shape = "embedded"
	// ShapeNormalized keeps one visit_diagnosis row per diagnosis, owned by
	// the visit through a foreign key.
	ShapeNormalized Shape = "normalized"
)

// Repository persists visits. Both shapes implement it identically from the
// caller's point of view. Every write runs in one transaction.
type Repository interface {
	// Create assigns an identity and stores the visit with its diagnoses.
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	// Update replaces every scalar field and the whole diagnosis list.
	Update(ctx context.Context, v *Visit) error
	// Delete reports whether a visit was removed; an absent id is not an error.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	// AppendDiagnosis adds p after the existing diagnoses. A blank pair
	// leaves the visit untouched.
	AppendDiagnosis(ctx context.Context, id uuid.UUID, p diagnosis.Pair) (*Visit, error)
	List(ctx context.Context, limit, offset int) ([]*Visit, int, error)
	// ListAll returns every visit in store order (created_at, id).
	ListAll(ctx context.Context) ([]*Visit, error)
	// DiagnosesByPatient returns the history entries of every visit
	// recorded under the given name and surname, oldest visit first.
	DiagnosesByPatient(ctx context.Context, name, surname string) ([]*HistoryEntry, error)
}
