package clinic

import (
	"context"

	"github.com/clinic/clinic/internal/platform/db"
)

// Store is the operation set every entity repository supports. Each write has
// a variant that opens and closes its own session and a ...With variant that
// runs on a caller-supplied session, so several writes can share one
// transaction.
type Store[T any] interface {
	// Create inserts e and sets its generated id.
	Create(ctx context.Context, e *T) error
	CreateWith(ctx context.Context, sess db.Session, e *T) error
	// Read returns the row with the given id whether or not it is deleted,
	// or nil when no row matches.
	Read(ctx context.Context, id int64) (*T, error)
	// ListAll returns every non-deleted row.
	ListAll(ctx context.Context) ([]*T, error)
	Update(ctx context.Context, e *T) error
	UpdateWith(ctx context.Context, sess db.Session, e *T) error
	SoftDelete(ctx context.Context, id int64) error
	SoftDeleteWith(ctx context.Context, sess db.Session, id int64) error
}

type PatientRepository interface {
	Store[Patient]
	// FindByNationalID returns the non-deleted patient with the given
	// national id, or nil.
	FindByNationalID(ctx context.Context, nationalID string) (*Patient, error)
}

type MedicalRecordRepository interface {
	Store[MedicalRecord]
	// FindByPatientID returns the non-deleted record owned by the patient,
	// or nil.
	FindByPatientID(ctx context.Context, patientID int64) (*MedicalRecord, error)
	FindByPatientIDWith(ctx context.Context, sess db.Session, patientID int64) (*MedicalRecord, error)
}
