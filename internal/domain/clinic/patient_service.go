package clinic

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/db"
)

// Transaction states recorded in the tx_state log field.
const (
	txNotStarted      = "NotStarted"
	txInProgress      = "InProgress"
	txCommitted       = "Committed"
	txRolledBack      = "RolledBack"
	txSessionReleased = "SessionReleased"
)

// PatientService owns the patient rules and every operation that writes a
// patient and its record together. Every error it returns is a *ServiceError.
type PatientService struct {
	provider  db.Provider
	patients  PatientRepository
	records   MedicalRecordRepository
	recordSvc *MedicalRecordService
	logger    zerolog.Logger
}

func NewPatientService(provider db.Provider, patients PatientRepository, records MedicalRecordRepository, recordSvc *MedicalRecordService, logger zerolog.Logger) *PatientService {
	return &PatientService{
		provider:  provider,
		patients:  patients,
		records:   records,
		recordSvc: recordSvc,
		logger:    logger,
	}
}

// inTx runs fn inside one explicit transaction. fn's error wins over any
// rollback, restore or release failure, which are only logged. Auto-commit is
// restored and the session released on every path.
func (s *PatientService) inTx(ctx context.Context, op string, fn func(db.Session) error) error {
	log := s.logger.With().Str("op", op).Logger()
	log.Debug().Str("tx_state", txNotStarted).Msg("transaction")

	sess, err := s.provider.Acquire(ctx)
	if err != nil {
		return err
	}
	log = log.With().Str("session_id", sess.ID()).Logger()

	defer func() {
		if rerr := sess.SetAutoCommit(ctx, true); rerr != nil {
			log.Error().Err(rerr).Msg("restore auto-commit failed")
		}
		if cerr := sess.Close(ctx); cerr != nil {
			log.Error().Err(cerr).Msg("release session failed")
		}
		log.Debug().Str("tx_state", txSessionReleased).Msg("transaction")
	}()

	if err := sess.SetAutoCommit(ctx, false); err != nil {
		return err
	}
	log.Debug().Str("tx_state", txInProgress).Msg("transaction")

	if err := fn(sess); err != nil {
		s.rollback(ctx, sess, log, err)
		return err
	}
	if err := sess.Commit(ctx); err != nil {
		s.rollback(ctx, sess, log, err)
		return err
	}
	log.Debug().Str("tx_state", txCommitted).Msg("transaction")
	return nil
}

func (s *PatientService) rollback(ctx context.Context, sess db.Session, log zerolog.Logger, cause error) {
	if rbErr := sess.Rollback(ctx); rbErr != nil {
		log.Error().Err(rbErr).AnErr("cause", cause).Msg("rollback failed")
		return
	}
	log.Warn().Err(cause).Str("tx_state", txRolledBack).Msg("transaction")
}

// InsertWithRecord creates the patient and its mandatory medical record in one
// transaction. On success both carry their generated ids and the record is
// attached to p. On failure neither row survives and the ids are reset.
func (s *PatientService) InsertWithRecord(ctx context.Context, p *Patient) error {
	const op = "insert patient with medical record"
	if err := validatePatient(p); err != nil {
		return wrapService(op, err)
	}
	if p.MedicalRecord == nil {
		return wrapService(op, &ValidationError{Field: "medical_record", Message: "is required"})
	}
	if err := validateRecordFields(p.MedicalRecord); err != nil {
		return wrapService(op, err)
	}

	rec := p.MedicalRecord
	prevID, prevRecordID, prevOwner := p.ID, rec.ID, rec.PatientID

	err := s.inTx(ctx, op, func(sess db.Session) error {
		if err := s.patients.CreateWith(ctx, sess, p); err != nil {
			return err
		}
		rec.PatientID = p.ID
		return s.records.CreateWith(ctx, sess, rec)
	})
	if err != nil {
		p.ID, rec.ID, rec.PatientID = prevID, prevRecordID, prevOwner
		return wrapService(op, err)
	}

	p.MedicalRecord = rec
	s.logger.Info().Int64("patient_id", p.ID).Int64("record_id", rec.ID).Msg("patient created with medical record")
	return nil
}

// Update writes the patient and, when attached, its record in one
// transaction. The attached record must be the patient's active record; a
// zero PatientID is taken from the patient.
func (s *PatientService) Update(ctx context.Context, p *Patient) error {
	const op = "update patient"
	if err := validatePatient(p); err != nil {
		return wrapService(op, err)
	}
	if err := validateID("id", p.ID); err != nil {
		return wrapService(op, err)
	}
	rec := p.MedicalRecord
	if rec != nil {
		if err := validateRecordFields(rec); err != nil {
			return wrapService(op, err)
		}
		if err := validateID("medical_record.id", rec.ID); err != nil {
			return wrapService(op, err)
		}
		switch rec.PatientID {
		case 0:
			rec.PatientID = p.ID
		case p.ID:
		default:
			return wrapService(op, &ValidationError{Field: "medical_record.patient_id", Message: "does not match the patient"})
		}
	}

	return wrapService(op, s.inTx(ctx, op, func(sess db.Session) error {
		if err := s.patients.UpdateWith(ctx, sess, p); err != nil {
			return err
		}
		if rec == nil {
			return nil
		}
		owned, err := s.records.FindByPatientIDWith(ctx, sess, p.ID)
		if err != nil {
			return err
		}
		if owned == nil || owned.ID != rec.ID {
			return &ValidationError{Field: "medical_record.id", Message: "is not the patient's medical record"}
		}
		return s.records.UpdateWith(ctx, sess, rec)
	}))
}

// SoftDelete flags the patient and its active record as deleted in one
// transaction.
func (s *PatientService) SoftDelete(ctx context.Context, id int64) error {
	const op = "soft delete patient"
	if err := validateID("id", id); err != nil {
		return wrapService(op, err)
	}
	return wrapService(op, s.inTx(ctx, op, func(sess db.Session) error {
		if err := s.patients.SoftDeleteWith(ctx, sess, id); err != nil {
			return err
		}
		rec, err := s.records.FindByPatientIDWith(ctx, sess, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return nil
		}
		return s.records.SoftDeleteWith(ctx, sess, rec.ID)
	}))
}

// GetByID returns nil for an unknown or soft-deleted patient. The record is
// not attached.
func (s *PatientService) GetByID(ctx context.Context, id int64) (*Patient, error) {
	const op = "get patient"
	if err := validateID("id", id); err != nil {
		return nil, wrapService(op, err)
	}
	p, err := s.patients.Read(ctx, id)
	if err != nil {
		return nil, wrapService(op, err)
	}
	if p == nil || p.Deleted {
		return nil, nil
	}
	return p, nil
}

func (s *PatientService) ListAll(ctx context.Context) ([]*Patient, error) {
	patients, err := s.patients.ListAll(ctx)
	if err != nil {
		return nil, wrapService("list patients", err)
	}
	return patients, nil
}

// GetByIDWithRecord is GetByID followed by a lookup of the patient's record.
func (s *PatientService) GetByIDWithRecord(ctx context.Context, id int64) (*Patient, error) {
	const op = "get patient with medical record"
	p, err := s.GetByID(ctx, id)
	if err != nil || p == nil {
		return nil, err
	}
	if err := s.attachRecord(ctx, p); err != nil {
		return nil, wrapService(op, err)
	}
	return p, nil
}

// ListAllWithRecords attaches each patient's record. The first lookup failure
// aborts the whole call.
func (s *PatientService) ListAllWithRecords(ctx context.Context) ([]*Patient, error) {
	const op = "list patients with medical records"
	patients, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range patients {
		if err := s.attachRecord(ctx, p); err != nil {
			return nil, wrapService(op, err)
		}
	}
	return patients, nil
}

// FindByNationalID returns the active patient with that national id and its
// record, or nil.
func (s *PatientService) FindByNationalID(ctx context.Context, nationalID string) (*Patient, error) {
	const op = "find patient by national id"
	nationalID = strings.TrimSpace(nationalID)
	if nationalID == "" {
		return nil, wrapService(op, &ValidationError{Field: "national_id", Message: "is required"})
	}
	p, err := s.patients.FindByNationalID(ctx, nationalID)
	if err != nil {
		return nil, wrapService(op, err)
	}
	if p == nil {
		return nil, nil
	}
	if err := s.attachRecord(ctx, p); err != nil {
		return nil, wrapService(op, err)
	}
	return p, nil
}

func (s *PatientService) attachRecord(ctx context.Context, p *Patient) error {
	rec, err := s.recordSvc.FindByPatientID(ctx, p.ID)
	if err != nil {
		return err
	}
	p.MedicalRecord = rec
	return nil
}
