package clinic

import (
	"context"
)

// MedicalRecordService applies the record rules before touching the store.
// Every error it returns is a *ServiceError.
type MedicalRecordService struct {
	records  MedicalRecordRepository
	patients PatientRepository
}

func NewMedicalRecordService(records MedicalRecordRepository, patients PatientRepository) *MedicalRecordService {
	return &MedicalRecordService{records: records, patients: patients}
}

// Insert adds a record for an active patient. An unknown or soft-deleted
// owner is reported as a not-found PersistenceError.
func (s *MedicalRecordService) Insert(ctx context.Context, rec *MedicalRecord) error {
	const op = "insert medical record"
	if err := validateRecord(rec); err != nil {
		return wrapService(op, err)
	}
	owner, err := s.patients.Read(ctx, rec.PatientID)
	if err != nil {
		return wrapService(op, err)
	}
	if owner == nil || owner.Deleted {
		return wrapService(op, &PersistenceError{Op: "read", Entity: "patient", Message: msgNoRows})
	}
	return wrapService(op, s.records.Create(ctx, rec))
}

func (s *MedicalRecordService) Update(ctx context.Context, rec *MedicalRecord) error {
	const op = "update medical record"
	if err := validateRecord(rec); err != nil {
		return wrapService(op, err)
	}
	if err := validateID("id", rec.ID); err != nil {
		return wrapService(op, err)
	}
	return wrapService(op, s.records.Update(ctx, rec))
}

func (s *MedicalRecordService) SoftDelete(ctx context.Context, id int64) error {
	const op = "soft delete medical record"
	if err := validateID("id", id); err != nil {
		return wrapService(op, err)
	}
	return wrapService(op, s.records.SoftDelete(ctx, id))
}

// GetByID returns nil for an unknown or soft-deleted record.
func (s *MedicalRecordService) GetByID(ctx context.Context, id int64) (*MedicalRecord, error) {
	const op = "get medical record"
	if err := validateID("id", id); err != nil {
		return nil, wrapService(op, err)
	}
	rec, err := s.records.Read(ctx, id)
	if err != nil {
		return nil, wrapService(op, err)
	}
	if rec == nil || rec.Deleted {
		return nil, nil
	}
	return rec, nil
}

func (s *MedicalRecordService) ListAll(ctx context.Context) ([]*MedicalRecord, error) {
	recs, err := s.records.ListAll(ctx)
	if err != nil {
		return nil, wrapService("list medical records", err)
	}
	return recs, nil
}

// FindByPatientID returns the active record of a patient, or nil.
func (s *MedicalRecordService) FindByPatientID(ctx context.Context, patientID int64) (*MedicalRecord, error) {
	const op = "find medical record by patient"
	if err := validateID("patient_id", patientID); err != nil {
		return nil, wrapService(op, err)
	}
	rec, err := s.records.FindByPatientID(ctx, patientID)
	if err != nil {
		return nil, wrapService(op, err)
	}
	return rec, nil
}
