package clinic

import (
	"context"
	"errors"
	"io"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/db"
)

func testLogger() zerolog.Logger { return zerolog.New(io.Discard) }

// -- Fake store --

// fakeDB holds committed rows. Writes made through a session in explicit mode
// only land here on commit.
type fakeDB struct {
	nextPatientID int64
	nextRecordID  int64
	patients      map[int64]Patient
	records       map[int64]MedicalRecord
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		patients: make(map[int64]Patient),
		records:  make(map[int64]MedicalRecord),
	}
}

type fakeSession struct {
	autoCommit  bool
	closed      bool
	pending     []func()
	commits     int
	rollbacks   int
	rollbackErr error
}

func (s *fakeSession) ID() string       { return "fake-session" }
func (s *fakeSession) AutoCommit() bool { return s.autoCommit }

func (s *fakeSession) SetAutoCommit(_ context.Context, on bool) error {
	if s.closed {
		return db.ErrSessionClosed
	}
	if on && !s.autoCommit {
		s.apply()
	}
	s.autoCommit = on
	return nil
}

func (s *fakeSession) apply() {
	for _, fn := range s.pending {
		fn()
	}
	s.pending = nil
}

func (s *fakeSession) Commit(context.Context) error {
	if s.closed {
		return db.ErrSessionClosed
	}
	if s.autoCommit {
		return errors.New("commit in auto-commit mode")
	}
	s.apply()
	s.commits++
	return nil
}

func (s *fakeSession) Rollback(context.Context) error {
	if s.closed {
		return db.ErrSessionClosed
	}
	if s.autoCommit {
		return errors.New("rollback in auto-commit mode")
	}
	s.pending = nil
	s.rollbacks++
	return s.rollbackErr
}

func (s *fakeSession) Close(context.Context) error {
	s.pending = nil
	s.closed = true
	return nil
}

func (s *fakeSession) stage(fn func()) error {
	if s.closed {
		return db.ErrSessionClosed
	}
	if s.autoCommit {
		fn()
		return nil
	}
	s.pending = append(s.pending, fn)
	return nil
}

func (s *fakeSession) Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("fake session does not run SQL")
}

func (s *fakeSession) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("fake session does not run SQL")
}

func (s *fakeSession) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	return nil
}

type fakeProvider struct {
	sessions    []*fakeSession
	acquireErr  error
	rollbackErr error
}

func (p *fakeProvider) Acquire(context.Context) (db.Session, error) {
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	s := &fakeSession{autoCommit: true, rollbackErr: p.rollbackErr}
	p.sessions = append(p.sessions, s)
	return s, nil
}

func (p *fakeProvider) Ping(context.Context) error { return nil }
func (p *fakeProvider) Stats() *db.PoolStats       { return nil }
func (p *fakeProvider) Close()                     {}

func (p *fakeProvider) last() *fakeSession {
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

func ownSession() *fakeSession { return &fakeSession{autoCommit: true} }

func uniqueErr(constraint string) error {
	return &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: constraint}
}

// -- Fake Patient Repository --

type fakePatientRepo struct {
	db *fakeDB
}

func (m *fakePatientRepo) Create(ctx context.Context, p *Patient) error {
	return m.CreateWith(ctx, ownSession(), p)
}

func (m *fakePatientRepo) CreateWith(_ context.Context, sess db.Session, p *Patient) error {
	for _, existing := range m.db.patients {
		if !existing.Deleted && existing.NationalID == p.NationalID {
			return storeError("patient", "create", uniqueErr("idx_patient_national_id"))
		}
	}
	m.db.nextPatientID++
	id := m.db.nextPatientID
	p.ID = id
	row := *p
	row.MedicalRecord = nil
	return sess.(*fakeSession).stage(func() { m.db.patients[id] = row })
}

func (m *fakePatientRepo) Read(_ context.Context, id int64) (*Patient, error) {
	p, ok := m.db.patients[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *fakePatientRepo) ListAll(context.Context) ([]*Patient, error) {
	var out []*Patient
	for _, p := range m.db.patients {
		if p.Deleted {
			continue
		}
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *fakePatientRepo) Update(ctx context.Context, p *Patient) error {
	return m.UpdateWith(ctx, ownSession(), p)
}

func (m *fakePatientRepo) UpdateWith(_ context.Context, sess db.Session, p *Patient) error {
	if _, ok := m.db.patients[p.ID]; !ok {
		return &PersistenceError{Op: "update", Entity: "patient", Message: msgNoRows}
	}
	row := *p
	row.MedicalRecord = nil
	return sess.(*fakeSession).stage(func() { m.db.patients[row.ID] = row })
}

func (m *fakePatientRepo) SoftDelete(ctx context.Context, id int64) error {
	return m.SoftDeleteWith(ctx, ownSession(), id)
}

func (m *fakePatientRepo) SoftDeleteWith(_ context.Context, sess db.Session, id int64) error {
	if _, ok := m.db.patients[id]; !ok {
		return &PersistenceError{Op: "soft delete", Entity: "patient", Message: msgNoRows}
	}
	return sess.(*fakeSession).stage(func() {
		p := m.db.patients[id]
		p.Deleted = true
		m.db.patients[id] = p
	})
}

func (m *fakePatientRepo) FindByNationalID(_ context.Context, nationalID string) (*Patient, error) {
	for _, p := range m.db.patients {
		if !p.Deleted && p.NationalID == nationalID {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

// -- Fake Medical Record Repository --

type fakeRecordRepo struct {
	db        *fakeDB
	createErr error
	findErr   error
}

func (m *fakeRecordRepo) Create(ctx context.Context, rec *MedicalRecord) error {
	return m.CreateWith(ctx, ownSession(), rec)
}

func (m *fakeRecordRepo) CreateWith(_ context.Context, sess db.Session, rec *MedicalRecord) error {
	if err := checkRelations("create", rec); err != nil {
		return err
	}
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.db.records {
		if existing.Deleted {
			continue
		}
		if existing.RecordNumber == rec.RecordNumber {
			return storeError("medical record", "create", uniqueErr("idx_medical_record_number"))
		}
		if existing.PatientID == rec.PatientID {
			return storeError("medical record", "create", uniqueErr("idx_medical_record_patient"))
		}
	}
	m.db.nextRecordID++
	id := m.db.nextRecordID
	rec.ID = id
	row := *rec
	return sess.(*fakeSession).stage(func() { m.db.records[id] = row })
}

func (m *fakeRecordRepo) Read(_ context.Context, id int64) (*MedicalRecord, error) {
	rec, ok := m.db.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *fakeRecordRepo) ListAll(context.Context) ([]*MedicalRecord, error) {
	var out []*MedicalRecord
	for _, rec := range m.db.records {
		if rec.Deleted {
			continue
		}
		rec := rec
		out = append(out, &rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *fakeRecordRepo) Update(ctx context.Context, rec *MedicalRecord) error {
	return m.UpdateWith(ctx, ownSession(), rec)
}

func (m *fakeRecordRepo) UpdateWith(_ context.Context, sess db.Session, rec *MedicalRecord) error {
	if err := checkRelations("update", rec); err != nil {
		return err
	}
	if _, ok := m.db.records[rec.ID]; !ok {
		return &PersistenceError{Op: "update", Entity: "medical record", Message: msgNoRows}
	}
	row := *rec
	return sess.(*fakeSession).stage(func() { m.db.records[row.ID] = row })
}

func (m *fakeRecordRepo) SoftDelete(ctx context.Context, id int64) error {
	return m.SoftDeleteWith(ctx, ownSession(), id)
}

func (m *fakeRecordRepo) SoftDeleteWith(_ context.Context, sess db.Session, id int64) error {
	if _, ok := m.db.records[id]; !ok {
		return &PersistenceError{Op: "soft delete", Entity: "medical record", Message: msgNoRows}
	}
	return sess.(*fakeSession).stage(func() {
		rec := m.db.records[id]
		rec.Deleted = true
		m.db.records[id] = rec
	})
}

func (m *fakeRecordRepo) FindByPatientID(ctx context.Context, patientID int64) (*MedicalRecord, error) {
	return m.FindByPatientIDWith(ctx, ownSession(), patientID)
}

func (m *fakeRecordRepo) FindByPatientIDWith(_ context.Context, _ db.Session, patientID int64) (*MedicalRecord, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, rec := range m.db.records {
		if !rec.Deleted && rec.PatientID == patientID {
			rec := rec
			return &rec, nil
		}
	}
	return nil, nil
}

// -- Wiring --

type testEnv struct {
	db       *fakeDB
	provider *fakeProvider
	patients *fakePatientRepo
	records  *fakeRecordRepo
	recSvc   *MedicalRecordService
	svc      *PatientService
}

func newTestEnv() *testEnv {
	fdb := newFakeDB()
	env := &testEnv{
		db:       fdb,
		provider: &fakeProvider{},
		patients: &fakePatientRepo{db: fdb},
		records:  &fakeRecordRepo{db: fdb},
	}
	env.recSvc = NewMedicalRecordService(env.records, env.patients)
	env.svc = NewPatientService(env.provider, env.patients, env.records, env.recSvc, testLogger())
	return env
}

func newPatient(nationalID, recordNumber string) *Patient {
	return &Patient{
		FirstName:  "Juan",
		LastName:   "Perez",
		NationalID: nationalID,
		MedicalRecord: &MedicalRecord{
			RecordNumber: recordNumber,
			BloodGroup:   BloodGroupOPos,
		},
	}
}
