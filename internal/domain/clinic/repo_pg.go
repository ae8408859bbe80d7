package clinic

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/clinic/clinic/internal/platform/db"
)

// table holds what the two repositories share: how to reach the store and how
// to turn a row into T.
type table[T any] struct {
	provider db.Provider
	entity   string
	name     string
	cols     string
	scan     func(pgx.Row) (*T, error)
}

// withSession runs fn on a session of its own and closes it on every path.
func (t *table[T]) withSession(ctx context.Context, fn func(db.Session) error) (err error) {
	sess, err := t.provider.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(ctx); cerr != nil && err == nil {
			err = fmt.Errorf("%s: close session: %w", t.entity, cerr)
		}
	}()
	return fn(sess)
}

func (t *table[T]) queryOne(ctx context.Context, q db.Querier, op, where string, args ...interface{}) (*T, error) {
	e, err := t.scan(q.QueryRow(ctx, `SELECT `+t.cols+` FROM `+t.name+` WHERE `+where, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError(t.entity, op, err)
	}
	return e, nil
}

func (t *table[T]) read(ctx context.Context, id int64) (*T, error) {
	var out *T
	err := t.withSession(ctx, func(s db.Session) error {
		var err error
		out, err = t.queryOne(ctx, s, "read", `id = $1`, id)
		return err
	})
	return out, err
}

func (t *table[T]) listAll(ctx context.Context) ([]*T, error) {
	var out []*T
	err := t.withSession(ctx, func(s db.Session) error {
		rows, err := s.Query(ctx, `SELECT `+t.cols+` FROM `+t.name+` WHERE deleted = false ORDER BY id`)
		if err != nil {
			return storeError(t.entity, "list", err)
		}
		defer rows.Close()

		for rows.Next() {
			e, err := t.scan(rows)
			if err != nil {
				return storeError(t.entity, "list", err)
			}
			out = append(out, e)
		}
		if err := rows.Err(); err != nil {
			return storeError(t.entity, "list", err)
		}
		return nil
	})
	return out, err
}

// insert runs an INSERT ... RETURNING id statement.
func (t *table[T]) insert(ctx context.Context, q db.Querier, sql string, args ...interface{}) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, sql, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, &PersistenceError{Op: "create", Entity: t.entity, Message: msgNoGeneratedID}
	}
	if err != nil {
		return 0, storeError(t.entity, "create", err)
	}
	return id, nil
}

// execOne runs a statement that must affect at least one row.
func (t *table[T]) execOne(ctx context.Context, q db.Querier, op, sql string, args ...interface{}) error {
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return storeError(t.entity, op, err)
	}
	if tag.RowsAffected() == 0 {
		return &PersistenceError{Op: op, Entity: t.entity, Message: msgNoRows}
	}
	return nil
}

func (t *table[T]) softDelete(ctx context.Context, q db.Querier, id int64) error {
	if id <= 0 {
		return &PersistenceError{Op: "soft delete", Entity: t.entity, Message: "id is required"}
	}
	return t.execOne(ctx, q, "soft delete", `UPDATE `+t.name+` SET deleted = true WHERE id = $1`, id)
}

// -- Patient Repository --

const (
	insertPatientSQL = `INSERT INTO patient (first_name, last_name, national_id, birth_date, deleted)
		VALUES ($1, $2, $3, $4, false) RETURNING id`
	updatePatientSQL = `UPDATE patient SET first_name = $2, last_name = $3, national_id = $4, birth_date = $5
		WHERE id = $1`
)

type patientRepoPG struct {
	t table[Patient]
}

func NewPatientRepo(provider db.Provider) PatientRepository {
	return &patientRepoPG{t: table[Patient]{
		provider: provider,
		entity:   "patient",
		name:     "patient",
		cols:     patientCols,
		scan:     scanPatient,
	}}
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	return r.t.withSession(ctx, func(s db.Session) error { return r.CreateWith(ctx, s, p) })
}

func (r *patientRepoPG) CreateWith(ctx context.Context, sess db.Session, p *Patient) error {
	if p == nil {
		return &PersistenceError{Op: "create", Entity: "patient", Message: "patient is required"}
	}
	id, err := r.t.insert(ctx, sess, insertPatientSQL, patientArgs(p)...)
	if err != nil {
		return err
	}
	p.ID = id
	p.Deleted = false
	return nil
}

func (r *patientRepoPG) Read(ctx context.Context, id int64) (*Patient, error) {
	return r.t.read(ctx, id)
}

func (r *patientRepoPG) ListAll(ctx context.Context) ([]*Patient, error) {
	return r.t.listAll(ctx)
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	return r.t.withSession(ctx, func(s db.Session) error { return r.UpdateWith(ctx, s, p) })
}

func (r *patientRepoPG) UpdateWith(ctx context.Context, sess db.Session, p *Patient) error {
	if p == nil || p.ID <= 0 {
		return &PersistenceError{Op: "update", Entity: "patient", Message: "id is required"}
	}
	args := append([]interface{}{p.ID}, patientArgs(p)...)
	return r.t.execOne(ctx, sess, "update", updatePatientSQL, args...)
}

func (r *patientRepoPG) SoftDelete(ctx context.Context, id int64) error {
	return r.t.withSession(ctx, func(s db.Session) error { return r.SoftDeleteWith(ctx, s, id) })
}

func (r *patientRepoPG) SoftDeleteWith(ctx context.Context, sess db.Session, id int64) error {
	return r.t.softDelete(ctx, sess, id)
}

func (r *patientRepoPG) FindByNationalID(ctx context.Context, nationalID string) (*Patient, error) {
	var out *Patient
	err := r.t.withSession(ctx, func(s db.Session) error {
		var err error
		out, err = r.t.queryOne(ctx, s, "find by national id", `national_id = $1 AND deleted = false`, nationalID)
		return err
	})
	return out, err
}

// -- Medical Record Repository --

const (
	insertRecordSQL = `INSERT INTO medical_record
		(record_number, blood_group, history, current_medication, notes, patient_id, deleted)
		VALUES ($1, $2, $3, $4, $5, $6, false) RETURNING id`
	updateRecordSQL = `UPDATE medical_record SET record_number = $2, blood_group = $3, history = $4,
		current_medication = $5, notes = $6, patient_id = $7
		WHERE id = $1`
)

type recordRepoPG struct {
	t table[MedicalRecord]
}

func NewMedicalRecordRepo(provider db.Provider) MedicalRecordRepository {
	return &recordRepoPG{t: table[MedicalRecord]{
		provider: provider,
		entity:   "medical record",
		name:     "medical_record",
		cols:     recordCols,
		scan:     scanMedicalRecord,
	}}
}

// checkRelations rejects a record the schema cannot accept before any
// statement is sent.
func checkRelations(op string, rec *MedicalRecord) error {
	if rec == nil {
		return &PersistenceError{Op: op, Entity: "medical record", Message: "medical record is required"}
	}
	if rec.BloodGroup == "" {
		return &PersistenceError{Op: op, Entity: "medical record", Message: "blood group is required"}
	}
	if rec.PatientID <= 0 {
		return &PersistenceError{Op: op, Entity: "medical record", Message: "owning patient id is required"}
	}
	return nil
}

func (r *recordRepoPG) Create(ctx context.Context, rec *MedicalRecord) error {
	return r.t.withSession(ctx, func(s db.Session) error { return r.CreateWith(ctx, s, rec) })
}

func (r *recordRepoPG) CreateWith(ctx context.Context, sess db.Session, rec *MedicalRecord) error {
	if err := checkRelations("create", rec); err != nil {
		return err
	}
	id, err := r.t.insert(ctx, sess, insertRecordSQL, recordArgs(rec)...)
	if err != nil {
		return err
	}
	rec.ID = id
	rec.Deleted = false
	return nil
}

func (r *recordRepoPG) Read(ctx context.Context, id int64) (*MedicalRecord, error) {
	return r.t.read(ctx, id)
}

func (r *recordRepoPG) ListAll(ctx context.Context) ([]*MedicalRecord, error) {
	return r.t.listAll(ctx)
}

func (r *recordRepoPG) Update(ctx context.Context, rec *MedicalRecord) error {
	return r.t.withSession(ctx, func(s db.Session) error { return r.UpdateWith(ctx, s, rec) })
}

func (r *recordRepoPG) UpdateWith(ctx context.Context, sess db.Session, rec *MedicalRecord) error {
	if err := checkRelations("update", rec); err != nil {
		return err
	}
	if rec.ID <= 0 {
		return &PersistenceError{Op: "update", Entity: "medical record", Message: "id is required"}
	}
	args := append([]interface{}{rec.ID}, recordArgs(rec)...)
	return r.t.execOne(ctx, sess, "update", updateRecordSQL, args...)
}

func (r *recordRepoPG) SoftDelete(ctx context.Context, id int64) error {
	return r.t.withSession(ctx, func(s db.Session) error { return r.SoftDeleteWith(ctx, s, id) })
}

func (r *recordRepoPG) SoftDeleteWith(ctx context.Context, sess db.Session, id int64) error {
	return r.t.softDelete(ctx, sess, id)
}

func (r *recordRepoPG) FindByPatientID(ctx context.Context, patientID int64) (*MedicalRecord, error) {
	var out *MedicalRecord
	err := r.t.withSession(ctx, func(s db.Session) error {
		var err error
		out, err = r.FindByPatientIDWith(ctx, s, patientID)
		return err
	})
	return out, err
}

func (r *recordRepoPG) FindByPatientIDWith(ctx context.Context, sess db.Session, patientID int64) (*MedicalRecord, error) {
	return r.t.queryOne(ctx, sess, "find by patient id", `patient_id = $1 AND deleted = false`, patientID)
}
