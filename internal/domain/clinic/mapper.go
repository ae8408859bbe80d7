package clinic

import (
	"time"

	"github.com/jackc/pgx/v5"
)

const patientCols = `id, first_name, last_name, national_id, birth_date, deleted`

const recordCols = `id, record_number, blood_group, history, current_medication, notes, patient_id, deleted`

// scanPatient maps one patient row. pgx.Rows satisfies pgx.Row, so list
// queries use it too.
func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var birth *time.Time
	if err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.NationalID, &birth, &p.Deleted); err != nil {
		return nil, err
	}
	if birth != nil {
		d := DateOnly(*birth)
		p.BirthDate = &d
	}
	return &p, nil
}

// scanMedicalRecord maps one medical_record row. The owner is left as an id.
func scanMedicalRecord(row pgx.Row) (*MedicalRecord, error) {
	var r MedicalRecord
	var group string
	var history, medication, notes *string
	if err := row.Scan(&r.ID, &r.RecordNumber, &group, &history, &medication, &notes, &r.PatientID, &r.Deleted); err != nil {
		return nil, err
	}
	bg, err := ParseBloodGroup(group)
	if err != nil {
		return nil, &MappingError{Column: "blood_group", Value: group}
	}
	r.BloodGroup = bg
	r.History = deref(history)
	r.CurrentMedication = deref(medication)
	r.Notes = deref(notes)
	return &r, nil
}

// patientArgs binds first_name, last_name, national_id, birth_date.
func patientArgs(p *Patient) []interface{} {
	return []interface{}{p.FirstName, p.LastName, p.NationalID, dateArg(p.BirthDate)}
}

// recordArgs binds record_number, blood_group, history, current_medication,
// notes, patient_id.
func recordArgs(r *MedicalRecord) []interface{} {
	return []interface{}{
		r.RecordNumber,
		string(r.BloodGroup),
		textArg(r.History),
		textArg(r.CurrentMedication),
		textArg(r.Notes),
		r.PatientID,
	}
}

func dateArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return DateOnly(*t)
}

func textArg(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
