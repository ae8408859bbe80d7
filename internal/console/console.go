package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/clinic"
)

const dateLayout = clinic.DateLayout

// PatientService is the subset of *clinic.PatientService the menu drives.
type PatientService interface {
	InsertWithRecord(ctx context.Context, p *clinic.Patient) error
	Update(ctx context.Context, p *clinic.Patient) error
	SoftDelete(ctx context.Context, id int64) error
	GetByIDWithRecord(ctx context.Context, id int64) (*clinic.Patient, error)
	ListAllWithRecords(ctx context.Context) ([]*clinic.Patient, error)
	FindByNationalID(ctx context.Context, nationalID string) (*clinic.Patient, error)
}

// RecordService is the subset of *clinic.MedicalRecordService the menu drives.
type RecordService interface {
	Insert(ctx context.Context, rec *clinic.MedicalRecord) error
	Update(ctx context.Context, rec *clinic.MedicalRecord) error
	SoftDelete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*clinic.MedicalRecord, error)
	ListAll(ctx context.Context) ([]*clinic.MedicalRecord, error)
}

// Menu is the interactive text front end. It stops on option 0 or when the
// input runs out.
type Menu struct {
	in       *bufio.Scanner
	out      io.Writer
	patients PatientService
	records  RecordService
	logger   zerolog.Logger
}

func NewMenu(in io.Reader, out io.Writer, patients PatientService, records RecordService, logger zerolog.Logger) *Menu {
	return &Menu{
		in:       bufio.NewScanner(in),
		out:      out,
		patients: patients,
		records:  records,
		logger:   logger.With().Str("component", "console").Logger(),
	}
}

type action struct {
	key   string
	label string
	run   func(*Menu, context.Context) error
}

var actions = []action{
	{"1", "Create patient with medical record", (*Menu).createPatient},
	{"2", "List patients", (*Menu).listPatients},
	{"3", "Find patient by ID", (*Menu).showPatient},
	{"4", "Update patient", (*Menu).updatePatient},
	{"5", "Delete patient (soft)", (*Menu).deletePatient},
	{"6", "Find patient by national ID", (*Menu).findByNationalID},
	{"7", "Create medical record for patient", (*Menu).createRecord},
	{"8", "List medical records", (*Menu).listRecords},
	{"9", "Find medical record by ID", (*Menu).showRecord},
	{"10", "Update medical record", (*Menu).updateRecord},
	{"11", "Delete medical record (soft)", (*Menu).deleteRecord},
}

// Run loops until the user exits. Running out of input is a normal exit.
func (m *Menu) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.printMenu()
		choice, err := m.readLine("Choose an option: ")
		if err != nil {
			return eofIsExit(err)
		}
		choice = strings.TrimSpace(choice)
		if choice == "0" {
			m.println("Goodbye.")
			return nil
		}

		act, ok := lookup(choice)
		if !ok {
			m.println("Invalid option, try again.")
			m.println("")
			continue
		}
		if err := act.run(m, ctx); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			m.report(err)
		}
		m.println("")
	}
}

func lookup(key string) (action, bool) {
	for _, a := range actions {
		if a.key == key {
			return a, true
		}
	}
	return action{}, false
}

func eofIsExit(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (m *Menu) printMenu() {
	m.println("==============================================")
	m.println("  Clinic records - main menu")
	m.println("==============================================")
	m.println("Patients")
	for _, a := range actions[:6] {
		m.printf("%2s) %s\n", a.key, a.label)
	}
	m.println("----------------------------------------------")
	m.println("Medical records")
	for _, a := range actions[6:] {
		m.printf("%2s) %s\n", a.key, a.label)
	}
	m.println("----------------------------------------------")
	m.println(" 0) Exit")
}

// report turns a service failure into a line of text.
func (m *Menu) report(err error) {
	var verr *clinic.ValidationError
	if errors.As(err, &verr) {
		m.printf("Invalid input: %s\n", verr.Error())
		return
	}
	var perr *clinic.PersistenceError
	if errors.As(err, &perr) && perr.Conflict() {
		m.printf("Already exists: %s\n", perr.Error())
		return
	}
	var serr *clinic.ServiceError
	if errors.As(err, &serr) {
		m.printf("Service error: %s\n", serr.Error())
		return
	}
	m.logger.Error().Err(err).Msg("menu action failed")
	m.printf("Unexpected error: %s\n", err.Error())
}

// -- Patients --

func (m *Menu) createPatient(ctx context.Context) error {
	m.println("--- New patient with medical record ---")
	p, err := m.readPatient()
	if err != nil {
		return err
	}
	rec, err := m.readRecord()
	if err != nil {
		return err
	}
	p.MedicalRecord = rec
	if err := m.patients.InsertWithRecord(ctx, p); err != nil {
		return err
	}
	m.printf("Patient created with ID %d (record ID %d).\n", p.ID, rec.ID)
	return nil
}

func (m *Menu) listPatients(ctx context.Context) error {
	m.println("--- Patients ---")
	patients, err := m.patients.ListAllWithRecords(ctx)
	if err != nil {
		return err
	}
	if len(patients) == 0 {
		m.println("No patients registered.")
		return nil
	}
	for _, p := range patients {
		m.println(formatPatient(p))
	}
	return nil
}

func (m *Menu) showPatient(ctx context.Context) error {
	id, err := m.readID("Patient ID: ")
	if err != nil {
		return err
	}
	p, err := m.patients.GetByIDWithRecord(ctx, id)
	if err != nil {
		return err
	}
	if p == nil {
		m.printf("No patient with ID %d.\n", id)
		return nil
	}
	m.println(formatPatient(p))
	return nil
}

func (m *Menu) updatePatient(ctx context.Context) error {
	id, err := m.readID("Patient ID: ")
	if err != nil {
		return err
	}
	p, err := m.patients.GetByIDWithRecord(ctx, id)
	if err != nil {
		return err
	}
	if p == nil {
		m.printf("No patient with ID %d.\n", id)
		return nil
	}

	m.println("Leave a field empty to keep its current value.")
	if err := m.keep(&p.FirstName, "First name"); err != nil {
		return err
	}
	if err := m.keep(&p.LastName, "Last name"); err != nil {
		return err
	}
	if err := m.keep(&p.NationalID, "National ID"); err != nil {
		return err
	}
	line, err := m.readLine(fmt.Sprintf("Birth date %s (%s): ", dateLayout, formatDate(p.BirthDate)))
	if err != nil {
		return err
	}
	if line = strings.TrimSpace(line); line != "" {
		if d, perr := time.Parse(dateLayout, line); perr == nil {
			p.BirthDate = &d
		} else {
			m.println("Invalid date, keeping the current one.")
		}
	}

	if p.MedicalRecord != nil {
		yes, err := m.confirm("Update the attached medical record too? (y/N): ")
		if err != nil {
			return err
		}
		if yes {
			if err := m.editRecord(p.MedicalRecord); err != nil {
				return err
			}
		} else {
			p.MedicalRecord = nil
		}
	}

	if err := m.patients.Update(ctx, p); err != nil {
		return err
	}
	m.println("Patient updated.")
	return nil
}

func (m *Menu) deletePatient(ctx context.Context) error {
	id, err := m.readID("Patient ID: ")
	if err != nil {
		return err
	}
	if err := m.patients.SoftDelete(ctx, id); err != nil {
		return err
	}
	m.println("Patient marked as deleted.")
	return nil
}

func (m *Menu) findByNationalID(ctx context.Context) error {
	nid, err := m.readLine("National ID: ")
	if err != nil {
		return err
	}
	nid = strings.TrimSpace(nid)
	p, err := m.patients.FindByNationalID(ctx, nid)
	if err != nil {
		return err
	}
	if p == nil {
		m.printf("No patient with national ID %s.\n", nid)
		return nil
	}
	m.println(formatPatient(p))
	return nil
}

// -- Medical records --

func (m *Menu) createRecord(ctx context.Context) error {
	id, err := m.readID("Patient ID: ")
	if err != nil {
		return err
	}
	p, err := m.patients.GetByIDWithRecord(ctx, id)
	if err != nil {
		return err
	}
	if p == nil {
		m.printf("No patient with ID %d.\n", id)
		return nil
	}
	if p.MedicalRecord != nil {
		m.println("This patient already has a medical record.")
		return nil
	}

	rec, err := m.readRecord()
	if err != nil {
		return err
	}
	rec.PatientID = p.ID
	if err := m.records.Insert(ctx, rec); err != nil {
		return err
	}
	m.printf("Medical record created with ID %d.\n", rec.ID)
	return nil
}

func (m *Menu) listRecords(ctx context.Context) error {
	m.println("--- Medical records ---")
	recs, err := m.records.ListAll(ctx)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		m.println("No medical records registered.")
		return nil
	}
	for _, rec := range recs {
		m.println(formatRecord(rec))
	}
	return nil
}

func (m *Menu) showRecord(ctx context.Context) error {
	id, err := m.readID("Medical record ID: ")
	if err != nil {
		return err
	}
	rec, err := m.records.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		m.printf("No medical record with ID %d.\n", id)
		return nil
	}
	m.println(formatRecord(rec))
	return nil
}

func (m *Menu) updateRecord(ctx context.Context) error {
	id, err := m.readID("Medical record ID: ")
	if err != nil {
		return err
	}
	rec, err := m.records.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		m.printf("No medical record with ID %d.\n", id)
		return nil
	}
	if err := m.editRecord(rec); err != nil {
		return err
	}
	if err := m.records.Update(ctx, rec); err != nil {
		return err
	}
	m.println("Medical record updated.")
	return nil
}

func (m *Menu) deleteRecord(ctx context.Context) error {
	id, err := m.readID("Medical record ID: ")
	if err != nil {
		return err
	}
	if err := m.records.SoftDelete(ctx, id); err != nil {
		return err
	}
	m.println("Medical record marked as deleted.")
	return nil
}

// -- Input --

func (m *Menu) readPatient() (*clinic.Patient, error) {
	var p clinic.Patient
	var err error
	if p.FirstName, err = m.readRequired("First name: "); err != nil {
		return nil, err
	}
	if p.LastName, err = m.readRequired("Last name: "); err != nil {
		return nil, err
	}
	if p.NationalID, err = m.readRequired("National ID: "); err != nil {
		return nil, err
	}
	if p.BirthDate, err = m.readDate("Birth date " + dateLayout + " (optional): "); err != nil {
		return nil, err
	}
	return &p, nil
}

func (m *Menu) readRecord() (*clinic.MedicalRecord, error) {
	var rec clinic.MedicalRecord
	num, err := m.readRequired("Record number: ")
	if err != nil {
		return nil, err
	}
	rec.RecordNumber = strings.ToUpper(num)
	if rec.BloodGroup, err = m.readBloodGroup(); err != nil {
		return nil, err
	}
	if rec.History, err = m.readLine("History: "); err != nil {
		return nil, err
	}
	if rec.CurrentMedication, err = m.readLine("Current medication: "); err != nil {
		return nil, err
	}
	if rec.Notes, err = m.readLine("Notes: "); err != nil {
		return nil, err
	}
	return &rec, nil
}

// editRecord prompts for each record field, keeping blanks as they were.
func (m *Menu) editRecord(rec *clinic.MedicalRecord) error {
	line, err := m.readLine(fmt.Sprintf("Record number (%s): ", rec.RecordNumber))
	if err != nil {
		return err
	}
	if line = strings.TrimSpace(line); line != "" {
		rec.RecordNumber = strings.ToUpper(line)
	}
	m.printf("Current blood group: %s\n", rec.BloodGroup)
	yes, err := m.confirm("Change it? (y/N): ")
	if err != nil {
		return err
	}
	if yes {
		if rec.BloodGroup, err = m.readBloodGroup(); err != nil {
			return err
		}
	}
	for _, f := range []struct {
		label string
		field *string
	}{
		{"History", &rec.History},
		{"Current medication", &rec.CurrentMedication},
		{"Notes", &rec.Notes},
	} {
		if err := m.keep(f.field, f.label); err != nil {
			return err
		}
	}
	return nil
}

// readBloodGroup accepts a menu number or any spelling ParseBloodGroup knows.
func (m *Menu) readBloodGroup() (clinic.BloodGroup, error) {
	m.println("Blood group:")
	for i, g := range clinic.AllBloodGroups {
		m.printf(" %d) %s\n", i+1, g)
	}
	for {
		line, err := m.readLine("Option: ")
		if err != nil {
			return "", err
		}
		line = strings.TrimSpace(line)
		if n, err := strconv.Atoi(line); err == nil {
			if n >= 1 && n <= len(clinic.AllBloodGroups) {
				return clinic.AllBloodGroups[n-1], nil
			}
		} else if g, err := clinic.ParseBloodGroup(line); err == nil {
			return g, nil
		}
		m.println("Invalid selection.")
	}
}

func (m *Menu) keep(field *string, label string) error {
	current := *field
	if current == "" {
		current = "-"
	}
	line, err := m.readLine(fmt.Sprintf("%s (%s): ", label, current))
	if err != nil {
		return err
	}
	if line = strings.TrimSpace(line); line != "" {
		*field = line
	}
	return nil
}

func (m *Menu) confirm(prompt string) (bool, error) {
	line, err := m.readLine(prompt)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(line), "y"), nil
}

func (m *Menu) readRequired(prompt string) (string, error) {
	for {
		line, err := m.readLine(prompt)
		if err != nil {
			return "", err
		}
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
		m.println("This field is required.")
	}
}

func (m *Menu) readID(prompt string) (int64, error) {
	for {
		line, err := m.readLine(prompt)
		if err != nil {
			return 0, err
		}
		if id, perr := strconv.ParseInt(strings.TrimSpace(line), 10, 64); perr == nil {
			return id, nil
		}
		m.println("Enter a valid number.")
	}
}

// readDate returns nil for an empty answer.
func (m *Menu) readDate(prompt string) (*time.Time, error) {
	for {
		line, err := m.readLine(prompt)
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return nil, nil
		}
		if d, perr := time.Parse(dateLayout, line); perr == nil {
			return &d, nil
		}
		m.printf("Invalid date, use %s.\n", dateLayout)
	}
}

func (m *Menu) readLine(prompt string) (string, error) {
	m.printf("%s", prompt)
	if !m.in.Scan() {
		if err := m.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return m.in.Text(), nil
}

func (m *Menu) println(s string) { fmt.Fprintln(m.out, s) }

func (m *Menu) printf(format string, args ...interface{}) { fmt.Fprintf(m.out, format, args...) }

// -- Formatting --

func formatPatient(p *clinic.Patient) string {
	state := "ACTIVE"
	if p.Deleted {
		state = "DELETED"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "ID: %d | %s %s | National ID: %s | Born: %s | State: %s",
		p.ID, p.FirstName, p.LastName, p.NationalID, formatDate(p.BirthDate), state)
	if p.MedicalRecord != nil {
		fmt.Fprintf(&b, " | Record: %s", p.MedicalRecord.RecordNumber)
	}
	return b.String()
}

func formatRecord(rec *clinic.MedicalRecord) string {
	state := "ACTIVE"
	if rec.Deleted {
		state = "DELETED"
	}
	return fmt.Sprintf("ID: %d | Number: %s | Blood group: %s | Patient ID: %d | State: %s",
		rec.ID, rec.RecordNumber, rec.BloodGroup, rec.PatientID, state)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "n/a"
	}
	return t.Format(dateLayout)
}
