package clinic

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Patient maps to the patient table. MedicalRecord is never loaded by the
// patient queries; services attach it in a second step. BirthDate travels in
// JSON as a DateLayout calendar date.
type Patient struct {
	ID            int64          `db:"id" json:"id"`
	Deleted       bool           `db:"deleted" json:"deleted"`
	FirstName     string         `db:"first_name" json:"first_name" validate:"notblank,max=80"`
	LastName      string         `db:"last_name" json:"last_name" validate:"notblank,max=80"`
	NationalID    string         `db:"national_id" json:"national_id" validate:"notblank,max=15"`
	BirthDate     *time.Time     `db:"birth_date" json:"birth_date,omitempty"`
	MedicalRecord *MedicalRecord `db:"-" json:"medical_record,omitempty" validate:"-"`
}

// MedicalRecord maps to the medical_record table. The owning patient is held
// by id only.
type MedicalRecord struct {
	ID                int64      `db:"id" json:"id"`
	Deleted           bool       `db:"deleted" json:"deleted"`
	RecordNumber      string     `db:"record_number" json:"record_number" validate:"notblank,max=20"`
	BloodGroup        BloodGroup `db:"blood_group" json:"blood_group" validate:"bloodgroup"`
	History           string     `db:"history" json:"history,omitempty"`
	CurrentMedication string     `db:"current_medication" json:"current_medication,omitempty"`
	Notes             string     `db:"notes" json:"notes,omitempty"`
	PatientID         int64      `db:"patient_id" json:"patient_id"`
}

// BloodGroup is stored as its display text.
type BloodGroup string

const (
	BloodGroupAPos  BloodGroup = "A+"
	BloodGroupANeg  BloodGroup = "A-"
	BloodGroupBPos  BloodGroup = "B+"
	BloodGroupBNeg  BloodGroup = "B-"
	BloodGroupABPos BloodGroup = "AB+"
	BloodGroupABNeg BloodGroup = "AB-"
	BloodGroupOPos  BloodGroup = "O+"
	BloodGroupONeg  BloodGroup = "O-"
)

// AllBloodGroups lists every group in menu order.
var AllBloodGroups = []BloodGroup{
	BloodGroupAPos, BloodGroupANeg,
	BloodGroupBPos, BloodGroupBNeg,
	BloodGroupABPos, BloodGroupABNeg,
	BloodGroupOPos, BloodGroupONeg,
}

// legacy constant names still found in older exports
var legacyBloodGroups = map[string]BloodGroup{
	"AP":  BloodGroupAPos,
	"AM":  BloodGroupANeg,
	"BP":  BloodGroupBPos,
	"BM":  BloodGroupBNeg,
	"ABP": BloodGroupABPos,
	"ABM": BloodGroupABNeg,
	"OP":  BloodGroupOPos,
	"OM":  BloodGroupONeg,
}

func (g BloodGroup) Valid() bool {
	for _, v := range AllBloodGroups {
		if g == v {
			return true
		}
	}
	return false
}

func (g BloodGroup) String() string { return string(g) }

// UnmarshalText accepts every spelling ParseBloodGroup does. Blank input
// leaves the group empty so validation can report it as missing.
func (g *BloodGroup) UnmarshalText(text []byte) error {
	if strings.TrimSpace(string(text)) == "" {
		*g = ""
		return nil
	}
	parsed, err := ParseBloodGroup(string(text))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// ParseBloodGroup accepts the display form ("AB-"), the legacy constant name
// ("ABM") and the Unicode minus sign, case-insensitively.
func ParseBloodGroup(s string) (BloodGroup, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "−", "-")
	if g := BloodGroup(norm); g.Valid() {
		return g, nil
	}
	if g, ok := legacyBloodGroups[norm]; ok {
		return g, nil
	}
	return "", fmt.Errorf("unknown blood group %q", s)
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateLayout is the calendar date format of birth dates on the wire and in the
// console.
const DateLayout = "2006-01-02"

// calendarDate is the JSON form of a birth date.
type calendarDate time.Time

func (d calendarDate) MarshalText() ([]byte, error) {
	return []byte(time.Time(d).Format(DateLayout)), nil
}

// UnmarshalText takes a DateLayout date. An RFC 3339 timestamp is still
// accepted and truncated to its date.
func (d *calendarDate) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*d = calendarDate{}
		return nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, s); err != nil {
			return fmt.Errorf("invalid date %q, expected %s", s, DateLayout)
		}
	}
	*d = calendarDate(DateOnly(t))
	return nil
}

type patientAlias Patient

func (p Patient) MarshalJSON() ([]byte, error) {
	out := struct {
		patientAlias
		BirthDate *calendarDate `json:"birth_date,omitempty"`
	}{patientAlias: patientAlias(p)}
	if p.BirthDate != nil {
		d := calendarDate(*p.BirthDate)
		out.BirthDate = &d
	}
	return json.Marshal(out)
}

// UnmarshalJSON leaves BirthDate nil for a missing, null or empty birth_date.
func (p *Patient) UnmarshalJSON(data []byte) error {
	in := struct {
		*patientAlias
		BirthDate *calendarDate `json:"birth_date"`
	}{patientAlias: (*patientAlias)(p)}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	p.BirthDate = nil
	if in.BirthDate != nil && !time.Time(*in.BirthDate).IsZero() {
		t := time.Time(*in.BirthDate)
		p.BirthDate = &t
	}
	return nil
}
