package clinic

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for reserved tag names.
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("bloodgroup", func(fl validator.FieldLevel) bool {
		return BloodGroup(fl.Field().String()).Valid()
	})
	return v
}

// toValidationError turns the first failed rule into a ValidationError.
func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "notblank":
		return &ValidationError{Field: fe.Field(), Message: "is required"}
	case "max":
		return &ValidationError{Field: fe.Field(), Message: fmt.Sprintf("must be at most %s characters", fe.Param())}
	case "bloodgroup":
		if fe.Value() == BloodGroup("") {
			return &ValidationError{Field: fe.Field(), Message: "is required"}
		}
		return &ValidationError{Field: fe.Field(), Message: fmt.Sprintf("must be one of %s", bloodGroupList())}
	default:
		return &ValidationError{Field: fe.Field(), Message: fmt.Sprintf("failed %q rule", fe.Tag())}
	}
}

func bloodGroupList() string {
	names := make([]string, len(AllBloodGroups))
	for i, g := range AllBloodGroups {
		names[i] = string(g)
	}
	return strings.Join(names, ", ")
}

func validatePatient(p *Patient) error {
	if p == nil {
		return &ValidationError{Field: "patient", Message: "is required"}
	}
	if err := validate.Struct(p); err != nil {
		return toValidationError(err)
	}
	return nil
}

// validateRecordFields checks the record's own columns. The owning patient is
// checked separately because the composite insert validates the record
// before the patient has an id.
func validateRecordFields(r *MedicalRecord) error {
	if r == nil {
		return &ValidationError{Field: "medical_record", Message: "is required"}
	}
	if err := validate.Struct(r); err != nil {
		return toValidationError(err)
	}
	return nil
}

func validateRecord(r *MedicalRecord) error {
	if err := validateRecordFields(r); err != nil {
		return err
	}
	return validateID("patient_id", r.PatientID)
}

func validateID(field string, id int64) error {
	if id <= 0 {
		return &ValidationError{Field: field, Message: "must be a positive id"}
	}
	return nil
}
