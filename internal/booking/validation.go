package booking

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/wolfman30/clinic-frontdesk/internal/appointments"
)

var validate *validator.Validate

// The custom tags defer to the appointments rules so staff edits and online
// bookings accept the same identities.
func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("local_phone", func(fl validator.FieldLevel) bool {
		v := fl.Field().String()
		phone, err := appointments.NormalizePhone(v)
		return err == nil && phone == v
	})
	_ = validate.RegisterValidation("national_id", func(fl validator.FieldLevel) bool {
		return appointments.ValidateNationalID(fl.Field().String()) == nil
	})
}

// bookingInput is the normalized request checked by the validator.
type bookingInput struct {
	Name          string `validate:"required,max=120"`
	Phone         string `validate:"required,local_phone"`
	NationalID    string `validate:"required,national_id"`
	Symptoms      string `validate:"max=4000"`
	ScheduledDate string `validate:"omitempty,datetime=2006-01-02"`
}

var validationMessages = map[string]string{
	"required":    "is required",
	"max":         "is too long",
	"local_phone": "must be 11 digits starting with 0",
	"national_id": "must be 14 digits",
	"datetime":    "must be YYYY-MM-DD",
}

func normalizeRequest(req Request) bookingInput {
	in := bookingInput{
		Name:          strings.TrimSpace(req.Name),
		NationalID:    strings.TrimSpace(req.NationalID),
		Symptoms:      strings.TrimSpace(req.Symptoms),
		ScheduledDate: strings.TrimSpace(req.ScheduledDate),
	}
	if phone, err := appointments.NormalizePhone(req.Phone); err == nil {
		in.Phone = phone
	} else {
		in.Phone = appointments.DigitsOnly(req.Phone)
	}
	return in
}

func validateInput(in bookingInput) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", appointments.ErrInvalidRequest, err)
	}
	var msgs []string
	for _, fe := range verrs {
		msg, ok := validationMessages[fe.Tag()]
		if !ok {
			msg = "is invalid"
		}
		msgs = append(msgs, fieldName(fe.Field())+" "+msg)
	}
	return fmt.Errorf("%w: %s", appointments.ErrInvalidRequest, strings.Join(msgs, ", "))
}

func fieldName(field string) string {
	switch field {
	case "NationalID":
		return "national_id"
	case "ScheduledDate":
		return "scheduled_date"
	default:
		return strings.ToLower(field)
	}
}
