package appointments

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	completionHourPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
	localPhonePattern     = regexp.MustCompile(`^0\d{10}$`)
	nationalIDPattern     = regexp.MustCompile(`^\d{14}$`)
)

// DigitsOnly strips everything but ASCII digits.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizePhone returns the 11-digit local form (leading 0 plus ten digits).
// A ten digit number that lost its leading zero is rescued.
func NormalizePhone(raw string) (string, error) {
	digits := DigitsOnly(raw)
	if len(digits) == 10 && !strings.HasPrefix(digits, "0") {
		digits = "0" + digits
	}
	if !localPhonePattern.MatchString(digits) {
		return "", fmt.Errorf("%w: invalid phone format", ErrInvalidRequest)
	}
	return digits, nil
}

// ValidateNationalID checks the 14 digit national ID format.
func ValidateNationalID(id string) error {
	if !nationalIDPattern.MatchString(id) {
		return fmt.Errorf("%w: national id must be 14 digits", ErrInvalidRequest)
	}
	return nil
}

// ValidateCompletionHour checks a manual HH:MM completion time.
func ValidateCompletionHour(hour string) error {
	if !completionHourPattern.MatchString(hour) {
		return ErrInvalidTimeFormat
	}
	return nil
}

// ValidateDate checks a YYYY-MM-DD calendar date.
func ValidateDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidRequest)
	}
	return nil
}
