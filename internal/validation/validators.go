package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/studyhub/dashboard-api/internal/models"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Register custom validators for enums
	// These should never fail in normal operation, but log if they do
	if err := Validate.RegisterValidation("event_type", validateEventType); err != nil {
		panic(fmt.Sprintf("failed to register event_type validator: %v", err))
	}
	if err := Validate.RegisterValidation("change_table", validateChangeTable); err != nil {
		panic(fmt.Sprintf("failed to register change_table validator: %v", err))
	}
}

// validateEventType validates that a string is a valid EventType enum value
func validateEventType(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	switch models.EventType(value) {
	case models.EventInsert, models.EventUpdate, models.EventDelete:
		return true
	default:
		return false
	}
}

// validateChangeTable validates that a string names a table the change feed covers
func validateChangeTable(fl validator.FieldLevel) bool {
	return models.ChangeTable(fl.Field().String()).Known()
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	// Trim whitespace
	text = strings.TrimSpace(text)

	// Remove control characters except newline and tab
	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// ValidateEventType validates an EventType string value
func ValidateEventType(value string) error {
	if err := Validate.Var(value, "event_type"); err != nil {
		return fmt.Errorf("invalid event_type: %s (must be 'INSERT', 'UPDATE', or 'DELETE')", value)
	}
	return nil
}

// ValidateChangeTable validates a ChangeTable string value
func ValidateChangeTable(value string) error {
	if err := Validate.Var(value, "change_table"); err != nil {
		return fmt.Errorf("invalid table: %s", value)
	}
	return nil
}
