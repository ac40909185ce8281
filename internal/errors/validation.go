package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError is one failed validation rule, keyed by the request field name
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var tagMessages = map[string]string{
	"required": "is required",
	"email":    "must be a valid email address",
	"uuid":     "must be a valid UUID",
	"min":      "must be at least %s",
	"max":      "must be at most %s",
	"gte":      "must be at least %s",
	"lte":      "must be at most %s",
	"oneof":    "must be one of: %s",
}

// ValidationDetails turns validator errors into per-field messages. Other
// errors yield nil.
func ValidationDetails(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return nil
	}

	details := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("is invalid (%s)", fe.Tag())
		if tmpl, ok := tagMessages[fe.Tag()]; ok {
			msg = tmpl
			if strings.Contains(tmpl, "%s") {
				msg = fmt.Sprintf(tmpl, fe.Param())
			}
		}
		details = append(details, FieldError{Field: fe.Field(), Message: msg})
	}
	return details
}
