package utils

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// IsValidEmail reports whether s is a single well-formed address
func IsValidEmail(s string) bool {
	return validate.Var(s, "email") == nil
}

// TranslateValidationError turns binding errors into a readable sentence
func TranslateValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		messages := make([]string, 0, len(ve))
		for _, fe := range ve {
			field := lowerFirst(fe.Field())
			switch fe.Tag() {
			case "required":
				messages = append(messages, field+" is required")
			case "email":
				messages = append(messages, "invalid email format")
			case "min":
				messages = append(messages, field+" must be at least "+fe.Param()+" characters")
			case "max":
				messages = append(messages, field+" must be at most "+fe.Param()+" characters")
			case "gt", "gte":
				messages = append(messages, field+" must be greater than "+fe.Param())
			case "oneof":
				messages = append(messages, field+" must be one of: "+fe.Param())
			default:
				messages = append(messages, field+" is invalid")
			}
		}
		return strings.Join(messages, ", ")
	}
	return err.Error()
}

// JSON field names in this API are camelCase; struct field names are not
func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
