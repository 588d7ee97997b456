package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New()

// ValidateStruct runs the `validate` tags of s and reports violations as a
// configuration FeedError listing every failing field.
func ValidateStruct(s any) error {
	err := structValidator.Struct(s)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return NewFeedErrorWithCause(ErrorTypeConfiguration, "invalid configuration", err).
			WithOperation("validate_config")
	}

	fields := make([]string, 0, len(ve))
	for _, fe := range ve {
		if fe.Param() != "" {
			fields = append(fields, fmt.Sprintf("%s %s=%s", fe.Namespace(), fe.ActualTag(), fe.Param()))
		} else {
			fields = append(fields, fmt.Sprintf("%s %s", fe.Namespace(), fe.ActualTag()))
		}
	}
	return NewFeedErrorWithCause(ErrorTypeConfiguration, "invalid configuration: "+strings.Join(fields, ", "), err).
		WithOperation("validate_config")
}
