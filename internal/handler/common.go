package handler

import (
	"github.com/go-playground/validator/v10"
)

// formatValidationErrors converts validator errors into a field -> message
// map for the error response details.
func formatValidationErrors(err error) map[string]string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil
	}

	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
