package serverutils

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateRequest runs the struct's validate tags and reports every failing
// field as a 400.
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return NewApiError(400, err.Error())
	}

	details := make(map[string]string, len(validationErrors))
	messages := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		msg := fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag())
		details[fe.Field()] = fe.Tag()
		messages = append(messages, msg)
	}
	return &ApiError{
		Code:    400,
		Message: "validation failed: " + strings.Join(messages, ", "),
		Details: details,
	}
}
