package validators

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// Validator adapts go-playground/validator to echo's Validator interface so handlers
// can call c.Validate(&req).
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new Validator
func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// Validate validates a request struct and reports failures as 400s.
func (v *Validator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}
