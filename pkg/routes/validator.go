package routes

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
)

// CustomValidator adapts validator/v10 to echo.Validator
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a request validator
func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate returns a 400 HTTP error describing the first failed field
func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "%s failed on the %s rule", fe.Field(), fe.Tag())
		}
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}
