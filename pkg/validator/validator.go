package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/devhappys/kutt-sub000/pkg/response"
	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

var countryCode = regexp.MustCompile(`^[A-Z]{2}$`)

func init() {
	validate = validator.New()

	validate.RegisterValidation("country", validateCountry)
	validate.RegisterStructValidation(validateVisitFilter, domain.VisitFilter{})
}

func Validate(data any) []response.ValidationError {
	var validationErrors []response.ValidationError

	err := validate.Struct(data)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return []response.ValidationError{{Field: "", Message: err.Error()}}
	}

	for _, err := range fieldErrors {
		validationErrors = append(validationErrors, response.ValidationError{
			Field:   err.Field(),
			Message: getErrorMessage(err),
		})
	}

	return validationErrors
}

// validateCountry accepts ISO 3166-1 alpha-2 codes in upper case.
func validateCountry(fl validator.FieldLevel) bool {
	return countryCode.MatchString(fl.Field().String())
}

func validateVisitFilter(sl validator.StructLevel) {
	filter := sl.Current().Interface().(domain.VisitFilter)
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		sl.ReportError(filter.To, "To", "to", "after_from", "")
	}
}

func getErrorMessage(err validator.FieldError) string {
	field := err.Field()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, err.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, err.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, err.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, strings.ReplaceAll(err.Param(), " ", ", "))
	case "country":
		return fmt.Sprintf("%s must be a two letter country code", field)
	case "after_from":
		return fmt.Sprintf("%s must not be before From", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
