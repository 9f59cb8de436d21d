package validator

import (
	"errors"
	"fmt"
	"strings"

	"darna/pkg/logger"
	"darna/pkg/model"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type BookingRequestValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBookingRequestValidator(log *logger.Logger) *BookingRequestValidator {
	v := validator.New()

	if err := v.RegisterValidation("notblank", validateNotBlank); err != nil {
		log.Fatal("Failed to register 'notblank' validator",
			"error", err,
		)
	}

	log.Info("Booking request validator initialized successfully")

	return &BookingRequestValidator{
		validate: v,
		logger:   log,
	}
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// Validate checks the payload and returns the parsed stay range.
func (v *BookingRequestValidator) Validate(req *model.BookingRequestCreate) (model.DateRange, error) {
	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return model.DateRange{}, v.translateValidationErrors(validationErrs)
		}
		return model.DateRange{}, err
	}

	r, err := model.NewDateRange(req.StartDate, req.EndDate)
	if err == nil {
		err = r.ValidateStay()
	}
	if err != nil {
		return model.DateRange{}, ValidationErrors{
			ValidationError{
				Field:   "EndDate",
				Message: err.Error(),
			},
		}
	}

	return r, nil
}

func (v *BookingRequestValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required", "notblank":
			message = fmt.Sprintf("%s is required", err.Field())
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
		case "datetime":
			message = fmt.Sprintf("%s must be a date in YYYY-MM-DD format", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
