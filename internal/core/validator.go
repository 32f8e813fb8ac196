package core

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"dealbadge/internal/types"
)

// Validator wraps go-playground/validator with the domain tags used by
// request DTOs:
//
//	tier        a known tier key (FREE, BASIC, ADVANCED)
//	shop_domain a non-blank shop domain without whitespace or slashes
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator and registers the custom tags.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON field names instead of Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("tier", func(fl validator.FieldLevel) bool {
		return types.Tier(strings.ToUpper(fl.Field().String())).Valid()
	})
	_ = v.RegisterValidation("shop_domain", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return strings.TrimSpace(s) != "" && !strings.ContainsAny(s, " \t\r\n/")
	})

	return &Validator{validate: v, logger: logger}
}

// ValidateStruct validates s and converts failures into a validation
// AppError whose details list each offending field and tag.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		v.logger.Error("validator misuse", slog.String("error", err.Error()))
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	fields := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = fe.Tag()
	}

	first := fieldErrs[0]
	code := types.ErrCodeValidationMissingField
	switch first.Tag() {
	case "required":
	case "tier":
		code = types.ErrCodeValidationInvalidTier
	case "json":
		code = types.ErrCodeValidationInvalidJSON
	default:
		code = types.ErrCodeValidationInvalidField
	}

	return types.NewAppErrorWithDetails(code,
		"invalid value for field "+first.Field(),
		err,
		map[string]any{"fields": fields},
	)
}
