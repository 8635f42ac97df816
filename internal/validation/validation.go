// Package validation runs struct-tag validation on service inputs and
// reports failures as validation errors.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/apperr"
)

var v *validator.Validate

var digitsOnly = regexp.MustCompile(`^[0-9]+$`)

var fieldValidators = map[string]func(validator.FieldLevel) bool{
	"digits": validateDigits,
}

func init() {
	v = validator.New(validator.WithRequiredStructEnabled())
	// money fields are validated as numbers, e.g. `validate:"gte=0"`
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	for name, fn := range fieldValidators {
		if err := v.RegisterValidation(name, fn); err != nil {
			panic(fmt.Sprintf("register validation %s: %v", name, err))
		}
	}
}

// Struct validates s and returns an *apperr.Error listing the failing fields.
func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return apperr.Internal(fmt.Errorf("validate: %w", err))
	}
	msgs := make([]string, 0, len(vErrs))
	for _, fe := range vErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
	}
	return apperr.Validation("%s", strings.Join(msgs, "; "))
}

func validateDigits(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s == "" || digitsOnly.MatchString(s)
}

func decimalValue(field reflect.Value) any {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		return d.InexactFloat64()
	}
	return nil
}
