package shared

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Stored scales of the decimal columns. Inputs finer than these would be
// rounded on write.
const (
	QuantityPlaces int32 = 6
	PricePlaces    int32 = 4
	PercentPlaces  int32 = 4
)

// CheckScale rejects v when it carries more than places fractional digits.
func CheckScale(field string, v decimal.Decimal, places int32) error {
	if !v.Truncate(places).Equal(v) {
		return Invalid(field, "must have at most %d decimal places, got %s", places, v)
	}
	return nil
}

// NewValidator returns a validator reporting fields by their json name.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// ValidateStruct runs v against s and converts the first failure into a
// ValidationError.
func ValidateStruct(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		if fe.Param() != "" {
			return Invalid(field, "failed %s=%s", fe.Tag(), fe.Param())
		}
		return Invalid(field, "failed %s", fe.Tag())
	}
	return Invalid("", "%s", err.Error())
}
