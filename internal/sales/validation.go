package sales

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report json names so field errors match what the client sent.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	// dgt0: decimal strictly greater than zero.
	_ = v.RegisterValidation("dgt0", func(fl validator.FieldLevel) bool {
		d, ok := fl.Field().Interface().(decimal.Decimal)
		return ok && d.IsPositive()
	})
	// dplaces=N: decimal with at most N decimal places.
	_ = v.RegisterValidation("dplaces", func(fl validator.FieldLevel) bool {
		d, ok := fl.Field().Interface().(decimal.Decimal)
		places, err := strconv.ParseInt(fl.Param(), 10, 32)
		return ok && err == nil && d.Equal(d.Truncate(int32(places)))
	})
	// dmax=X: decimal no larger than X.
	_ = v.RegisterValidation("dmax", func(fl validator.FieldLevel) bool {
		d, ok := fl.Field().Interface().(decimal.Decimal)
		limit, err := decimal.NewFromString(fl.Param())
		return ok && err == nil && d.LessThanOrEqual(limit)
	})
	return v
}

// validateCommand runs the struct tags of a command and converts failures
// into a *ValidationError.
func validateCommand(cmd any) error {
	err := validate.Struct(cmd)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate command: %w", err)
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.add(fieldPath(fe.Namespace()), describe(fe))
	}
	return out
}

// fieldPath strips the command type from a validator namespace:
// "CreateSaleCommand.items[0].product" -> "items[0].product".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func itemField(idx int, name string) string {
	return fmt.Sprintf("items[%d].%s", idx, name)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("cannot exceed %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must contain at least %s entries", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "dgt0":
		return "must be greater than zero"
	case "dplaces":
		return fmt.Sprintf("cannot have more than %s decimal places", fe.Param())
	case "dmax":
		return fmt.Sprintf("cannot exceed %s", fe.Param())
	case "lte":
		return "cannot be in the future"
	case "uuid":
		return "must be a valid UUID"
	default:
		return fmt.Sprintf("failed %q rule", fe.Tag())
	}
}
