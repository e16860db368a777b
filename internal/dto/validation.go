package dto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/Additional-Code/procura/pkg/errorbank"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
	errValidate  error
)

func initValidator() (*validator.Validate, error) {
	vld := validator.New(validator.WithRequiredStructEnabled())

	vld.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	rules := map[string]validator.Func{
		"positive_decimal": func(fl validator.FieldLevel) bool {
			value, ok := fl.Field().Interface().(decimal.Decimal)
			return ok && value.IsPositive()
		},
		"nonnegative_decimal": func(fl validator.FieldLevel) bool {
			value, ok := fl.Field().Interface().(decimal.Decimal)
			return ok && !value.IsNegative()
		},
		"max_scale": func(fl validator.FieldLevel) bool {
			value, ok := fl.Field().Interface().(decimal.Decimal)
			if !ok {
				return false
			}
			places, err := strconv.ParseInt(fl.Param(), 10, 32)
			if err != nil {
				return false
			}
			return value.Equal(value.Truncate(int32(places)))
		},
		"json_object": func(fl validator.FieldLevel) bool {
			raw := bytes.TrimSpace(fl.Field().Bytes())
			if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
				return true
			}
			return raw[0] == '{' && json.Valid(raw)
		},
	}
	for tag, fn := range rules {
		if err := vld.RegisterValidation(tag, fn); err != nil {
			return nil, fmt.Errorf("register %q: %w", tag, err)
		}
	}
	return vld, nil
}

// Validate checks payload against its validate tags and reports the first
// violation as a bad request carrying the offending field.
func Validate(payload any) error {
	validateOnce.Do(func() {
		validate, errValidate = initValidator()
	})
	if errValidate != nil {
		return errorbank.Internal("validator unavailable", errorbank.WithCause(errValidate))
	}

	err := validate.Struct(payload)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errorbank.BadRequest("invalid payload", errorbank.WithCause(err))
	}

	fe := fieldErrs[0]
	field := fieldPath(fe.Namespace())
	return errorbank.BadRequest(
		fmt.Sprintf("%s %s", field, describe(fe)),
		errorbank.WithCause(err),
		errorbank.WithDetail("field", field),
		errorbank.WithDetail("rule", fe.Tag()),
	)
}

// fieldPath drops the struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must have at least " + fe.Param() + " entries"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "alpha":
		return "must contain letters only"
	case "datetime":
		return "must be a date formatted as " + fe.Param()
	case "positive_decimal":
		return "must be greater than zero"
	case "nonnegative_decimal":
		return "must not be negative"
	case "max_scale":
		return "must have at most " + fe.Param() + " decimal places"
	case "json_object":
		return "must be a JSON object"
	default:
		return "is invalid"
	}
}
