package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	validatorv10 "github.com/go-playground/validator/v10"

	"order-saga-client/internal/apierr"
	"order-saga-client/internal/idempotency"
)

var (
	validatorOnce sync.Once
	validate      *validatorv10.Validate
)

// Validator returns the shared validator configured with json field names,
// the idempotency_key tag and item-level price checks.
func Validator() *validatorv10.Validate {
	validatorOnce.Do(func() {
		validate = newValidator()
	})
	return validate
}

func newValidator() *validatorv10.Validate {
	v := validatorv10.New(validatorv10.WithRequiredStructEnabled())

	// report fields by their wire names so details line up with form fields
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	// registration only fails for an empty tag
	_ = v.RegisterValidation("idempotency_key", func(fl validatorv10.FieldLevel) bool {
		return idempotency.Validate(fl.Field().String())
	})

	v.RegisterStructValidation(orderItemStructValidation, OrderItemRequest{})

	return v
}

// orderItemStructValidation requires a strictly positive unit price
func orderItemStructValidation(sl validatorv10.StructLevel) {
	item := sl.Current().Interface().(OrderItemRequest)
	if !item.UnitPrice.IsPositive() {
		sl.ReportError(item.UnitPrice, "unitPrice", "UnitPrice", "positive", "")
	}
}

// ValidateCreateOrder checks a request before it is sent. It returns an
// *apierr.ValidationError keyed by form field, e.g. items[0].quantity.
func ValidateCreateOrder(req CreateOrderRequest) error {
	err := Validator().Struct(req)
	if err == nil {
		return nil
	}

	fields := FieldErrors(err)
	if len(fields) == 1 {
		if _, ok := fields["idempotencyKey"]; ok {
			return &apierr.ValidationError{Message: idempotency.ErrInvalidKey.Error(), Fields: fields}
		}
	}
	return &apierr.ValidationError{
		Message: fmt.Sprintf("Validation failed on %d field(s). Please review the highlighted fields.", len(fields)),
		Fields:  fields,
	}
}

// FieldErrors flattens validator errors into field -> message
func FieldErrors(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		out["request"] = err.Error()
		return out
	}
	for _, fe := range ve {
		out[fieldKey(fe.Namespace())] = fieldMessage(fe)
	}
	return out
}

// fieldKey drops the root struct name from a namespace
func fieldKey(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validatorv10.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "uuid":
		return "must be a valid UUID"
	case "idempotency_key":
		return "must be a UUID v4"
	case "positive":
		return "must be greater than zero"
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		}
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "alpha":
		return "must contain only letters"
	default:
		return "is invalid"
	}
}
