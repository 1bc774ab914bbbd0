package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/attaboy/walletcore/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
		return domain.PaymentMethod(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("request_type", func(fl validator.FieldLevel) bool {
		switch domain.RequestType(fl.Field().String()) {
		case domain.RequestDeposit, domain.RequestWithdrawal:
			return true
		}
		return false
	})
	_ = v.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		if err != nil {
			return false
		}
		return d.IsPositive() && d.Exponent() >= -2
	})
	return v
}

// Validate runs struct validation and converts failures into a single
// VALIDATION_ERROR naming each offending field.
func Validate(dst any) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.ErrValidation(err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return domain.ErrValidation(strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "payment_method":
		return fmt.Sprintf("%s: unsupported payment method %q", fe.Field(), fe.Value())
	case "request_type":
		return fmt.Sprintf("%s: must be deposit or withdrawal", fe.Field())
	case "money":
		return fmt.Sprintf("%s: must be a positive amount with at most 2 decimals", fe.Field())
	case "max":
		return fmt.Sprintf("%s: must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag())
	}
}

// ParseMoney converts a validated money string.
func ParseMoney(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return domain.Money(d)
}
