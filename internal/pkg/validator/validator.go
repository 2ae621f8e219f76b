package validator

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/kcrp/rp-dashboard/internal/pkg/roles"
)

// Validator instance
var validate *validator.Validate

var (
	messagesMu sync.RWMutex
	messages   = map[string]string{
		"role_label":    "Invalid role",
		"department":    "Invalid department. Must be: kcso, msp, or mfd",
		"money_account": "Invalid account. Must be: cash or bank",
	}
)

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func registerCustomValidations() {
	validate.RegisterValidation("role_label", func(fl validator.FieldLevel) bool {
		_, err := roles.ParseLabel(fl.Field().String())
		return err == nil
	})

	validate.RegisterValidation("department", func(fl validator.FieldLevel) bool {
		_, err := roles.ParseDepartment(fl.Field().String())
		return err == nil
	})

	validate.RegisterValidation("money_account", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "cash", "bank":
			return true
		}
		return false
	})
}

// RegisterStringRule adds a tag validated by check. Domain packages use it for
// rules that depend on their own parsers.
func RegisterStringRule(tag string, check func(string) bool, message string) {
	validate.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return check(fl.Field().String())
	})
	messagesMu.Lock()
	messages[tag] = message
	messagesMu.Unlock()
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"body": "Invalid request"}
	}

	errors := make(map[string]string)
	for _, err := range verrs {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "email":
			errors[field] = "Invalid email format"
		case "min":
			errors[field] = "Value is too short (min: " + err.Param() + ")"
		case "max":
			errors[field] = "Value is too long (max: " + err.Param() + ")"
		case "gt", "gte":
			errors[field] = "Value must be greater than " + err.Param()
		case "lte":
			errors[field] = "Value must be at most " + err.Param()
		case "oneof":
			errors[field] = "Must be one of: " + err.Param()
		default:
			messagesMu.RLock()
			msg, ok := messages[err.Tag()]
			messagesMu.RUnlock()
			if !ok {
				msg = "Invalid value"
			}
			errors[field] = msg
		}
	}

	return errors
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}
