package validator

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

// MaxPartySize is the largest group a single booking search may ask for
const MaxPartySize = 50

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
	// Calendar date in YYYY-MM-DD form
	validate.RegisterValidation("iso_date", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(time.DateOnly, fl.Field().String())
		return err == nil
	})

	// Non-negative decimal price
	validate.RegisterValidation("price", func(fl validator.FieldLevel) bool {
		v, err := strconv.ParseFloat(fl.Field().String(), 64)
		return err == nil && v >= 0
	})

	// Party size between 1 and MaxPartySize
	validate.RegisterValidation("party_size", func(fl validator.FieldLevel) bool {
		v, err := strconv.Atoi(fl.Field().String())
		return err == nil && v >= 1 && v <= MaxPartySize
	})
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_": err.Error()}
	}

	errors := make(map[string]string)
	for _, err := range validationErrors {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "min":
			errors[field] = "Value is too short (min: " + err.Param() + ")"
		case "max":
			errors[field] = "Value is too long (max: " + err.Param() + ")"
		case "gte":
			errors[field] = "Value must be at least " + err.Param()
		case "lte":
			errors[field] = "Value must be at most " + err.Param()
		case "oneof":
			errors[field] = "Value must be one of: " + err.Param()
		case "iso_date":
			errors[field] = "Invalid date. Must be YYYY-MM-DD"
		case "price":
			errors[field] = "Invalid price. Must be a non-negative number"
		case "party_size":
			errors[field] = "Invalid party size. Must be between 1 and " + strconv.Itoa(MaxPartySize)
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}
