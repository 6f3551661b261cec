package validator

import (
	"math"
	"reflect"
	"sync"

	"github.com/NethermindEth/demandflow/stream"
	"github.com/go-playground/validator/v10"
)

var (
	once sync.Once
	v    *validator.Validate
)

// Custom validation function for demand fields that must not be unlimited.
// It sees the number produced by the Demand custom type func.
func validateBounded(fl validator.FieldLevel) bool {
	field := fl.Field()
	return field.Kind() == reflect.Uint64 && field.Uint() != math.MaxUint64
}

// Validator returns a singleton that can be used to validate configuration structs
func Validator() *validator.Validate {
	once.Do(func() {
		v = validator.New()

		if err := v.RegisterValidation("bounded", validateBounded); err != nil {
			panic("failed to register validation: " + err.Error())
		}

		// Demand is compared as a count, with unlimited being the largest one
		v.RegisterCustomTypeFunc(func(field reflect.Value) any {
			if d, ok := field.Interface().(stream.Demand); ok {
				if n, ok := d.Count(); ok {
					return n
				}
				return uint64(math.MaxUint64)
			}
			panic("not a stream.Demand")
		}, stream.Demand{})
	})
	return v
}
