// Package validate provides struct validation backed by the go-playground
// validator with human readable error translation.
package validate

import (
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entrans "github.com/go-playground/validator/v10/translations/en"
)

// validate holds the settings and caches for validating struct values.
var validate *validator.Validate

// translator is a cache of locale and translation information.
var translator ut.Translator

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	translator, _ = ut.New(en.New(), en.New()).GetTranslator("en")
	_ = entrans.RegisterDefaultTranslations(validate, translator)
}

// Check validates the provided value against its declared struct tags.
// Validation failures are returned as FieldErrors with translated messages.
func Check(val any) error {
	if err := validate.Struct(val); err != nil {
		verrors, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}

		var fields FieldErrors
		for _, verror := range verrors {
			fields = append(fields, FieldError{
				Field: verror.Field(),
				Err:   verror.Translate(translator),
			})
		}
		return fields
	}
	return nil
}
