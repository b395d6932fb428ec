package validator

import "github.com/go-playground/validator/v10"

func registerFn(tag string, fn func(fl validator.FieldLevel) bool) func(v *validator.Validate) {
	return func(v *validator.Validate) {
		_ = v.RegisterValidation(tag, fn)
	}
}

func NewPosterValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("theme_id", themeIDValidator),
		},
		{
			Rule: registerFn("not_blank", notBlankValidator),
		},
		{
			Rule: registerFn("size_preset", sizePresetValidator),
		},
	}
}

func NewPaymentValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("hex_bytes", hexBytesValidator),
		},
		{
			Rule: registerFn("uint_string", uintStringValidator),
		},
	}
}
