package validator

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	themeIDRegex  = regexp.MustCompile(`^[a-z0-9_-]+$`)
	hexBytesRegex = regexp.MustCompile(`^0x[0-9a-fA-F]+$`)
	uintRegex     = regexp.MustCompile(`^[0-9]+$`)

	sizePresets = []string{"neighborhood", "small", "city", "metro", "region", "auto"}
)

func themeIDValidator(fl validator.FieldLevel) bool {
	val, ok := stringField(fl)
	if !ok {
		return false
	}

	return themeIDRegex.MatchString(val)
}

// notBlankValidator rejects strings made only of whitespace.
func notBlankValidator(fl validator.FieldLevel) bool {
	val, ok := stringField(fl)
	if !ok {
		return false
	}
	return strings.TrimSpace(val) != ""
}

func sizePresetValidator(fl validator.FieldLevel) bool {
	val, ok := stringField(fl)
	if !ok {
		return false
	}
	for _, s := range sizePresets {
		if val == s {
			return true
		}
	}
	return false
}

// hexBytesValidator accepts 0x prefixed hex strings. The param, when set, is the byte length.
func hexBytesValidator(fl validator.FieldLevel) bool {
	val, ok := stringField(fl)
	if !ok {
		return false
	}
	if !hexBytesRegex.MatchString(val) {
		return false
	}

	switch fl.Param() {
	case "":
		return true
	case "32":
		return len(val) == 2+64
	case "65":
		return len(val) == 2+130
	default:
		return false
	}
}

// uintStringValidator accepts decimal integers encoded as strings, as x402 sends token amounts.
func uintStringValidator(fl validator.FieldLevel) bool {
	val, ok := stringField(fl)
	if !ok {
		return false
	}
	return uintRegex.MatchString(val)
}

// stringField also accepts named string types.
func stringField(fl validator.FieldLevel) (string, bool) {
	if fl.Field().Kind() != reflect.String {
		return "", false
	}
	return fl.Field().String(), true
}
