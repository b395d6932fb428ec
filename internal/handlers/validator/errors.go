package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type ErrInvalidRequest struct {
	error
}

func NewErrInvalidRequest(format string, args ...any) *ErrInvalidRequest {
	return &ErrInvalidRequest{fmt.Errorf(format, args...)}
}

// Describe turns validation errors into a single readable message naming every failing field.
// Other errors are returned unchanged.
func Describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		switch fe.Tag() {
		case "required", "not_blank":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "size_preset":
			msgs = append(msgs, fmt.Sprintf("%s must be one of %s", field, strings.Join(sizePresets, ", ")))
		case "min", "max", "gte", "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be %s %s", field, boundWord(fe.Tag()), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return NewErrInvalidRequest("%s", strings.Join(msgs, "; "))
}

func boundWord(tag string) string {
	switch tag {
	case "min", "gte":
		return "at least"
	default:
		return "at most"
	}
}
