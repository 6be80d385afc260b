package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dmitrijs2005/authgate/internal/common"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// errPayloadTooLarge maps to 413.
var errPayloadTooLarge = errors.New("payload too large")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var fieldMessages = map[string]string{
	"required": "field '%s' is required",
	"email":    "field '%s' must be a valid email address",
	"min":      "field '%s' must be at least %s characters long",
	"max":      "field '%s' must be no longer than %s characters",
	"gt":       "field '%s' must be greater than %s",
	"gte":      "field '%s' must be greater than or equal to %s",
	"oneof":    "field '%s' must be one of [%s]",
}

func fieldMessage(e validator.FieldError) string {
	msg, ok := fieldMessages[e.Tag()]
	if !ok {
		return fmt.Sprintf("field '%s' is invalid", e.Field())
	}
	if strings.Count(msg, "%s") == 2 {
		return fmt.Sprintf(msg, e.Field(), e.Param())
	}
	return fmt.Sprintf(msg, e.Field())
}

// validateStruct returns nil or an error wrapping common.ErrorMalformed that
// names the first failing field.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Errorf("%w: %s", common.ErrorMalformed, fieldMessage(verrs[0]))
	}
	return fmt.Errorf("%w: %v", common.ErrorMalformed, err)
}

// decodeJSON reads a bounded JSON body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return errPayloadTooLarge
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: empty body", common.ErrorMalformed)
		default:
			return fmt.Errorf("%w: invalid json", common.ErrorMalformed)
		}
	}
	return validateStruct(dst)
}
