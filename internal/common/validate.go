package common

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	validator "github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared struct validator. Field names in errors follow
// the json tags.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// DecodeAndValidate reads a JSON body into dst and validates it. Failures are
// returned as 400 INVALID_INPUT AppErrors.
func DecodeAndValidate(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &AppError{Code: "PAYLOAD_TOO_LARGE", Message: "request body too large", HTTPStatus: http.StatusRequestEntityTooLarge, Err: err}
		}
		return InvalidInput("", "invalid payload", err)
	}
	return ValidateStruct(dst)
}

// ValidateStruct validates v and reports failing fields.
func ValidateStruct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return InvalidInput("", "invalid payload", err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Namespace()] = fe.Tag()
	}
	return &AppError{
		Code:       "INVALID_INPUT",
		Message:    "validation failed",
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details:    map[string]any{"fields": fields},
	}
}
