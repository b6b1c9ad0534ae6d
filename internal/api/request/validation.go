package request

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/edvin/panel/internal/core"
)

var validate = validator.New()

// Decode parses a JSON body into v and validates it. Failures carry the
// InvalidInput kind.
func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return core.Wrap(core.InvalidInput, err, "invalid JSON")
	}
	return Validate(v)
}

// DecodeOptional is Decode for endpoints whose body may be omitted.
func DecodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return Validate(v)
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return Validate(v)
	}
	if err != nil {
		return core.Wrap(core.InvalidInput, err, "invalid JSON")
	}
	return Validate(v)
}

func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return core.Wrap(core.InvalidInput, err, "validation error")
	}
	return nil
}

func RequireID(s string) (string, error) {
	if s == "" {
		return "", core.Errorf(core.InvalidInput, "missing required ID")
	}
	return s, nil
}
