package request

import (
	"net/http"
	"strconv"

	"github.com/edvin/panel/internal/core"
)

// Int reads an integer query parameter. An absent parameter yields def.
func Int(r *http.Request, key string, def int) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, core.Errorf(core.InvalidInput, "%s must be a non-negative integer", key)
	}
	return n, nil
}

// Bool reads a boolean query parameter, false when absent.
func Bool(r *http.Request, key string) (bool, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, core.Errorf(core.InvalidInput, "%s must be true or false", key)
	}
	return b, nil
}
