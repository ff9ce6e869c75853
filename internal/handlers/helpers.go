// Package handlers contains the HTTP handlers behind the admin API. Every
// handler writes JSON; errors are rendered through the apperr taxonomy so
// the status code always matches the error kind.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/trutina/internal/apperr"
)

// RequireMethod validates that the request uses the given method. Returns
// false after writing the error response when it does not.
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		WriteDetail(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// errorBody is the wire form of every error response.
type errorBody struct {
	Detail string `json:"detail"`
	Info   string `json:"info,omitempty"`
}

// WriteError maps the error through the taxonomy: a tagged error renders
// its kind's status code and detail, anything else is a bare 500.
func WriteError(w http.ResponseWriter, err error) {
	if tagged, ok := apperr.As(err); ok {
		WriteJSON(w, tagged.HTTPStatus(), errorBody{Detail: tagged.Detail, Info: tagged.Info})
		return
	}
	WriteJSON(w, http.StatusInternalServerError, errorBody{Detail: err.Error()})
}

// WriteDetail writes an error envelope with an explicit status code.
func WriteDetail(w http.ResponseWriter, statusCode int, detail string) {
	WriteJSON(w, statusCode, errorBody{Detail: detail})
}

// DecodeJSON decodes the request body into out, rejecting unparseable
// payloads as Validation errors.
func DecodeJSON(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		WriteError(w, apperr.Validation("invalid JSON body: %v", err))
		return false
	}
	return true
}

// decodeBytes unmarshals an already-read body.
func decodeBytes(data []byte, out interface{}) error {
	return json.Unmarshal(data, out)
}

// PathSegment returns the path element after prefix, with anything beyond
// the next slash stripped. Empty when the path is the prefix itself.
func PathSegment(r *http.Request, prefix string) string {
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	rest = strings.Trim(rest, "/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// PathID parses the path element after prefix as an int64 id.
func PathID(r *http.Request, prefix string) (int64, error) {
	segment := PathSegment(r, prefix)
	if segment == "" {
		return 0, apperr.Validation("missing id in path")
	}
	id, err := strconv.ParseInt(segment, 10, 64)
	if err != nil {
		return 0, apperr.Validation("invalid id %q", segment)
	}
	return id, nil
}

// QueryInt reads an integer query parameter, falling back when absent or
// malformed.
func QueryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// QueryFloat reads a float query parameter, falling back when absent or
// malformed.
func QueryFloat(r *http.Request, name string, fallback float64) float64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}
