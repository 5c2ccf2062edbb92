// Package trweb holds the HTTP error type the dashboard's handlers return and
// helpers for reading request input.
package trweb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tailscale/hujson"
)

type HTTPError struct {
	Source  string `json:"source,omitempty"`
	Status  int    `json:"status"`
	Code    string `json:"code"` // (e.g. "invalid_request")
	Message string `json:"message"`
}

var (
	NotFound         = &HTTPError{Status: 404, Code: "not_found", Message: "Not Found"}
	Unauthorized     = &HTTPError{Status: 401, Code: "unauthorized", Message: "Unauthorized"}
	InternalError    = &HTTPError{Status: 500, Code: "internal_error", Message: "Internal Server Error"}
	MethodNotAllowed = &HTTPError{Status: 405, Code: "method_not_allowed", Message: "Method Not Allowed"}
	InvalidRequest   = &HTTPError{Status: 400, Code: "invalid_request", Message: "Invalid Request"}
)

// Invalid returns an InvalidRequest error carrying message.
func Invalid(message string) error {
	e := *InvalidRequest
	e.Message = message
	return &e
}

// WriteError encodes err to w, setting the approriate headers, if the underlying
// type of err is an HTTPError and returns true; otherwise it does nothing and
// returns false.
func WriteError(w http.ResponseWriter, err error) bool {
	var he *HTTPError
	if errors.As(err, &he) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(he.Status)
		e := json.NewEncoder(w)
		e.SetIndent("", "    ")
		_ = e.Encode(he)
		return true
	}
	return false
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("httpError{status:%d code:%q message:%q}",
		e.Status, e.Code, e.Message)
}

// DecodeStrict decodes the request body as HuJSON and rejects unknown
// fields. Malformed input is reported as an InvalidRequest HTTPError.
func DecodeStrict(r *http.Request, v any) error {
	d, err := hujsonDecoder(r)
	if err != nil {
		return err
	}
	d.DisallowUnknownFields()
	return jsonErr(d.Decode(v))
}

func hujsonDecoder(r *http.Request) (*json.Decoder, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return json.NewDecoder(bytes.NewReader(nil)), nil
	}
	data, err = hujson.Standardize(data)
	if err != nil {
		return nil, Invalid("invalid json syntax")
	}
	return json.NewDecoder(bytes.NewReader(data)), nil
}

// IsJSON reports whether r carries a JSON body.
func IsJSON(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/json")
}

// FormValue returns the named form field of r, or an invalid_request error
// naming the field if it is missing or blank.
func FormValue(r *http.Request, key string) (string, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return "", Invalid(fmt.Sprintf("missing %q", key))
	}
	return v, nil
}

// Method reports MethodNotAllowed unless r uses one of methods.
func Method(r *http.Request, methods ...string) error {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowed
}

func jsonErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, io.EOF) {
		return nil
	}
	switch err.(type) {
	case *json.SyntaxError:
		return Invalid("invalid json syntax")
	default:
		if msg := err.Error(); strings.HasPrefix(msg, "json: unknown field ") {
			msg = strings.TrimPrefix(msg, "json: ")
			return Invalid(msg)
		}
		return err
	}
}
