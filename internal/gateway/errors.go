package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FallbackMessage is used when a failed response carries no readable detail.
const FallbackMessage = "request failed"

// Failure is a non-2xx response from the backend.
type Failure struct {
	Message    string
	StatusCode int
	// Code is the machine readable error code when the backend sends one.
	Code string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s (status %d)", f.Message, f.StatusCode)
}

// TransportError means no HTTP response was received at all.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AsFailure extracts the *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsAuth reports whether err is a 401 that survived the refresh attempt.
func IsAuth(err error) bool {
	f, ok := AsFailure(err)
	return ok && f.StatusCode == http.StatusUnauthorized
}

// IsValidation reports whether err is a client error other than 401.
func IsValidation(err error) bool {
	f, ok := AsFailure(err)
	return ok && f.StatusCode >= 400 && f.StatusCode < 500 && f.StatusCode != http.StatusUnauthorized
}

// IsNotFound reports whether err is a 404.
func IsNotFound(err error) bool {
	f, ok := AsFailure(err)
	return ok && f.StatusCode == http.StatusNotFound
}

// IsTransport reports whether the request never got an HTTP response.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// errorBody covers the shapes the backend uses for errors:
//
//	{"detail": "Issue not found"}
//	{"detail": [{"loc": [...], "msg": "field required", "type": "..."}]}
//	{"detail": {"message": "...", "code": "..."}}
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
	Code   string          `json:"code"`
}

type validationItem struct {
	Msg string `json:"msg"`
}

type detailObject struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// parseFailure builds a Failure from a non-2xx response body.
func parseFailure(status int, body []byte) *Failure {
	f := &Failure{Message: FallbackMessage, StatusCode: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return f
	}
	f.Code = eb.Code
	if len(eb.Detail) == 0 {
		return f
	}

	var s string
	if err := json.Unmarshal(eb.Detail, &s); err == nil {
		if strings.TrimSpace(s) != "" {
			f.Message = s
		}
		return f
	}

	var items []validationItem
	if err := json.Unmarshal(eb.Detail, &items); err == nil {
		for _, it := range items {
			if it.Msg != "" {
				f.Message = it.Msg
				break
			}
		}
		return f
	}

	var obj detailObject
	if err := json.Unmarshal(eb.Detail, &obj); err == nil {
		if obj.Message != "" {
			f.Message = obj.Message
		}
		if obj.Code != "" {
			f.Code = obj.Code
		}
	}
	return f
}
