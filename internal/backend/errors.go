package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNoSession indicates an operation needs a signed-in user but there is none.
	ErrNoSession = errors.New("auth session missing")
	// ErrNotConfigured indicates the backend URL or API key was not provided.
	ErrNotConfigured = errors.New("backend is not configured")
)

// APIError is a failure reported by the auth or table API. Message is the
// human-readable text the backend supplied and is shown to users verbatim.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (status %d, code %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// Message returns the text to show a user for err: the backend's own message
// when there is one, the error string otherwise.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if errors.Is(err, ErrNoSession) {
		return "Auth session missing!"
	}
	return err.Error()
}

// errorBody covers the error shapes GoTrue and PostgREST produce.
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		apiErr.Code = eb.ErrorCode
		if apiErr.Code == "" {
			apiErr.Code = strings.Trim(string(eb.Code), `"`)
			if apiErr.Code == "null" {
				apiErr.Code = ""
			}
		}
		if apiErr.Code == "" {
			apiErr.Code = eb.Error
		}
		for _, m := range []string{eb.Msg, eb.Message, eb.ErrorDescription, eb.Error} {
			if m != "" {
				apiErr.Message = m
				break
			}
		}
	}

	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
