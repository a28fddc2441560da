package postgrest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/goliatone/go-recipe-query/cache"
	"github.com/goliatone/go-recipe-query/recipe"
)

// Error codes the client maps onto domain errors.
const (
	CodeNoRows             = "PGRST116"
	CodeUniqueViolation    = "23505"
	CodeForeignKeyMissing  = "23503"
	CodeUserAlreadyExists  = "user_already_exists"
	CodeInvalidCredentials = "invalid_credentials"
	CodeInvalidGrant       = "invalid_grant"
)

// APIError is an error response from PostgREST or GoTrue.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details string
	Hint    string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("postgrest: status %d", e.Status)
	if e.Code != "" {
		msg += " code " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Retryable reports whether the request may succeed if sent again.
func (e *APIError) Retryable() bool {
	return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
}

// errorBody covers both the PostgREST and GoTrue error shapes. GoTrue sends
// a numeric code alongside error_code, PostgREST a string code.
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Message          string          `json:"message"`
	Msg              string          `json:"msg"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Details          string          `json:"details"`
	Hint             string          `json:"hint"`
}

func decodeError(status int, data []byte) *APIError {
	e := &APIError{Status: status}

	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		e.Message = string(data)
		return e
	}

	// numeric GoTrue codes fail to decode and are ignored
	var code string
	_ = json.Unmarshal(body.Code, &code)
	e.Code = firstNonEmpty(body.ErrorCode, code, body.Error)
	e.Message = firstNonEmpty(body.Message, body.Msg, body.ErrorDescription, body.Error)
	e.Details = body.Details
	e.Hint = body.Hint
	return e
}

// classify maps an error from do onto the errors the query layer acts on.
// Client errors are marked permanent so they are not retried.
func classify(err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	switch apiErr.Code {
	case CodeNoRows, CodeForeignKeyMissing:
		return cache.Permanent(fmt.Errorf("%w: %w", recipe.ErrNotFound, apiErr))
	case CodeUniqueViolation:
		return cache.Permanent(fmt.Errorf("%w: %w", recipe.ErrAlreadySaved, apiErr))
	}
	if apiErr.Retryable() {
		return err
	}
	return cache.Permanent(err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
