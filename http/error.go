package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"

	"github.com/divanjapones/notifier"
)

type appHandler func(w http.ResponseWriter, r *http.Request) error

// Error parse HTTP error and write to header and body
func (s *Server) Error(fn appHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		var clientError ClientError
		if !errors.As(err, &clientError) {
			clientError = &Error{
				Cause:   err,
				Message: notifier.ErrorMessage(err),
				Status:  errorStatus(notifier.ErrorCode(err)),
			}
		}

		status, headers := clientError.Headers()
		logger := hlog.FromRequest(r)
		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).Msg("Request failed")
			sentry.CaptureException(err)
		} else {
			logger.Warn().Err(err).Int("status", status).Msg("Request rejected")
		}

		body, err := clientError.Body()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		for k, v := range headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}
}

var codes = map[string]int{
	notifier.ErrInvalid:      http.StatusBadRequest,
	notifier.ErrUnauthorized: http.StatusUnauthorized,
	notifier.ErrForbidden:    http.StatusForbidden,
	notifier.ErrNotFound:     http.StatusNotFound,
	notifier.ErrConflict:     http.StatusConflict,
	notifier.ErrInternal:     http.StatusInternalServerError,
}

func errorStatus(code string) int {
	if status, ok := codes[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ClientError is the interface that wraps methods related to error on the client side
type ClientError interface {
	Error() string
	Body() ([]byte, error)
	Headers() (int, map[string]string)
}

// Error represents a detail error message
type Error struct {
	Cause   error  `json:"-"`
	Message string `json:"error"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Body returns response body from error
func (e *Error) Body() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("Error while parsing response body: %v", err)
	}
	return body, nil
}

// Headers returns status and header
func (e *Error) Headers() (int, map[string]string) {
	return e.Status, map[string]string{
		"Content-Type": "application/json; charset=utf-8",
	}
}

// NewError returns new error message
func NewError(err error, status int, message string) error {
	return &Error{
		Cause:   err,
		Message: message,
		Status:  status,
	}
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	//nolint:errcheck
	json.NewEncoder(w).Encode(response)
}
