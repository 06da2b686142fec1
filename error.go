package notifier

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

const (
	ErrInvalid      = "invalid"
	ErrUnauthorized = "unauthorized"
	ErrForbidden    = "forbidden"
	ErrNotFound     = "not_found"
	ErrConflict     = "conflict"
	ErrInternal     = "internal"
)

// ErrFlushInProgress is returned when another flush holds the lock.
var ErrFlushInProgress = &Error{
	Code:    ErrConflict,
	Message: "A notification flush is already in progress.",
}

// ErrNoDatabase is returned by operations that need the content store when none is configured.
var ErrNoDatabase = &Error{
	Code:    ErrInternal,
	Message: "Database connection is not initialized",
}

type Error struct {
	Code    string
	Message string
	Op      string
	Err     error
}

func ErrorCode(err error) string {
	var e *Error
	if err == nil {
		return ""
	} else if !errors.As(err, &e) {
		return ErrInternal
	} else if e.Code != "" {
		return e.Code
	} else if e.Err != nil {
		return ErrorCode(e.Err)
	}

	return ErrInternal
}

func ErrorMessage(err error) string {
	var e *Error
	if err == nil {
		return ""
	} else if !errors.As(err, &e) {
		return err.Error()
	} else if e.Message != "" {
		return e.Message
	} else if e.Err != nil {
		return ErrorMessage(e.Err)
	}

	return "An internal error has occurred."
}

func (e *Error) Error() string {
	var buf bytes.Buffer

	if e.Op != "" {
		fmt.Fprintf(&buf, "%s: ", e.Op)
	}

	if e.Err != nil {
		buf.WriteString(e.Err.Error())
	} else {
		if e.Code != "" {
			fmt.Fprintf(&buf, "<%s> ", e.Code)
		}
		buf.WriteString(e.Message)
	}

	return buf.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// EmailConfigError reports transport settings that must be present before sending.
type EmailConfigError struct {
	Provider string
	Missing  []string
}

func (e *EmailConfigError) Error() string {
	return fmt.Sprintf("%s configuration is incomplete, missing: %s", e.Provider, strings.Join(e.Missing, ", "))
}

// EmailDeliveryError is returned when the provider rejected or failed a send.
type EmailDeliveryError struct {
	Provider string
	Status   int
	Message  string
	Err      error
}

func (e *EmailDeliveryError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s delivery failed (%d): %s", e.Provider, e.Status, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s delivery failed: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s delivery failed: %s", e.Provider, e.Message)
}

func (e *EmailDeliveryError) Unwrap() error {
	return e.Err
}
