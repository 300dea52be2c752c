package config

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes configuration errors.
type ErrorCode string

const (
	// ErrCodeMissingKey indicates a required credential is not set.
	ErrCodeMissingKey ErrorCode = "MISSING_KEY"

	// ErrCodeUnknownDeployment indicates the credential set matches neither
	// the public cloud nor the private platform field set.
	ErrCodeUnknownDeployment ErrorCode = "UNKNOWN_DEPLOYMENT"

	// ErrCodeInvalidValue indicates a tunable could not be parsed.
	ErrCodeInvalidValue ErrorCode = "INVALID_VALUE"

	// ErrCodeLoad indicates a settings file could not be read or decoded.
	ErrCodeLoad ErrorCode = "LOAD_FAILED"
)

// Error is returned when credentials or settings are unusable.
// It is raised at construction time, before any network traffic.
type Error struct {
	Code    ErrorCode
	Key     string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Key != "" {
		msg = fmt.Sprintf("%s (key=%s)", msg, e.Key)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsMissingKey reports whether err is a missing-credential error.
func IsMissingKey(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeMissingKey
	}
	return false
}

// IsUnknownDeployment reports whether err means the deployment type could
// not be derived from the credential set.
func IsUnknownDeployment(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == ErrCodeUnknownDeployment
	}
	return false
}

func missingKey(key string) *Error {
	return &Error{Code: ErrCodeMissingKey, Key: key, Message: "required credential is not set"}
}
