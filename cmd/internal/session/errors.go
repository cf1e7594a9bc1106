package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionMissing is returned when no session id was supplied.
	ErrSessionMissing = errors.New("session id missing")

	// ErrSessionExpired is returned when the session is unknown or past its expiry.
	ErrSessionExpired = errors.New("session expired")

	// ErrAuthentication is the sentinel behind every AuthError.
	ErrAuthentication = errors.New("authentication failed")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid session config")
)

// Authentication failure codes.
const (
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeIPBlocked          = "AUTH_IP_BLOCKED"
)

var authMessages = map[string]string{
	CodeInvalidCredentials: "아이디 또는 비밀번호가 올바르지 않습니다",
	CodeIPBlocked:          "IP가 차단되었습니다",
}

// AuthError is a classified provider login rejection.
type AuthError struct {
	Code    string
	Message string
	Details map[string]any
}

func newAuthError(code string, details map[string]any) *AuthError {
	if details == nil {
		details = map[string]any{}
	}
	return &AuthError{Code: code, Message: authMessages[code], Details: details}
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AuthError) Unwrap() error { return ErrAuthentication }
