package session

import "strings"

// classifyLogin maps a provider login failure to an AuthError by message content.
// Anything unrecognized is reported as invalid credentials with the original text.
func classifyLogin(err error) *AuthError {
	msg := err.Error()

	switch {
	case strings.Contains(msg, "비밀번호") || strings.Contains(msg, "회원"):
		return newAuthError(CodeInvalidCredentials, nil)
	case strings.Contains(strings.ToUpper(msg), "IP") || strings.Contains(msg, "차단"):
		return newAuthError(CodeIPBlocked, nil)
	default:
		return newAuthError(CodeInvalidCredentials, map[string]any{"original_error": msg})
	}
}
