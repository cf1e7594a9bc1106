package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bbang93/macro-api/cmd/internal/job"
	"github.com/bbang93/macro-api/cmd/internal/rail"
	"github.com/bbang93/macro-api/cmd/internal/session"
)

// Error codes owned by the boundary. Provider and auth codes come from
// the rail and session packages.
const (
	codeValidation     = "VALIDATION_ERROR"
	codeSessionMissing = "SESSION_MISSING"
	codeSessionExpired = "SESSION_EXPIRED"
	codeJobNotFound    = "JOB_NOT_FOUND"
	codeJobCompleted   = "JOB_ALREADY_COMPLETED"
	codeRateLimited    = "RATE_LIMITED"
	codeUnavailable    = "SERVICE_UNAVAILABLE"
	codeInternal       = "INTERNAL_ERROR"
)

var boundaryMessages = map[string]string{
	codeValidation:     "요청 값이 올바르지 않습니다",
	codeSessionMissing: "세션 ID가 필요합니다",
	codeSessionExpired: "세션이 만료되었습니다. 다시 로그인해주세요",
	codeJobNotFound:    "작업을 찾을 수 없습니다",
	codeJobCompleted:   "이미 완료된 작업입니다",
	codeRateLimited:    "요청이 너무 많습니다. 잠시 후 다시 시도해주세요",
	codeUnavailable:    "서버가 종료 중입니다",
	codeInternal:       "내부 서버 오류가 발생했습니다",
}

// ValidationError is a malformed request detected at the boundary.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// writeErr maps a domain error to its status and envelope.
func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *ValidationError
		ae *session.AuthError
	)
	if re, ok := rail.AsError(err); ok {
		status := http.StatusBadRequest
		if re.Code == rail.CodeSessionExpired {
			status = http.StatusUnauthorized
		}
		writeError(w, status, string(re.Code), re.Message, re.Details())
		return
	}

	switch {
	case errors.As(err, &ve):
		details := map[string]any{}
		if ve.Field != "" {
			details["field"] = ve.Field
		}
		writeError(w, http.StatusUnprocessableEntity, codeValidation, ve.Message, details)
	case errors.As(err, &ae):
		writeError(w, http.StatusUnauthorized, ae.Code, ae.Message, ae.Details)
	case errors.Is(err, session.ErrSessionMissing):
		writeCode(w, http.StatusUnauthorized, codeSessionMissing)
	case errors.Is(err, session.ErrSessionExpired), errors.Is(err, rail.ErrReauthRequired):
		writeCode(w, http.StatusUnauthorized, codeSessionExpired)
	case errors.Is(err, rail.ErrUnknownKind):
		writeError(w, http.StatusUnprocessableEntity, codeValidation, err.Error(), map[string]any{"field": "rail_type"})
	case errors.Is(err, job.ErrNotFound):
		writeCode(w, http.StatusNotFound, codeJobNotFound)
	case errors.Is(err, job.ErrNotCancellable):
		writeCode(w, http.StatusBadRequest, codeJobCompleted)
	case errors.Is(err, job.ErrEngineClosed):
		writeCode(w, http.StatusServiceUnavailable, codeUnavailable)
	default:
		h.log.Error("api.request.fail", "method", r.Method, "path", r.URL.Path, "err", err)
		writeCode(w, http.StatusInternalServerError, codeInternal)
	}
}

func writeCode(w http.ResponseWriter, status int, code string) {
	writeError(w, status, code, boundaryMessages[code], nil)
}
