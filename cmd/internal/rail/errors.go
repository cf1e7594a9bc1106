package rail

import (
	"errors"
	"fmt"
	"strings"
)

// ErrReauthRequired reports that the provider login behind a Client is no
// longer valid. Callers re-login once and retry the same operation.
var ErrReauthRequired = errors.New("rail: re-authentication required")

// Code is a stable provider error code.
type Code string

const (
	CodeSearchNoResults      Code = "TRAIN_SEARCH_NO_RESULTS"
	CodeSearchInvalidStation Code = "TRAIN_SEARCH_INVALID_STATION"
	CodeSearchInvalidDate    Code = "TRAIN_SEARCH_INVALID_DATE"
	CodeTrainNotFound        Code = "TRAIN_NOT_FOUND"

	CodeSoldOut       Code = "RESERVE_SOLD_OUT"
	CodeDuplicate     Code = "RESERVE_DUPLICATE"
	CodeLimitExceeded Code = "RESERVE_LIMIT_EXCEEDED"
	CodeReserveFailed Code = "RESERVE_FAILED"

	CodeStandbyNotAvailable Code = "STANDBY_NOT_AVAILABLE"
	CodeStandbyFailed       Code = "STANDBY_FAILED"

	CodeSessionExpired Code = "SESSION_EXPIRED"

	CodePaymentNotFound    Code = "PAYMENT_RESERVATION_NOT_FOUND"
	CodePaymentAlreadyPaid Code = "PAYMENT_ALREADY_PAID"
	CodePaymentFailed      Code = "PAYMENT_FAILED"
	CodePaymentCard        Code = "PAYMENT_CARD_ERROR"
	CodePaymentPassword    Code = "PAYMENT_PASSWORD_ERROR"

	CodeCancelFailed Code = "CANCEL_FAILED"

	CodeNetfunnel Code = "NETFUNNEL_ERROR"
	CodeUpstream  Code = "UPSTREAM_ERROR"
)

var messages = map[Code]string{
	CodeSearchNoResults:      "검색 결과가 없습니다",
	CodeSearchInvalidStation: "올바르지 않은 역 이름입니다",
	CodeSearchInvalidDate:    "올바르지 않은 날짜입니다",
	CodeTrainNotFound:        "열차를 찾을 수 없습니다. 다시 검색해주세요.",
	CodeSoldOut:              "매진되었습니다",
	CodeDuplicate:            "이미 예약된 열차입니다",
	CodeLimitExceeded:        "예약 한도를 초과했습니다",
	CodeReserveFailed:        "예약에 실패했습니다",
	CodeStandbyNotAvailable:  "해당 열차는 예약대기가 불가능합니다.",
	CodeStandbyFailed:        "예약대기 신청에 실패했습니다",
	CodeSessionExpired:       "세션이 만료되었습니다. 다시 로그인해주세요",
	CodePaymentNotFound:      "예약을 찾을 수 없습니다.",
	CodePaymentAlreadyPaid:   "이미 결제가 완료된 예약입니다.",
	CodePaymentFailed:        "결제 처리 중 오류가 발생했습니다.",
	CodePaymentCard:          "카드 정보 오류",
	CodePaymentPassword:      "카드 비밀번호가 올바르지 않습니다.",
	CodeCancelFailed:         "예약 취소에 실패했습니다",
	CodeNetfunnel:            "서버가 혼잡합니다. 잠시 후 다시 시도해주세요",
	CodeUpstream:             "철도 서비스와 통신할 수 없습니다",
}

// Message returns the user-facing message for a code, or the code itself.
func Message(c Code) string {
	if m, ok := messages[c]; ok {
		return m
	}
	return string(c)
}

// Retryable reports whether a job should keep polling after an error with code c.
func Retryable(c Code) bool {
	switch c {
	case CodeSoldOut, CodeSearchNoResults, CodeStandbyNotAvailable:
		return true
	}
	return false
}

// Error is a classified provider failure.
type Error struct {
	Code      Code
	Message   string
	Detail    string
	Retryable bool
}

// NewError builds an Error, defaulting the message from the code table.
func NewError(code Code, msg, detail string) *Error {
	if msg == "" {
		msg = Message(code)
	}
	return &Error{
		Code:      code,
		Message:   msg,
		Detail:    detail,
		Retryable: Retryable(code),
	}
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
}

// Details returns the detail map used in API error envelopes.
func (e *Error) Details() map[string]any {
	if e.Detail == "" {
		return map[string]any{}
	}
	return map[string]any{"original_error": e.Detail}
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// ClassifySearch maps a raw provider search failure message to an Error.
func ClassifySearch(msg string) *Error {
	if strings.Contains(msg, "역") {
		return NewError(CodeSearchInvalidStation, "", "")
	}
	return NewError(CodeSearchNoResults, "", msg)
}

// ClassifyReserve maps a raw provider reservation failure message to an Error.
func ClassifyReserve(msg string) *Error {
	switch {
	case strings.Contains(msg, "매진") || strings.Contains(msg, "잔여석"):
		return NewError(CodeSoldOut, "", "")
	case strings.Contains(msg, "중복") || strings.Contains(msg, "이미"):
		return NewError(CodeDuplicate, "", "")
	case strings.Contains(msg, "한도") || strings.Contains(msg, "초과"):
		return NewError(CodeLimitExceeded, "", "")
	default:
		return NewError(CodeReserveFailed, "", msg)
	}
}

// ClassifyStandby maps a raw provider standby failure message to an Error.
func ClassifyStandby(msg string) *Error {
	switch {
	case strings.Contains(msg, "대기") && (strings.Contains(msg, "불가") || strings.Contains(msg, "없")):
		return NewError(CodeStandbyNotAvailable, "", "")
	case strings.Contains(msg, "중복") || strings.Contains(msg, "이미"):
		return NewError(CodeDuplicate, "", "")
	default:
		return NewError(CodeStandbyFailed, "예약대기 신청 실패: "+msg, "")
	}
}

// ClassifyPayment maps a raw provider payment failure message to an Error.
func ClassifyPayment(msg string) *Error {
	switch {
	case strings.Contains(msg, "카드"):
		return NewError(CodePaymentCard, "카드 정보 오류: "+msg, "")
	case strings.Contains(msg, "비밀번호"):
		return NewError(CodePaymentPassword, "", "")
	default:
		return NewError(CodePaymentFailed, "결제 실패: "+msg, "")
	}
}
