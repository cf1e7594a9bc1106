package job

import "errors"

var (
	// ErrNotFound is returned for unknown jobs and jobs owned by another session.
	ErrNotFound = errors.New("job not found")

	// ErrNotCancellable is returned when a job has already reached a terminal status.
	ErrNotCancellable = errors.New("job cannot be cancelled")

	// ErrEngineClosed is returned by Create after Close.
	ErrEngineClosed = errors.New("job engine closed")
)

// Korean messages shown to users.
const (
	msgReloginFailed = "세션이 만료되어 재로그인에 실패했습니다."
)
