package util

import "errors"

// ErrorKind 对外暴露的错误分类
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindForbidden
	KindConflict
	KindBadRequest
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindBadRequest:
		return "bad_request"
	}
	return "internal"
}

// AppError 带分类的业务错误
type AppError struct {
	Kind    ErrorKind
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

func newError(kind ErrorKind, msg string) *AppError {
	return &AppError{Kind: kind, Message: msg}
}

var (
	ErrPermissionDenied = newError(KindForbidden, "permission denied")

	ErrExamNotFound     = newError(KindNotFound, "exam not found")
	ErrAttemptNotFound  = newError(KindNotFound, "attempt not found")
	ErrQuestionNotFound = newError(KindNotFound, "question not found in exam")

	ErrExamNotYetOpen         = newError(KindForbidden, "exam not yet open")
	ErrExamClosed             = newError(KindForbidden, "exam no longer available")
	ErrExamNotAccessible      = newError(KindForbidden, "exam not accessible")
	ErrPracticeNotAllowed     = newError(KindForbidden, "practice not enabled for this exam")
	ErrNotAttemptOwner        = newError(KindForbidden, "attempt belongs to another taker")
	ErrParticipantExamInvalid = newError(KindForbidden, "participant not registered for this exam")

	ErrAttemptAlreadyExists    = newError(KindConflict, "attempt already finished for this exam")
	ErrQuestionAlreadyAnswered = newError(KindConflict, "question already answered")

	// 令牌只在首次登记时返回
	ErrParticipantAlreadyRegistered = newError(KindConflict, "phone number already registered for this exam")

	ErrAttemptNotInProgress  = newError(KindBadRequest, "attempt is not in progress")
	ErrAttemptNotFinished    = newError(KindBadRequest, "attempt has not been submitted yet")
	ErrAttemptTimeUp         = newError(KindBadRequest, "attempt time is up and it has been submitted")
	ErrInvalidOptionLabel    = newError(KindBadRequest, "invalid option label")
	ErrInvalidSubmissionType = newError(KindBadRequest, "invalid submission type")
	ErrInvalidTimeSpent      = newError(KindBadRequest, "timeSpent must not be negative")
	ErrAbandonNotAllowed     = newError(KindBadRequest, "abandon is only available for practice attempts")
	ErrInvalidParticipant    = newError(KindBadRequest, "name and phone are required")
	ErrExamHasNoQuestions    = newError(KindBadRequest, "exam has no questions")
)

// KindOf 解析错误链上的分类，未知错误一律视为内部错误
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindInternal
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind 判断错误是否属于指定分类
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
