package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the app layer matches exactly one of these with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrExpired      = errors.New("expired")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrStorage      = errors.New("storage error")
)

// Error is a specific failure reason classified under a kind.
type Error struct {
	kind error
	msg  string
}

func newError(kind error, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Unwrap exposes the kind.
func (e *Error) Unwrap() error { return e.kind }

var (
	ErrUserNotFound    = newError(ErrNotFound, "user not found")
	ErrQuizNotFound    = newError(ErrNotFound, "quiz not found")
	ErrSessionNotFound = newError(ErrNotFound, "quiz session not found")
	// ErrAttemptNotFound also covers attempts owned by someone else.
	ErrAttemptNotFound = newError(ErrNotFound, "attempt not found or not accessible")

	ErrNotQuizOwner         = newError(ErrNotFound, "quiz not found for this teacher")
	ErrQuizNotAttemptable   = newError(ErrInvalidState, "quiz is not active")
	ErrQuizHasNoQuestions   = newError(ErrInvalidState, "quiz has no questions to score")
	ErrAttemptNotInProgress = newError(ErrInvalidState, "attempt is no longer in progress")
	ErrResultsUnavailable   = newError(ErrInvalidState, "attempt results are not available until it is submitted")

	ErrSessionExpired    = newError(ErrExpired, "quiz session has expired")
	ErrSessionNotStarted = newError(ErrExpired, "quiz session has not started yet")
	ErrAttemptExpired    = newError(ErrExpired, "quiz session has expired; this attempt is no longer valid")

	ErrAccessCodeInvalid   = newError(ErrValidation, "invalid access code")
	ErrAccessCodeFormat    = newError(ErrValidation, "malformed access code")
	ErrAccessCodeWrongQuiz = newError(ErrValidation, "access code does not match this quiz")
	ErrMissingQuiz         = newError(ErrValidation, "quiz reference is required")
	ErrInvalidDuration     = newError(ErrValidation, "session duration must be positive")
	ErrQuestionNotInQuiz   = newError(ErrValidation, "question does not belong to this quiz")
	ErrAnswerNotInQuestion = newError(ErrValidation, "answer does not belong to this question")
	ErrInvalidElapsedTime  = newError(ErrValidation, "elapsed time must not be negative")
	ErrMalformedRequest    = newError(ErrValidation, "malformed request body")

	ErrSessionAlreadyActive = newError(ErrConflict, "an active session already exists for this quiz")
	ErrAccessCodeTaken      = newError(ErrConflict, "access code already in use")
	ErrAttemptConflict      = newError(ErrConflict, "another attempt is already in progress")
)

type storageError struct {
	op    string
	cause error
}

func (e *storageError) Error() string { return fmt.Sprintf("%s: %v", e.op, e.cause) }

func (e *storageError) Unwrap() []error { return []error{ErrStorage, e.cause} }

// StorageError wraps a collaborator failure so that it matches ErrStorage and the cause.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &storageError{op: op, cause: err}
}
