package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/metrics"
)

// UserRepository resolves authenticated callers.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// SessionRepository persists quiz sessions. Status changes go through UpdateSessionStatus,
// which only applies when the stored status still equals from.
type SessionRepository interface {
	CreateSession(ctx context.Context, session domain.QuizSession) error
	GetSession(ctx context.Context, sessionID string) (domain.QuizSession, error)
	GetSessionByAccessCode(ctx context.Context, code string) (domain.QuizSession, error)
	FindActiveSession(ctx context.Context, quizID string) (domain.QuizSession, error)
	AccessCodeExists(ctx context.Context, code string) (bool, error)
	ListActiveSessions(ctx context.Context) ([]domain.QuizSession, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, from, to domain.SessionStatus) (bool, error)
}

// AttemptRepository persists attempts. GetAttempt is scoped to the owning student.
// UpdateAttempt writes the attempt only if the stored status still equals expected.
type AttemptRepository interface {
	CreateAttempt(ctx context.Context, attempt domain.QuizAttempt) error
	GetAttempt(ctx context.Context, attemptID, studentID string) (domain.QuizAttempt, error)
	FindInProgress(ctx context.Context, studentID, quizID string) (domain.QuizAttempt, error)
	ListInProgressAttempts(ctx context.Context) ([]domain.QuizAttempt, error)
	ListStudentAttempts(ctx context.Context, studentID string, statuses ...domain.AttemptStatus) ([]domain.QuizAttempt, error)
	UpdateAttempt(ctx context.Context, attempt domain.QuizAttempt, expected domain.AttemptStatus) (bool, error)
}

// ResponseRepository stores at most one response per (attempt, question).
// UpsertResponse returns the stored row, which keeps its original id on overwrite.
type ResponseRepository interface {
	UpsertResponse(ctx context.Context, response domain.UserResponse) (domain.UserResponse, error)
	ListResponses(ctx context.Context, attemptID string) ([]domain.UserResponse, error)
}

// Publisher receives lifecycle events.
type Publisher interface {
	Publish(event domain.Event)
}

// Clock supplies the current instant.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time { return time.Now().UTC() }

// Options carries the collaborators shared by the lifecycle services. Zero values are replaced
// with working defaults.
type Options struct {
	Clock       Clock
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	Events      Publisher
	Retry       RetryPolicy
	AccessCodes func() string
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = SystemClock
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Events == nil {
		o.Events = discard{}
	}
	if o.AccessCodes == nil {
		o.AccessCodes = GenerateAccessCode
	}
	o.Retry = o.Retry.withDefaults()
	return o
}

type discard struct{}

func (discard) Publish(domain.Event) {}
