package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
	"quiz-attempt-service/internal/metrics"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// flakySessions fails status updates while failures > 0 (or forever when negative).
type flakySessions struct {
	app.SessionRepository
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakySessions) UpdateSessionStatus(ctx context.Context, id string, from, to domain.SessionStatus) (bool, error) {
	f.mu.Lock()
	f.calls++
	fail := f.failures != 0
	if f.failures > 0 {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return false, domain.StorageError("update session status", context.DeadlineExceeded)
	}
	return f.SessionRepository.UpdateSessionStatus(ctx, id, from, to)
}

func (f *flakySessions) setFailures(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = n
}

// flakyAttempts fails attempt updates while failures != 0.
type flakyAttempts struct {
	app.AttemptRepository
	mu       sync.Mutex
	failures int
}

func (f *flakyAttempts) UpdateAttempt(ctx context.Context, attempt domain.QuizAttempt, expected domain.AttemptStatus) (bool, error) {
	f.mu.Lock()
	fail := f.failures != 0
	if f.failures > 0 {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return false, domain.StorageError("update attempt", context.DeadlineExceeded)
	}
	return f.AttemptRepository.UpdateAttempt(ctx, attempt, expected)
}

type env struct {
	clock    *fakeClock
	store    *memory.Store
	sessRepo *flakySessions
	attRepo  *flakyAttempts
	hub      *app.EventHub
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	sessions *app.SessionService
	attempts *app.AttemptService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		clock:    &fakeClock{now: t0},
		store:    memory.NewStore(),
		hub:      app.NewEventHub(),
		registry: prometheus.NewRegistry(),
	}
	e.metrics = metrics.New(e.registry)
	e.sessRepo = &flakySessions{SessionRepository: e.store}
	e.attRepo = &flakyAttempts{AttemptRepository: e.store}

	e.store.PutUser(domain.User{ID: "teacher-1", DisplayName: "Ms. T", Role: domain.RoleTeacher})
	e.store.PutUser(domain.User{ID: "teacher-2", DisplayName: "Mr. U", Role: domain.RoleTeacher})
	e.store.PutUser(domain.User{ID: "student-1", DisplayName: "Sam", Role: domain.RoleStudent})
	e.store.PutUser(domain.User{ID: "student-2", DisplayName: "Alex", Role: domain.RoleStudent})
	e.store.PutQuiz(twoQuestionQuiz("quiz-1"))
	e.store.PutQuiz(twoQuestionQuiz("quiz-2"))
	draft := twoQuestionQuiz("quiz-draft")
	draft.Status = domain.QuizDraft
	e.store.PutQuiz(draft)
	e.store.PutQuiz(domain.Quiz{ID: "quiz-empty", Title: "Empty", Status: domain.QuizActive, OwnerID: "teacher-1"})

	opts := app.Options{
		Clock:   e.clock.Now,
		Metrics: e.metrics,
		Events:  e.hub,
		Retry:   app.RetryPolicy{MaxRetries: 2, InitialInterval: time.Millisecond},
	}
	quizzes := memory.NewQuizCache(e.store, 0)
	e.sessions = app.NewSessionService(e.store, quizzes, e.sessRepo, opts)
	e.attempts = app.NewAttemptService(e.store, quizzes, e.attRepo, e.store, e.sessions, opts)
	return e
}

func twoQuestionQuiz(id string) domain.Quiz {
	return domain.Quiz{
		ID:      id,
		Title:   "Quiz " + id,
		Status:  domain.QuizActive,
		OwnerID: "teacher-1",
		Questions: []domain.Question{
			{ID: id + "-q1", Text: "2 + 2?", Type: "MULTIPLE_CHOICE", Answers: []domain.Answer{
				{ID: id + "-q1-a", Text: "4", IsCorrect: true},
				{ID: id + "-q1-b", Text: "5"},
			}},
			{ID: id + "-q2", Text: "3 * 3?", Type: "MULTIPLE_CHOICE", Answers: []domain.Answer{
				{ID: id + "-q2-a", Text: "6"},
				{ID: id + "-q2-b", Text: "9", IsCorrect: true},
			}},
		},
	}
}

func (e *env) createSession(t *testing.T, quizID, code string, minutes int) domain.QuizSession {
	t.Helper()
	session, err := e.sessions.CreateSession(context.Background(), "teacher-1", app.CreateSessionRequest{
		QuizID:          quizID,
		DurationMinutes: minutes,
		AccessCode:      code,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session
}

func (e *env) start(t *testing.T, studentID, quizID, code string) domain.QuizAttempt {
	t.Helper()
	attempt, err := e.attempts.StartAttempt(context.Background(), studentID, quizID, code)
	if err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	return attempt
}

func (e *env) answer(t *testing.T, attempt domain.QuizAttempt, questionID, answerID string) {
	t.Helper()
	_, err := e.attempts.SubmitAnswer(context.Background(), attempt.ID, attempt.StudentID, app.AnswerSubmission{
		QuestionID: questionID,
		AnswerID:   answerID,
	})
	if err != nil {
		t.Fatalf("submit answer: %v", err)
	}
}

func (e *env) storedSession(t *testing.T, id string) domain.QuizSession {
	t.Helper()
	session, err := e.store.GetSession(context.Background(), id)
	if err != nil {
		t.Fatalf("get stored session: %v", err)
	}
	return session
}

func (e *env) storedAttempt(t *testing.T, attempt domain.QuizAttempt) domain.QuizAttempt {
	t.Helper()
	stored, err := e.store.GetAttempt(context.Background(), attempt.ID, attempt.StudentID)
	if err != nil {
		t.Fatalf("get stored attempt: %v", err)
	}
	return stored
}
