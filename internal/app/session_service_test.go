package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
	"quiz-attempt-service/internal/metrics"
)

func TestCreateSessionDefaults(t *testing.T) {
	e := newEnv(t)
	session := e.createSession(t, "quiz-1", "", 0)

	if session.Status != domain.SessionActive {
		t.Fatalf("expected ACTIVE, got %s", session.Status)
	}
	if !session.StartTime.Equal(t0) || session.EndTime.Sub(session.StartTime) != 30*time.Minute {
		t.Fatalf("expected a 30 minute window from now, got %v - %v", session.StartTime, session.EndTime)
	}
	if len(session.AccessCode) != 6 {
		t.Fatalf("expected generated 6 character code, got %q", session.AccessCode)
	}
}

func TestCreateSessionPreconditions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		teacher string
		req     app.CreateSessionRequest
		want    error
	}{
		{"missing quiz", "teacher-1", app.CreateSessionRequest{}, domain.ErrMissingQuiz},
		{"negative duration", "teacher-1", app.CreateSessionRequest{QuizID: "quiz-1", DurationMinutes: -5}, domain.ErrInvalidDuration},
		{"bad code", "teacher-1", app.CreateSessionRequest{QuizID: "quiz-1", AccessCode: "a!"}, domain.ErrAccessCodeFormat},
		{"unknown teacher", "ghost", app.CreateSessionRequest{QuizID: "quiz-1"}, domain.ErrUserNotFound},
		{"unknown quiz", "teacher-1", app.CreateSessionRequest{QuizID: "nope"}, domain.ErrQuizNotFound},
		{"not owner", "teacher-2", app.CreateSessionRequest{QuizID: "quiz-1"}, domain.ErrNotQuizOwner},
		{"student", "student-1", app.CreateSessionRequest{QuizID: "quiz-1"}, domain.ErrNotQuizOwner},
		{"draft quiz", "teacher-1", app.CreateSessionRequest{QuizID: "quiz-draft"}, domain.ErrQuizNotAttemptable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.sessions.CreateSession(ctx, tc.teacher, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSessionConflictsWithLiveSession(t *testing.T) {
	e := newEnv(t)
	e.createSession(t, "quiz-1", "AB12CD", 30)

	_, err := e.sessions.CreateSession(context.Background(), "teacher-1", app.CreateSessionRequest{QuizID: "quiz-1"})
	if !errors.Is(err, domain.ErrSessionAlreadyActive) || !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected duplicate active session conflict, got %v", err)
	}
}

func TestCreateSessionHealsStaleActiveSession(t *testing.T) {
	e := newEnv(t)
	stale := e.createSession(t, "quiz-1", "AB12CD", 1)
	e.clock.Advance(2 * time.Minute)

	fresh := e.createSession(t, "quiz-1", "", 30)
	if fresh.ID == stale.ID {
		t.Fatalf("expected a new session")
	}
	if got := e.storedSession(t, stale.ID); got.Status != domain.SessionExpired {
		t.Fatalf("stale session should be EXPIRED, got %s", got.Status)
	}
	if got := counterValue(t, e, "quiz_sessions_expired_total", metrics.PathLazy); got != 1 {
		t.Fatalf("expected one lazy expiration, got %v", got)
	}
}

func TestCreateSessionRejectsTakenCodeEvenIfExpired(t *testing.T) {
	e := newEnv(t)
	e.createSession(t, "quiz-1", "AB12CD", 1)
	e.clock.Advance(2 * time.Minute)
	if _, err := e.sessions.SweepExpired(context.Background(), e.clock.Now()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	_, err := e.sessions.CreateSession(context.Background(), "teacher-1", app.CreateSessionRequest{QuizID: "quiz-2", AccessCode: "ab12cd"})
	if !errors.Is(err, domain.ErrAccessCodeTaken) {
		t.Fatalf("expected access code taken, got %v", err)
	}
}

func TestCreateSessionRetriesGeneratedCollisions(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(domain.User{ID: "teacher-1", Role: domain.RoleTeacher})
	store.PutQuiz(twoQuestionQuiz("quiz-1"))
	store.PutQuiz(twoQuestionQuiz("quiz-2"))

	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	next := 0
	opts := app.Options{
		Clock: func() time.Time { return t0 },
		AccessCodes: func() string {
			code := codes[next]
			next++
			return code
		},
	}
	sessions := app.NewSessionService(store, memory.NewQuizCache(store, 0), store, opts)

	first, err := sessions.CreateSession(context.Background(), "teacher-1", app.CreateSessionRequest{QuizID: "quiz-1"})
	if err != nil || first.AccessCode != "AAAAAA" {
		t.Fatalf("first session: %+v %v", first, err)
	}
	second, err := sessions.CreateSession(context.Background(), "teacher-1", app.CreateSessionRequest{QuizID: "quiz-2"})
	if err != nil || second.AccessCode != "BBBBBB" {
		t.Fatalf("expected collision to be retried, got %+v %v", second, err)
	}
}

func TestResolveByAccessCodeLazilyExpires(t *testing.T) {
	e := newEnv(t)
	session := e.createSession(t, "quiz-1", "AB12CD", 1)

	live, err := e.sessions.ResolveByAccessCode(context.Background(), "ab12cd")
	if err != nil || live.Status != domain.SessionActive {
		t.Fatalf("expected live session, got %+v %v", live, err)
	}

	e.clock.Advance(90 * time.Second)
	resolved, err := e.sessions.ResolveByAccessCode(context.Background(), "AB12CD")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != domain.SessionExpired {
		t.Fatalf("caller must never see an elapsed ACTIVE session, got %s", resolved.Status)
	}
	if got := e.storedSession(t, session.ID); got.Status != domain.SessionExpired {
		t.Fatalf("expiration should be persisted, got %s", got.Status)
	}

	if _, err := e.sessions.ResolveByAccessCode(context.Background(), "ZZZZZZ"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResolveSurvivesPersistFailure(t *testing.T) {
	e := newEnv(t)
	session := e.createSession(t, "quiz-1", "AB12CD", 1)
	e.clock.Advance(2 * time.Minute)
	e.sessRepo.setFailures(-1)

	resolved, err := e.sessions.ResolveByAccessCode(context.Background(), "AB12CD")
	if err != nil {
		t.Fatalf("lazy path must not fail the read: %v", err)
	}
	if resolved.Status != domain.SessionExpired {
		t.Fatalf("expected EXPIRED in memory, got %s", resolved.Status)
	}
	if got := e.storedSession(t, session.ID); got.Status != domain.SessionActive {
		t.Fatalf("store should still be ACTIVE until the next sweep, got %s", got.Status)
	}

	e.sessRepo.setFailures(0)
	count, err := e.sessions.SweepExpired(context.Background(), e.clock.Now())
	if err != nil || count != 1 {
		t.Fatalf("sweep should heal the record: count=%d err=%v", count, err)
	}
}

func TestIsAccessCodeValid(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.createSession(t, "quiz-1", "AB12CD", 1)

	for code, want := range map[string]bool{"AB12CD": true, "ab12cd": true, "ZZZZZZ": false, "!!": false} {
		got, err := e.sessions.IsAccessCodeValid(ctx, code)
		if err != nil || got != want {
			t.Fatalf("%q: expected %v, got %v (%v)", code, want, got, err)
		}
	}
	e.clock.Advance(2 * time.Minute)
	if valid, _ := e.sessions.IsAccessCodeValid(ctx, "AB12CD"); valid {
		t.Fatalf("elapsed session code must be invalid")
	}
}

func TestSweepExpiredIsIdempotent(t *testing.T) {
	e := newEnv(t)
	short := e.createSession(t, "quiz-1", "AAAA11", 1)
	long := e.createSession(t, "quiz-2", "BBBB22", 60)
	e.clock.Advance(5 * time.Minute)

	count, err := e.sessions.SweepExpired(context.Background(), e.clock.Now())
	if err != nil || count != 1 {
		t.Fatalf("first sweep: count=%d err=%v", count, err)
	}
	count, err = e.sessions.SweepExpired(context.Background(), e.clock.Now())
	if err != nil || count != 0 {
		t.Fatalf("second sweep must be a no-op: count=%d err=%v", count, err)
	}
	if got := e.storedSession(t, short.ID); got.Status != domain.SessionExpired {
		t.Fatalf("short session should be EXPIRED, got %s", got.Status)
	}
	if got := e.storedSession(t, long.ID); got.Status != domain.SessionActive {
		t.Fatalf("long session should stay ACTIVE, got %s", got.Status)
	}
}

func TestSweepExpiredRetriesStorageErrors(t *testing.T) {
	e := newEnv(t)
	e.createSession(t, "quiz-1", "AAAA11", 1)
	e.clock.Advance(2 * time.Minute)
	e.sessRepo.setFailures(2)

	count, err := e.sessions.SweepExpired(context.Background(), e.clock.Now())
	if err != nil || count != 1 {
		t.Fatalf("expected success within retry budget: count=%d err=%v", count, err)
	}
}

func TestSweepExpiredContinuesPastFailures(t *testing.T) {
	e := newEnv(t)
	e.createSession(t, "quiz-1", "AAAA11", 1)
	e.createSession(t, "quiz-2", "BBBB22", 1)
	e.clock.Advance(2 * time.Minute)
	// MaxRetries 2 means three tries for the first session, then the second succeeds.
	e.sessRepo.setFailures(3)

	count, err := e.sessions.SweepExpired(context.Background(), e.clock.Now())
	if count != 1 {
		t.Fatalf("expected the healthy record to be expired, got %d", count)
	}
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected joined storage error, got %v", err)
	}
}

func TestSessionSubscribeReceivesExpiry(t *testing.T) {
	e := newEnv(t)
	session := e.createSession(t, "quiz-1", "AB12CD", 1)

	snapshot, events, cancel, err := e.sessions.Subscribe(context.Background(), e.hub, session.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	if snapshot.ID != session.ID {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	e.clock.Advance(2 * time.Minute)
	if _, err := e.sessions.SweepExpired(context.Background(), e.clock.Now()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	select {
	case event := <-events:
		if event.Type != domain.EventSessionExpired {
			t.Fatalf("expected session_expired, got %s", event.Type)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event received")
	}
}

// counterValue reads a single-label counter from the env's registry.
func counterValue(t *testing.T, e *env, name, label string) float64 {
	t.Helper()
	families, err := e.registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, pair := range m.GetLabel() {
				if pair.GetValue() == label {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
