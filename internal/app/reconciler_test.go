package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

func TestRunOnceExpiresThenAbandons(t *testing.T) {
	e := newEnv(t)
	session := e.createSession(t, "quiz-1", "AB12CD", 1)
	attempt := e.start(t, "student-1", "quiz-1", "AB12CD")
	e.clock.Advance(2 * time.Minute)

	r := app.NewReconciler(e.sessions, e.attempts, memory.NewLocker(), app.ReconcilerConfig{}, app.Options{Clock: e.clock.Now, Metrics: e.metrics})
	sessions, attempts := r.RunOnce(context.Background())
	if sessions != 1 || attempts != 1 {
		t.Fatalf("expected 1 session and 1 attempt, got %d and %d", sessions, attempts)
	}
	if got := e.storedSession(t, session.ID); got.Status != domain.SessionExpired {
		t.Fatalf("expected EXPIRED, got %s", got.Status)
	}
	if got := e.storedAttempt(t, attempt); got.Status != domain.AttemptAbandoned {
		t.Fatalf("expected ABANDONED, got %s", got.Status)
	}

	sessions, attempts = r.RunOnce(context.Background())
	if sessions != 0 || attempts != 0 {
		t.Fatalf("second pass must be a no-op, got %d and %d", sessions, attempts)
	}
	if got := counterValue(t, e, "quiz_sweep_runs_total", app.SweepSessions); got != 2 {
		t.Fatalf("expected 2 session sweep runs, got %v", got)
	}
}

type heldLocker struct{ err error }

func (l heldLocker) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	return nil, false, l.err
}

func TestReconcilerSkipsWhenLockHeldElsewhere(t *testing.T) {
	e := newEnv(t)
	e.createSession(t, "quiz-1", "AB12CD", 1)
	e.clock.Advance(2 * time.Minute)

	for _, locker := range []app.Locker{heldLocker{}, heldLocker{err: errors.New("redis down")}} {
		r := app.NewReconciler(e.sessions, e.attempts, locker, app.ReconcilerConfig{}, app.Options{Clock: e.clock.Now})
		if n := r.SweepSessions(context.Background()); n != 0 {
			t.Fatalf("sweep must not run without the lease, got %d", n)
		}
	}
	active, _ := e.store.ListActiveSessions(context.Background())
	if len(active) != 1 {
		t.Fatalf("session should remain ACTIVE in storage, got %d active", len(active))
	}
}

func TestReconcilerRunTicksUntilCancelled(t *testing.T) {
	e := newEnv(t)
	session := e.createSession(t, "quiz-1", "AB12CD", 1)
	e.clock.Advance(2 * time.Minute)

	r := app.NewReconciler(e.sessions, e.attempts, nil, app.ReconcilerConfig{
		SessionInterval: 5 * time.Millisecond,
		AttemptInterval: 5 * time.Millisecond,
	}, app.Options{Clock: e.clock.Now})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for e.storedSession(t, session.ID).Status != domain.SessionExpired {
		if time.Now().After(deadline) {
			t.Fatalf("session was never swept")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("reconciler did not stop")
	}
}
