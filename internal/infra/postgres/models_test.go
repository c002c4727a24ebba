package postgres

import (
	"testing"
	"time"

	"quiz-attempt-service/internal/domain"
)

func TestAttemptRowKeepsSessionlessAttemptsNull(t *testing.T) {
	started := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	row := newAttemptRow(domain.QuizAttempt{ID: "a1", StudentID: "u1", QuizID: "quiz-1", Status: domain.AttemptInProgress, StartedAt: started})
	if row.SessionID != nil {
		t.Fatalf("expected NULL session id, got %q", *row.SessionID)
	}
	if got := row.domain(); got.SessionBound() {
		t.Fatalf("expected attempt without session, got %+v", got)
	}
}

func TestAttemptRowNormalizesTimesToUTC(t *testing.T) {
	local := time.FixedZone("UTC+2", 2*60*60)
	completed := time.Date(2024, 3, 1, 11, 30, 0, 0, local)
	row := attemptRow{
		ID:          "a1",
		SessionID:   strPtr("s1"),
		Status:      string(domain.AttemptSubmitted),
		StartedAt:   time.Date(2024, 3, 1, 11, 0, 0, 0, local),
		CompletedAt: &completed,
	}

	attempt := row.domain()
	if attempt.SessionID != "s1" {
		t.Fatalf("expected session s1, got %q", attempt.SessionID)
	}
	if attempt.StartedAt.Location() != time.UTC || attempt.CompletedAt.Location() != time.UTC {
		t.Fatalf("expected UTC times, got %v / %v", attempt.StartedAt, attempt.CompletedAt)
	}
	if !attempt.CompletedAt.Equal(completed) {
		t.Fatalf("completed time changed: %v", attempt.CompletedAt)
	}
}

func strPtr(s string) *string { return &s }
