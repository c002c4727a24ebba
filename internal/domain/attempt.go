package domain

import "time"

// AttemptStatus is the state of a quiz attempt.
//
//	IN_PROGRESS -> SUBMITTED -> GRADED
//	IN_PROGRESS -> ABANDONED
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "IN_PROGRESS"
	AttemptSubmitted  AttemptStatus = "SUBMITTED"
	AttemptGraded     AttemptStatus = "GRADED"
	AttemptAbandoned  AttemptStatus = "ABANDONED"
)

// Terminal reports whether no transition leaves this status.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptGraded || s == AttemptAbandoned
}

// Finished reports whether the attempt has been submitted, graded or not.
func (s AttemptStatus) Finished() bool {
	return s == AttemptSubmitted || s == AttemptGraded
}

// CanTransition reports whether from -> to is an edge of the attempt state machine.
func CanTransition(from, to AttemptStatus) bool {
	switch from {
	case AttemptInProgress:
		return to == AttemptSubmitted || to == AttemptAbandoned
	case AttemptSubmitted:
		return to == AttemptGraded
	}
	return false
}

// QuizAttempt is one student's run at one quiz. SessionID is a weak reference;
// it is empty for attempts started without an access code.
type QuizAttempt struct {
	ID             string        `json:"attemptId"`
	StudentID      string        `json:"studentId"`
	QuizID         string        `json:"quizId"`
	SessionID      string        `json:"sessionId,omitempty"`
	Status         AttemptStatus `json:"status"`
	Score          float64       `json:"score"`
	StartedAt      time.Time     `json:"startedAt"`
	CompletedAt    *time.Time    `json:"completedAt,omitempty"`
	LastAccessedAt *time.Time    `json:"lastAccessedAt,omitempty"`
	AttemptTime    *int          `json:"attemptTime,omitempty"`
}

// SessionBound reports whether the attempt was started under a quiz session.
func (a QuizAttempt) SessionBound() bool {
	return a.SessionID != ""
}

// StaleUnder reports whether an in-progress, session-bound attempt must be abandoned.
// A nil session means the referenced session no longer exists.
func (a QuizAttempt) StaleUnder(session *QuizSession, now time.Time) bool {
	if a.Status != AttemptInProgress || !a.SessionBound() {
		return false
	}
	return session == nil || session.Stale(now)
}

// Abandon moves an in-progress attempt to ABANDONED and reports whether it changed.
func (a *QuizAttempt) Abandon() bool {
	if a.Status != AttemptInProgress {
		return false
	}
	a.Status = AttemptAbandoned
	return true
}

// Submit records the final score. Only an in-progress attempt may be submitted.
func (a *QuizAttempt) Submit(score float64, attemptTime int, now time.Time) error {
	if a.Status != AttemptInProgress {
		return ErrAttemptNotInProgress
	}
	a.Status = AttemptSubmitted
	a.Score = score
	a.AttemptTime = &attemptTime
	completed := now
	a.CompletedAt = &completed
	return nil
}

// MarkGraded moves a submitted attempt to GRADED and reports whether it changed.
func (a *QuizAttempt) MarkGraded() bool {
	if a.Status != AttemptSubmitted {
		return false
	}
	a.Status = AttemptGraded
	return true
}

// Touch stamps the last access time.
func (a *QuizAttempt) Touch(now time.Time) {
	accessed := now
	a.LastAccessedAt = &accessed
}
