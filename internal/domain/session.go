package domain

import "time"

// SessionStatus is the state of a quiz session. ACTIVE -> EXPIRED is the only transition.
type SessionStatus string

const (
	SessionActive  SessionStatus = "ACTIVE"
	SessionExpired SessionStatus = "EXPIRED"
)

// DefaultSessionDuration applies when a session is created without a duration.
const DefaultSessionDuration = 30 * time.Minute

// QuizSession is a time-boxed, access-code-gated administration of one quiz.
type QuizSession struct {
	ID         string        `json:"sessionId"`
	QuizID     string        `json:"quizId"`
	CreatedBy  string        `json:"createdBy"`
	AccessCode string        `json:"accessCode"`
	StartTime  time.Time     `json:"startTime"`
	EndTime    time.Time     `json:"endTime"`
	Status     SessionStatus `json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// Elapsed reports whether now is past the session window.
func (s QuizSession) Elapsed(now time.Time) bool {
	return now.After(s.EndTime)
}

// Stale reports whether the session can no longer carry attempts.
func (s QuizSession) Stale(now time.Time) bool {
	return s.Status != SessionActive || s.Elapsed(now)
}

// Open reports whether now falls inside [StartTime, EndTime] of an ACTIVE session.
func (s QuizSession) Open(now time.Time) bool {
	return s.Status == SessionActive && !now.Before(s.StartTime) && !s.Elapsed(now)
}

// Expire moves an elapsed ACTIVE session to EXPIRED. It reports whether the status changed;
// calling it again, or before the window elapses, is a no-op.
func (s *QuizSession) Expire(now time.Time) bool {
	if s.Status != SessionActive || !s.Elapsed(now) {
		return false
	}
	s.Status = SessionExpired
	return true
}
