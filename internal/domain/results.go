package domain

import "time"

// AnswerResult marks one answer of a graded question.
type AnswerResult struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	IsSelected bool   `json:"isSelected"`
	IsCorrect  bool   `json:"isCorrect"`
}

// QuestionResult is the per-question breakdown of a result.
type QuestionResult struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Type      string         `json:"type"`
	IsCorrect bool           `json:"isCorrect"`
	Answers   []AnswerResult `json:"answers"`
}

// AttemptResult is what a student sees after submitting.
type AttemptResult struct {
	AttemptID      string           `json:"attemptId"`
	QuizID         string           `json:"quizId"`
	QuizTitle      string           `json:"quizTitle"`
	Status         AttemptStatus    `json:"status"`
	Score          float64          `json:"score"`
	AttemptTime    *int             `json:"attemptTime,omitempty"`
	StartedAt      time.Time        `json:"startedAt"`
	CompletedAt    *time.Time       `json:"completedAt,omitempty"`
	TotalQuestions int              `json:"totalQuestions"`
	CorrectAnswers int              `json:"correctAnswers"`
	Questions      []QuestionResult `json:"questions"`
}

// AnswerView is an answer shown while an attempt is running; correctness is never exposed.
type AnswerView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuestionView is a question shown while an attempt is running.
type QuestionView struct {
	ID         string       `json:"id"`
	Text       string       `json:"text"`
	Type       string       `json:"type"`
	Difficulty string       `json:"difficulty"`
	Answers    []AnswerView `json:"answers"`
}

// AttemptView is an attempt together with its quiz content.
type AttemptView struct {
	QuizAttempt
	QuizTitle string         `json:"quizTitle"`
	Questions []QuestionView `json:"questions"`
}

// EventType names a lifecycle transition published to session subscribers.
type EventType string

const (
	EventSessionCreated   EventType = "session_created"
	EventSessionExpired   EventType = "session_expired"
	EventAttemptStarted   EventType = "attempt_started"
	EventAttemptSubmitted EventType = "attempt_submitted"
	EventAttemptAbandoned EventType = "attempt_abandoned"
	EventAttemptGraded    EventType = "attempt_graded"
)

// Event is a lifecycle notification scoped to one quiz session.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	QuizID    string    `json:"quizId"`
	AttemptID string    `json:"attemptId,omitempty"`
	StudentID string    `json:"studentId,omitempty"`
	Score     *float64  `json:"score,omitempty"`
	At        time.Time `json:"at"`
}
