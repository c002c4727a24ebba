package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"quiz-attempt-service/internal/domain"
)

type userRow struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID          string `bun:"id,pk"`
	DisplayName string `bun:"display_name"`
	Role        string `bun:"role,notnull"`
}

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes,alias:q"`

	ID      string `bun:"id,pk"`
	Title   string `bun:"title,notnull"`
	Status  string `bun:"status,notnull"`
	OwnerID string `bun:"owner_id,notnull"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:qn"`

	ID         string `bun:"id,pk"`
	QuizID     string `bun:"quiz_id,notnull"`
	Position   int    `bun:"position,notnull"`
	Text       string `bun:"text,notnull"`
	Type       string `bun:"type,notnull"`
	Difficulty string `bun:"difficulty,notnull"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:an"`

	ID         string `bun:"id,pk"`
	QuestionID string `bun:"question_id,notnull"`
	Position   int    `bun:"position,notnull"`
	Text       string `bun:"text,notnull"`
	IsCorrect  bool   `bun:"is_correct,notnull"`
}

type sessionRow struct {
	bun.BaseModel `bun:"table:quiz_sessions,alias:s"`

	ID         string    `bun:"id,pk"`
	QuizID     string    `bun:"quiz_id,notnull"`
	CreatedBy  string    `bun:"created_by,notnull"`
	AccessCode string    `bun:"access_code,notnull"`
	StartTime  time.Time `bun:"start_time,notnull"`
	EndTime    time.Time `bun:"end_time,notnull"`
	Status     string    `bun:"status,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
}

func newSessionRow(s domain.QuizSession) *sessionRow {
	return &sessionRow{
		ID:         s.ID,
		QuizID:     s.QuizID,
		CreatedBy:  s.CreatedBy,
		AccessCode: s.AccessCode,
		StartTime:  s.StartTime,
		EndTime:    s.EndTime,
		Status:     string(s.Status),
		CreatedAt:  s.CreatedAt,
	}
}

func (r sessionRow) domain() domain.QuizSession {
	return domain.QuizSession{
		ID:         r.ID,
		QuizID:     r.QuizID,
		CreatedBy:  r.CreatedBy,
		AccessCode: r.AccessCode,
		StartTime:  r.StartTime.UTC(),
		EndTime:    r.EndTime.UTC(),
		Status:     domain.SessionStatus(r.Status),
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

type attemptRow struct {
	bun.BaseModel `bun:"table:quiz_attempts,alias:a"`

	ID             string     `bun:"id,pk"`
	StudentID      string     `bun:"student_id,notnull"`
	QuizID         string     `bun:"quiz_id,notnull"`
	SessionID      *string    `bun:"session_id"`
	Status         string     `bun:"status,notnull"`
	Score          float64    `bun:"score,notnull"`
	StartedAt      time.Time  `bun:"started_at,notnull"`
	CompletedAt    *time.Time `bun:"completed_at"`
	LastAccessedAt *time.Time `bun:"last_accessed_at"`
	AttemptTime    *int       `bun:"attempt_time"`
}

func newAttemptRow(a domain.QuizAttempt) *attemptRow {
	row := &attemptRow{
		ID:             a.ID,
		StudentID:      a.StudentID,
		QuizID:         a.QuizID,
		Status:         string(a.Status),
		Score:          a.Score,
		StartedAt:      a.StartedAt,
		CompletedAt:    a.CompletedAt,
		LastAccessedAt: a.LastAccessedAt,
		AttemptTime:    a.AttemptTime,
	}
	if a.SessionBound() {
		sessionID := a.SessionID
		row.SessionID = &sessionID
	}
	return row
}

func (r attemptRow) domain() domain.QuizAttempt {
	a := domain.QuizAttempt{
		ID:          r.ID,
		StudentID:   r.StudentID,
		QuizID:      r.QuizID,
		Status:      domain.AttemptStatus(r.Status),
		Score:       r.Score,
		StartedAt:   r.StartedAt.UTC(),
		AttemptTime: r.AttemptTime,
	}
	if r.SessionID != nil {
		a.SessionID = *r.SessionID
	}
	if r.CompletedAt != nil {
		completed := r.CompletedAt.UTC()
		a.CompletedAt = &completed
	}
	if r.LastAccessedAt != nil {
		accessed := r.LastAccessedAt.UTC()
		a.LastAccessedAt = &accessed
	}
	return a
}

type responseRow struct {
	bun.BaseModel `bun:"table:user_responses,alias:r"`

	ID           string    `bun:"id,pk"`
	AttemptID    string    `bun:"attempt_id,notnull"`
	QuestionID   string    `bun:"question_id,notnull"`
	AnswerID     string    `bun:"answer_id,notnull"`
	IsCorrect    bool      `bun:"is_correct,notnull"`
	ResponseTime int       `bun:"response_time,notnull"`
	AnsweredAt   time.Time `bun:"answered_at,notnull"`
}

func (r responseRow) domain() domain.UserResponse {
	return domain.UserResponse{
		ID:           r.ID,
		AttemptID:    r.AttemptID,
		QuestionID:   r.QuestionID,
		AnswerID:     r.AnswerID,
		IsCorrect:    r.IsCorrect,
		ResponseTime: r.ResponseTime,
		AnsweredAt:   r.AnsweredAt.UTC(),
	}
}
