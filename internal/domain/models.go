package domain

import "time"

// Role distinguishes students from teachers.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
)

// User is an already-authenticated caller.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
}

// QuizStatus is the authoring lifecycle of a quiz.
type QuizStatus string

const (
	QuizDraft    QuizStatus = "DRAFT"
	QuizActive   QuizStatus = "ACTIVE"
	QuizArchived QuizStatus = "ARCHIVED"
)

// Answer is a selectable option of a question.
type Answer struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// Question models a single-correct-answer multiple choice question.
type Question struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	Type       string   `json:"type"`
	Difficulty string   `json:"difficulty"`
	Answers    []Answer `json:"answers"`
}

// Answer returns the answer with the given id.
func (q Question) Answer(answerID string) (Answer, bool) {
	for _, a := range q.Answers {
		if a.ID == answerID {
			return a, true
		}
	}
	return Answer{}, false
}

// Quiz owns its questions, which own their answers. Question order is significant.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Status    QuizStatus `json:"status"`
	OwnerID   string     `json:"ownerId"`
	Questions []Question `json:"questions"`
}

// Question returns the question with the given id.
func (q Quiz) Question(questionID string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == questionID {
			return question, true
		}
	}
	return Question{}, false
}

// Attemptable reports whether students may start attempts at this quiz.
func (q Quiz) Attemptable() bool {
	return q.Status == QuizActive
}

// UserResponse is a student's selected answer for one question of an attempt.
type UserResponse struct {
	ID           string    `json:"id"`
	AttemptID    string    `json:"attemptId"`
	QuestionID   string    `json:"questionId"`
	AnswerID     string    `json:"answerId"`
	IsCorrect    bool      `json:"isCorrect"`
	ResponseTime int       `json:"responseTime"`
	AnsweredAt   time.Time `json:"answeredAt"`
}
