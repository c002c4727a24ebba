package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-attempt-service/internal/domain"
)

// QuizLoader reads a quiz with its ordered questions and answers in two queries.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

const questionsQuery = `
SELECT qn.id, qn.text, qn.type, qn.difficulty, an.id, an.text, an.is_correct
FROM questions qn
LEFT JOIN answers an ON an.question_id = qn.id
WHERE qn.quiz_id = $1
ORDER BY qn.position, an.position`

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var quiz domain.Quiz
	var status string
	err := l.pool.QueryRow(ctx,
		`SELECT id, title, status, owner_id FROM quizzes WHERE id = $1`, quizID,
	).Scan(&quiz.ID, &quiz.Title, &status, &quiz.OwnerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, domain.StorageError("load quiz", err)
	}
	quiz.Status = domain.QuizStatus(status)

	rows, err := l.pool.Query(ctx, questionsQuery, quizID)
	if err != nil {
		return domain.Quiz{}, domain.StorageError("load questions", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			q          domain.Question
			answerID   *string
			answerText *string
			isCorrect  *bool
		)
		if err := rows.Scan(&q.ID, &q.Text, &q.Type, &q.Difficulty, &answerID, &answerText, &isCorrect); err != nil {
			return domain.Quiz{}, domain.StorageError("scan question", err)
		}
		if n := len(quiz.Questions); n == 0 || quiz.Questions[n-1].ID != q.ID {
			quiz.Questions = append(quiz.Questions, q)
		}
		if answerID == nil {
			continue
		}
		last := &quiz.Questions[len(quiz.Questions)-1]
		last.Answers = append(last.Answers, domain.Answer{
			ID:        *answerID,
			Text:      deref(answerText),
			IsCorrect: isCorrect != nil && *isCorrect,
		})
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, domain.StorageError("load questions", fmt.Errorf("iterate rows: %w", err))
	}
	return quiz, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
