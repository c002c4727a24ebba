package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"quiz-attempt-service/internal/domain"
)

func (s *Store) CreateAttempt(ctx context.Context, attempt domain.QuizAttempt) error {
	_, err := s.db.NewInsert().Model(newAttemptRow(attempt)).Exec(ctx)
	return translate("create attempt", err)
}

// GetAttempt filters by owner, so another student's attempt reads as not found.
func (s *Store) GetAttempt(ctx context.Context, attemptID, studentID string) (domain.QuizAttempt, error) {
	row := new(attemptRow)
	err := s.db.NewSelect().Model(row).
		Where("id = ?", attemptID).
		Where("student_id = ?", studentID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuizAttempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.QuizAttempt{}, domain.StorageError("get attempt", err)
	}
	return row.domain(), nil
}

func (s *Store) FindInProgress(ctx context.Context, studentID, quizID string) (domain.QuizAttempt, error) {
	row := new(attemptRow)
	err := s.db.NewSelect().Model(row).
		Where("student_id = ?", studentID).
		Where("quiz_id = ?", quizID).
		Where("status = ?", string(domain.AttemptInProgress)).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuizAttempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.QuizAttempt{}, domain.StorageError("find in-progress attempt", err)
	}
	return row.domain(), nil
}

func (s *Store) ListInProgressAttempts(ctx context.Context) ([]domain.QuizAttempt, error) {
	return s.listAttempts(ctx, "list in-progress attempts", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("status = ?", string(domain.AttemptInProgress))
	})
}

func (s *Store) ListStudentAttempts(ctx context.Context, studentID string, statuses ...domain.AttemptStatus) ([]domain.QuizAttempt, error) {
	return s.listAttempts(ctx, "list student attempts", func(q *bun.SelectQuery) *bun.SelectQuery {
		q = q.Where("student_id = ?", studentID)
		if len(statuses) > 0 {
			values := make([]string, 0, len(statuses))
			for _, status := range statuses {
				values = append(values, string(status))
			}
			q = q.Where("status IN (?)", bun.In(values))
		}
		return q
	})
}

func (s *Store) listAttempts(ctx context.Context, op string, filter func(*bun.SelectQuery) *bun.SelectQuery) ([]domain.QuizAttempt, error) {
	var rows []attemptRow
	err := filter(s.db.NewSelect().Model(&rows)).Order("started_at ASC").Scan(ctx)
	if err != nil {
		return nil, domain.StorageError(op, err)
	}
	attempts := make([]domain.QuizAttempt, 0, len(rows))
	for _, row := range rows {
		attempts = append(attempts, row.domain())
	}
	return attempts, nil
}

// UpdateAttempt writes the mutable columns only while the stored status equals expected.
func (s *Store) UpdateAttempt(ctx context.Context, attempt domain.QuizAttempt, expected domain.AttemptStatus) (bool, error) {
	res, err := s.db.NewUpdate().Model(newAttemptRow(attempt)).
		Column("status", "score", "completed_at", "last_accessed_at", "attempt_time").
		WherePK().
		Where("status = ?", string(expected)).
		Exec(ctx)
	if err != nil {
		return false, translate("update attempt", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, domain.StorageError("update attempt", err)
	}
	if n > 0 {
		return true, nil
	}
	exists, err := s.db.NewSelect().Model((*attemptRow)(nil)).Where("id = ?", attempt.ID).Exists(ctx)
	if err != nil {
		return false, domain.StorageError("update attempt", err)
	}
	if !exists {
		return false, domain.ErrAttemptNotFound
	}
	return false, nil
}

// UpsertResponse relies on the (attempt_id, question_id) unique constraint; an overwrite keeps
// the first row's id.
func (s *Store) UpsertResponse(ctx context.Context, response domain.UserResponse) (domain.UserResponse, error) {
	row := &responseRow{
		ID:           response.ID,
		AttemptID:    response.AttemptID,
		QuestionID:   response.QuestionID,
		AnswerID:     response.AnswerID,
		IsCorrect:    response.IsCorrect,
		ResponseTime: response.ResponseTime,
		AnsweredAt:   response.AnsweredAt,
	}
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (attempt_id, question_id) DO UPDATE").
		Set("answer_id = EXCLUDED.answer_id").
		Set("is_correct = EXCLUDED.is_correct").
		Set("response_time = EXCLUDED.response_time").
		Set("answered_at = EXCLUDED.answered_at").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return domain.UserResponse{}, translate("upsert response", err)
	}
	return row.domain(), nil
}

func (s *Store) ListResponses(ctx context.Context, attemptID string) ([]domain.UserResponse, error) {
	var rows []responseRow
	err := s.db.NewSelect().Model(&rows).
		Where("attempt_id = ?", attemptID).
		Order("answered_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, domain.StorageError("list responses", err)
	}
	responses := make([]domain.UserResponse, 0, len(rows))
	for _, row := range rows {
		responses = append(responses, row.domain())
	}
	return responses, nil
}
