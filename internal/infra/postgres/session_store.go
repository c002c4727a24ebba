package postgres

import (
	"context"
	"database/sql"
	"errors"

	"quiz-attempt-service/internal/domain"
)

func (s *Store) CreateSession(ctx context.Context, session domain.QuizSession) error {
	_, err := s.db.NewInsert().Model(newSessionRow(session)).Exec(ctx)
	return translate("create session", err)
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.QuizSession, error) {
	return s.selectSession(ctx, "get session", "id = ?", sessionID)
}

func (s *Store) GetSessionByAccessCode(ctx context.Context, code string) (domain.QuizSession, error) {
	return s.selectSession(ctx, "get session by access code", "access_code = ?", code)
}

func (s *Store) FindActiveSession(ctx context.Context, quizID string) (domain.QuizSession, error) {
	return s.selectSession(ctx, "find active session", "quiz_id = ? AND status = 'ACTIVE'", quizID)
}

func (s *Store) selectSession(ctx context.Context, op, where string, arg interface{}) (domain.QuizSession, error) {
	row := new(sessionRow)
	err := s.db.NewSelect().Model(row).Where(where, arg).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.QuizSession{}, domain.StorageError(op, err)
	}
	return row.domain(), nil
}

func (s *Store) AccessCodeExists(ctx context.Context, code string) (bool, error) {
	exists, err := s.db.NewSelect().Model((*sessionRow)(nil)).Where("access_code = ?", code).Exists(ctx)
	if err != nil {
		return false, domain.StorageError("check access code", err)
	}
	return exists, nil
}

func (s *Store) ListActiveSessions(ctx context.Context) ([]domain.QuizSession, error) {
	var rows []sessionRow
	err := s.db.NewSelect().Model(&rows).
		Where("status = ?", string(domain.SessionActive)).
		Order("end_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, domain.StorageError("list active sessions", err)
	}
	sessions := make([]domain.QuizSession, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, row.domain())
	}
	return sessions, nil
}

// UpdateSessionStatus is a compare-and-set on the status column.
func (s *Store) UpdateSessionStatus(ctx context.Context, sessionID string, from, to domain.SessionStatus) (bool, error) {
	res, err := s.db.NewUpdate().Model((*sessionRow)(nil)).
		Set("status = ?", string(to)).
		Where("id = ?", sessionID).
		Where("status = ?", string(from)).
		Exec(ctx)
	if err != nil {
		return false, domain.StorageError("update session status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, domain.StorageError("update session status", err)
	}
	if n > 0 {
		return true, nil
	}
	exists, err := s.db.NewSelect().Model((*sessionRow)(nil)).Where("id = ?", sessionID).Exists(ctx)
	if err != nil {
		return false, domain.StorageError("update session status", err)
	}
	if !exists {
		return false, domain.ErrSessionNotFound
	}
	return false, nil
}
