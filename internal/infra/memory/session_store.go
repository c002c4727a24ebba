package memory

import (
	"context"
	"sort"

	"quiz-attempt-service/internal/domain"
)

func (s *Store) CreateSession(_ context.Context, session domain.QuizSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return domain.ErrConflict
	}
	for _, existing := range s.sessions {
		if existing.AccessCode == session.AccessCode {
			return domain.ErrAccessCodeTaken
		}
		if session.Status == domain.SessionActive && existing.QuizID == session.QuizID && existing.Status == domain.SessionActive {
			return domain.ErrSessionAlreadyActive
		}
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *Store) GetSession(_ context.Context, sessionID string) (domain.QuizSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) GetSessionByAccessCode(_ context.Context, code string) (domain.QuizSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.AccessCode == code {
			return session, nil
		}
	}
	return domain.QuizSession{}, domain.ErrSessionNotFound
}

func (s *Store) FindActiveSession(_ context.Context, quizID string) (domain.QuizSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.QuizID == quizID && session.Status == domain.SessionActive {
			return session, nil
		}
	}
	return domain.QuizSession{}, domain.ErrSessionNotFound
}

func (s *Store) AccessCodeExists(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.AccessCode == code {
			return true, nil
		}
	}
	return false, nil
}

// ListActiveSessions returns ACTIVE sessions ordered by end time.
func (s *Store) ListActiveSessions(_ context.Context) ([]domain.QuizSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active := make([]domain.QuizSession, 0)
	for _, session := range s.sessions {
		if session.Status == domain.SessionActive {
			active = append(active, session)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].EndTime.Before(active[j].EndTime)
	})
	return active, nil
}

func (s *Store) UpdateSessionStatus(_ context.Context, sessionID string, from, to domain.SessionStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	if session.Status != from {
		return false, nil
	}
	session.Status = to
	s.sessions[sessionID] = session
	return true, nil
}
