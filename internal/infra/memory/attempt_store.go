package memory

import (
	"context"
	"sort"

	"quiz-attempt-service/internal/domain"
)

func (s *Store) CreateAttempt(_ context.Context, attempt domain.QuizAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[attempt.ID]; ok {
		return domain.ErrConflict
	}
	if attempt.Status == domain.AttemptInProgress {
		for _, existing := range s.attempts {
			if existing.StudentID == attempt.StudentID && existing.QuizID == attempt.QuizID &&
				existing.Status == domain.AttemptInProgress {
				return domain.ErrAttemptConflict
			}
		}
	}
	s.attempts[attempt.ID] = attempt
	return nil
}

// GetAttempt hides attempts owned by other students behind ErrAttemptNotFound.
func (s *Store) GetAttempt(_ context.Context, attemptID, studentID string) (domain.QuizAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	if !ok || attempt.StudentID != studentID {
		return domain.QuizAttempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *Store) FindInProgress(_ context.Context, studentID, quizID string) (domain.QuizAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, attempt := range s.attempts {
		if attempt.StudentID == studentID && attempt.QuizID == quizID && attempt.Status == domain.AttemptInProgress {
			return attempt, nil
		}
	}
	return domain.QuizAttempt{}, domain.ErrAttemptNotFound
}

func (s *Store) ListInProgressAttempts(_ context.Context) ([]domain.QuizAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterLocked(func(a domain.QuizAttempt) bool {
		return a.Status == domain.AttemptInProgress
	}), nil
}

// ListStudentAttempts returns the student's attempts in the given statuses, oldest first.
// No statuses means all of them.
func (s *Store) ListStudentAttempts(_ context.Context, studentID string, statuses ...domain.AttemptStatus) ([]domain.QuizAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterLocked(func(a domain.QuizAttempt) bool {
		if a.StudentID != studentID {
			return false
		}
		if len(statuses) == 0 {
			return true
		}
		for _, status := range statuses {
			if a.Status == status {
				return true
			}
		}
		return false
	}), nil
}

func (s *Store) UpdateAttempt(_ context.Context, attempt domain.QuizAttempt, expected domain.AttemptStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.attempts[attempt.ID]
	if !ok {
		return false, domain.ErrAttemptNotFound
	}
	if stored.Status != expected {
		return false, nil
	}
	s.attempts[attempt.ID] = attempt
	return true, nil
}

// UpsertResponse keeps one response per question; an overwrite keeps the original id.
func (s *Store) UpsertResponse(_ context.Context, response domain.UserResponse) (domain.UserResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byQuestion, ok := s.responses[response.AttemptID]
	if !ok {
		byQuestion = make(map[string]domain.UserResponse)
		s.responses[response.AttemptID] = byQuestion
	}
	if existing, ok := byQuestion[response.QuestionID]; ok {
		response.ID = existing.ID
	}
	byQuestion[response.QuestionID] = response
	return response, nil
}

func (s *Store) ListResponses(_ context.Context, attemptID string) ([]domain.UserResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	responses := make([]domain.UserResponse, 0, len(s.responses[attemptID]))
	for _, r := range s.responses[attemptID] {
		responses = append(responses, r)
	}
	sort.Slice(responses, func(i, j int) bool {
		return responses[i].AnsweredAt.Before(responses[j].AnsweredAt)
	})
	return responses, nil
}

func (s *Store) filterLocked(keep func(domain.QuizAttempt) bool) []domain.QuizAttempt {
	out := make([]domain.QuizAttempt, 0)
	for _, attempt := range s.attempts {
		if keep(attempt) {
			out = append(out, attempt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
