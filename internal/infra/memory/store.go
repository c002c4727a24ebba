package memory

import (
	"context"
	"sync"

	"quiz-attempt-service/internal/domain"
)

// Store is an in-memory implementation of every app repository. It enforces the same
// uniqueness rules as the Postgres schema, so services behave identically against both.
type Store struct {
	mu        sync.RWMutex
	users     map[string]domain.User
	quizzes   map[string]domain.Quiz
	sessions  map[string]domain.QuizSession
	attempts  map[string]domain.QuizAttempt
	responses map[string]map[string]domain.UserResponse // attempt id -> question id
}

func NewStore() *Store {
	return &Store{
		users:     make(map[string]domain.User),
		quizzes:   make(map[string]domain.Quiz),
		sessions:  make(map[string]domain.QuizSession),
		attempts:  make(map[string]domain.QuizAttempt),
		responses: make(map[string]map[string]domain.UserResponse),
	}
}

// PutUser seeds or replaces a user.
func (s *Store) PutUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

// PutQuiz seeds or replaces a quiz with its questions.
func (s *Store) PutQuiz(quiz domain.Quiz) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[quiz.ID] = quiz
}

func (s *Store) GetUser(_ context.Context, userID string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

// LoadQuiz lets the store back a QuizRepository cache.
func (s *Store) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}
