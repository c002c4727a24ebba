package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-attempt-service/internal/domain"
)

// Constraint names from the migrations, mapped to the conflicts they signal.
var constraintErrors = map[string]error{
	"quiz_sessions_access_code_key":     domain.ErrAccessCodeTaken,
	"quiz_sessions_one_active_per_quiz": domain.ErrSessionAlreadyActive,
	"quiz_attempts_one_in_progress":     domain.ErrAttemptConflict,
}

// Store persists users, sessions, attempts and responses with bun. The uniqueness rules the
// services rely on live in the schema as (partial) unique indexes.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	row := new(userRow)
	err := s.db.NewSelect().Model(row).Where("id = ?", userID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, domain.StorageError("get user", err)
	}
	return domain.User{ID: row.ID, DisplayName: row.DisplayName, Role: domain.Role(row.Role)}, nil
}

// SaveUser inserts or updates a user.
func (s *Store) SaveUser(ctx context.Context, user domain.User) error {
	row := &userRow{ID: user.ID, DisplayName: user.DisplayName, Role: string(user.Role)}
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("display_name = EXCLUDED.display_name").
		Set("role = EXCLUDED.role").
		Exec(ctx)
	if err != nil {
		return domain.StorageError("save user", err)
	}
	return nil
}

// SaveQuiz upserts a quiz and replaces its question graph in one transaction. Question and answer
// order is taken from the slices.
func (s *Store) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := &quizRow{ID: quiz.ID, Title: quiz.Title, Status: string(quiz.Status), OwnerID: quiz.OwnerID}
		_, err := tx.NewInsert().Model(row).
			On("CONFLICT (id) DO UPDATE").
			Set("title = EXCLUDED.title").
			Set("status = EXCLUDED.status").
			Set("owner_id = EXCLUDED.owner_id").
			Exec(ctx)
		if err != nil {
			return err
		}
		// Answers go with their questions via ON DELETE CASCADE.
		if _, err := tx.NewDelete().Model((*questionRow)(nil)).Where("quiz_id = ?", quiz.ID).Exec(ctx); err != nil {
			return err
		}
		if len(quiz.Questions) == 0 {
			return nil
		}

		questions := make([]questionRow, 0, len(quiz.Questions))
		var answers []answerRow
		for i, q := range quiz.Questions {
			questions = append(questions, questionRow{
				ID:         q.ID,
				QuizID:     quiz.ID,
				Position:   i,
				Text:       q.Text,
				Type:       q.Type,
				Difficulty: q.Difficulty,
			})
			for j, a := range q.Answers {
				answers = append(answers, answerRow{
					ID:         a.ID,
					QuestionID: q.ID,
					Position:   j,
					Text:       a.Text,
					IsCorrect:  a.IsCorrect,
				})
			}
		}
		if _, err := tx.NewInsert().Model(&questions).Exec(ctx); err != nil {
			return err
		}
		if len(answers) > 0 {
			if _, err := tx.NewInsert().Model(&answers).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.StorageError("save quiz", err)
	}
	return nil
}

// translate maps driver errors onto the domain taxonomy.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.IntegrityViolation() {
		if mapped, ok := constraintErrors[pgErr.Field('n')]; ok {
			return mapped
		}
		return domain.ErrConflict
	}
	return domain.StorageError(op, err)
}
