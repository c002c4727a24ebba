package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/metrics"
)

// AnswerSubmission is a student's choice for one question.
type AnswerSubmission struct {
	QuestionID   string `json:"questionId"`
	AnswerID     string `json:"answerId"`
	ResponseTime int    `json:"responseTime"`
}

// AttemptService owns attempt creation, answer recording, submission and the
// IN_PROGRESS -> ABANDONED transition.
type AttemptService struct {
	users     UserRepository
	quizzes   QuizRepository
	attempts  AttemptRepository
	responses ResponseRepository
	sessions  *SessionService
	opts      Options
}

func NewAttemptService(
	users UserRepository,
	quizzes QuizRepository,
	attempts AttemptRepository,
	responses ResponseRepository,
	sessions *SessionService,
	opts Options,
) *AttemptService {
	return &AttemptService{
		users:     users,
		quizzes:   quizzes,
		attempts:  attempts,
		responses: responses,
		sessions:  sessions,
		opts:      opts.withDefaults(),
	}
}

// StartAttempt finds, creates or supersedes the student's in-progress attempt at a quiz.
// An existing attempt is resumed unless its session went stale, in which case it is abandoned
// and a new attempt is created.
func (s *AttemptService) StartAttempt(ctx context.Context, studentID, quizID, accessCode string) (domain.QuizAttempt, error) {
	attempt, _, err := s.BeginAttempt(ctx, studentID, quizID, accessCode)
	return attempt, err
}

// BeginAttempt is StartAttempt that also reports whether a new attempt was created (false when an
// existing one was resumed).
func (s *AttemptService) BeginAttempt(ctx context.Context, studentID, quizID, accessCode string) (domain.QuizAttempt, bool, error) {
	if quizID == "" {
		return domain.QuizAttempt{}, false, domain.ErrMissingQuiz
	}
	if _, err := s.users.GetUser(ctx, studentID); err != nil {
		return domain.QuizAttempt{}, false, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.QuizAttempt{}, false, err
	}
	if !quiz.Attemptable() {
		return domain.QuizAttempt{}, false, domain.ErrQuizNotAttemptable
	}

	var session *domain.QuizSession
	if strings.TrimSpace(accessCode) != "" {
		resolved, err := s.admit(ctx, quiz, accessCode)
		if err != nil {
			return domain.QuizAttempt{}, false, err
		}
		session = &resolved
	}

	now := s.opts.Clock()
	existing, err := s.attempts.FindInProgress(ctx, studentID, quiz.ID)
	switch {
	case err == nil:
		current, live, err := s.reconcile(ctx, existing, now)
		if err != nil {
			return domain.QuizAttempt{}, false, err
		}
		if live {
			return current, false, nil
		}
	case !errors.Is(err, domain.ErrNotFound):
		return domain.QuizAttempt{}, false, err
	}

	attempt := domain.QuizAttempt{
		ID:        uuid.NewString(),
		StudentID: studentID,
		QuizID:    quiz.ID,
		Status:    domain.AttemptInProgress,
		Score:     0,
		StartedAt: now,
	}
	if session != nil {
		attempt.SessionID = session.ID
	}
	if err := s.attempts.CreateAttempt(ctx, attempt); err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			return domain.QuizAttempt{}, false, err
		}
		// A concurrent start for the same student and quiz won; resume it if it is usable.
		if winner, findErr := s.attempts.FindInProgress(ctx, studentID, quiz.ID); findErr == nil {
			if current, live, recErr := s.reconcile(ctx, winner, now); recErr == nil && live {
				return current, false, nil
			}
		}
		return domain.QuizAttempt{}, false, domain.ErrAttemptConflict
	}

	s.opts.Logger.Debug("quiz attempt started",
		zap.String("attemptId", attempt.ID),
		zap.String("studentId", studentID),
		zap.String("quizId", quiz.ID),
		zap.String("sessionId", attempt.SessionID),
	)
	s.publish(domain.EventAttemptStarted, attempt, now)
	return attempt, true, nil
}

// admit resolves an access code and checks that its session admits attempts at quiz right now.
func (s *AttemptService) admit(ctx context.Context, quiz domain.Quiz, accessCode string) (domain.QuizSession, error) {
	session, err := s.sessions.ResolveByAccessCode(ctx, accessCode)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return domain.QuizSession{}, domain.ErrAccessCodeInvalid
	}
	if err != nil {
		return domain.QuizSession{}, err
	}
	if session.Status != domain.SessionActive {
		return domain.QuizSession{}, domain.ErrSessionExpired
	}
	if session.QuizID != quiz.ID {
		return domain.QuizSession{}, domain.ErrAccessCodeWrongQuiz
	}
	now := s.opts.Clock()
	if now.Before(session.StartTime) {
		return domain.QuizSession{}, domain.ErrSessionNotStarted
	}
	if session.Elapsed(now) {
		return domain.QuizSession{}, domain.ErrSessionExpired
	}
	return session, nil
}

// GetAttempt loads an attempt owned by the student, abandoning it first if its session went stale.
func (s *AttemptService) GetAttempt(ctx context.Context, attemptID, studentID string) (domain.QuizAttempt, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID, studentID)
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	attempt, _, err = s.reconcile(ctx, attempt, s.opts.Clock())
	return attempt, err
}

// SubmitAnswer records (or overwrites) the student's answer to one question.
func (s *AttemptService) SubmitAnswer(ctx context.Context, attemptID, studentID string, submission AnswerSubmission) (domain.UserResponse, error) {
	now := s.opts.Clock()
	attempt, err := s.loadInProgress(ctx, attemptID, studentID, now)
	if err != nil {
		return domain.UserResponse{}, err
	}

	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.UserResponse{}, err
	}
	question, ok := quiz.Question(submission.QuestionID)
	if !ok {
		return domain.UserResponse{}, domain.ErrQuestionNotInQuiz
	}
	answer, ok := question.Answer(submission.AnswerID)
	if !ok {
		return domain.UserResponse{}, domain.ErrAnswerNotInQuestion
	}

	return s.responses.UpsertResponse(ctx, domain.UserResponse{
		ID:           uuid.NewString(),
		AttemptID:    attempt.ID,
		QuestionID:   question.ID,
		AnswerID:     answer.ID,
		IsCorrect:    answer.IsCorrect,
		ResponseTime: submission.ResponseTime,
		AnsweredAt:   now,
	})
}

// SaveProgress stamps the attempt's last access time without changing its status.
func (s *AttemptService) SaveProgress(ctx context.Context, attemptID, studentID string) (domain.QuizAttempt, error) {
	now := s.opts.Clock()
	attempt, err := s.loadInProgress(ctx, attemptID, studentID, now)
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	attempt.Touch(now)
	if err := s.write(ctx, attempt, domain.AttemptInProgress); err != nil {
		return domain.QuizAttempt{}, err
	}
	return attempt, nil
}

// SubmitAttempt scores the attempt and moves it to SUBMITTED. This is the only path to SUBMITTED.
func (s *AttemptService) SubmitAttempt(ctx context.Context, attemptID, studentID string, elapsedSeconds int) (domain.QuizAttempt, error) {
	now := s.opts.Clock()
	attempt, err := s.loadInProgress(ctx, attemptID, studentID, now)
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	if elapsedSeconds < 0 {
		return domain.QuizAttempt{}, domain.ErrInvalidElapsedTime
	}

	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	responses, err := s.responses.ListResponses(ctx, attempt.ID)
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	card, err := Score(quiz.Questions, responses)
	if err != nil {
		return domain.QuizAttempt{}, err
	}

	if err := attempt.Submit(card.Percentage, elapsedSeconds, now); err != nil {
		return domain.QuizAttempt{}, err
	}
	if err := s.write(ctx, attempt, domain.AttemptInProgress); err != nil {
		return domain.QuizAttempt{}, err
	}

	s.opts.Logger.Info("quiz attempt submitted",
		zap.String("attemptId", attempt.ID),
		zap.String("quizId", attempt.QuizID),
		zap.Float64("score", attempt.Score),
	)
	s.publish(domain.EventAttemptSubmitted, attempt, now)
	return attempt, nil
}

// GetResults returns the graded breakdown of a submitted attempt. The first view moves it from
// SUBMITTED to GRADED; the score itself was fixed at submission.
func (s *AttemptService) GetResults(ctx context.Context, attemptID, studentID string) (domain.AttemptResult, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID, studentID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	attempt, _, err = s.reconcile(ctx, attempt, s.opts.Clock())
	if err != nil {
		return domain.AttemptResult{}, err
	}
	switch {
	case attempt.Status == domain.AttemptAbandoned:
		return domain.AttemptResult{}, domain.ErrAttemptExpired
	case !attempt.Status.Finished():
		return domain.AttemptResult{}, domain.ErrResultsUnavailable
	}

	if attempt.MarkGraded() {
		applied, err := s.attempts.UpdateAttempt(ctx, attempt, domain.AttemptSubmitted)
		switch {
		case err != nil:
			s.opts.Logger.Warn("could not persist graded status",
				zap.String("attemptId", attempt.ID),
				zap.Error(err),
			)
		case applied:
			s.publish(domain.EventAttemptGraded, attempt, s.opts.Clock())
		}
	}

	return s.results(ctx, attempt)
}

// ListInProgressAttempts returns the student's attempts that can still be resumed.
func (s *AttemptService) ListInProgressAttempts(ctx context.Context, studentID string) ([]domain.QuizAttempt, error) {
	attempts, err := s.attempts.ListStudentAttempts(ctx, studentID, domain.AttemptInProgress)
	if err != nil {
		return nil, err
	}
	now := s.opts.Clock()
	resumable := make([]domain.QuizAttempt, 0, len(attempts))
	for _, attempt := range attempts {
		current, live, err := s.reconcile(ctx, attempt, now)
		if err != nil {
			return nil, err
		}
		if live {
			resumable = append(resumable, current)
		}
	}
	return resumable, nil
}

// ListCompletedAttempts returns results for every submitted or graded attempt of the student.
// Viewing the list does not mark anything as graded.
func (s *AttemptService) ListCompletedAttempts(ctx context.Context, studentID string) ([]domain.AttemptResult, error) {
	attempts, err := s.attempts.ListStudentAttempts(ctx, studentID, domain.AttemptSubmitted, domain.AttemptGraded)
	if err != nil {
		return nil, err
	}
	results := make([]domain.AttemptResult, 0, len(attempts))
	for _, attempt := range attempts {
		result, err := s.results(ctx, attempt)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// Describe pairs an attempt with its quiz content, hiding which answers are correct.
func (s *AttemptService) Describe(ctx context.Context, attempt domain.QuizAttempt) (domain.AttemptView, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.AttemptView{}, err
	}
	view := domain.AttemptView{
		QuizAttempt: attempt,
		QuizTitle:   quiz.Title,
		Questions:   make([]domain.QuestionView, 0, len(quiz.Questions)),
	}
	for _, q := range quiz.Questions {
		qv := domain.QuestionView{
			ID:         q.ID,
			Text:       q.Text,
			Type:       q.Type,
			Difficulty: q.Difficulty,
			Answers:    make([]domain.AnswerView, 0, len(q.Answers)),
		}
		for _, a := range q.Answers {
			qv.Answers = append(qv.Answers, domain.AnswerView{ID: a.ID, Text: a.Text})
		}
		view.Questions = append(view.Questions, qv)
	}
	return view, nil
}

// SweepAbandoned abandons every in-progress, session-bound attempt whose session expired or
// ended before now. Failures for one record do not stop the pass.
func (s *AttemptService) SweepAbandoned(ctx context.Context, now time.Time) (int, error) {
	attempts, err := s.attempts.ListInProgressAttempts(ctx)
	if err != nil {
		return 0, err
	}

	// Sessions are looked up once per pass; nothing is kept between passes.
	sessions := make(map[string]*domain.QuizSession)
	count := 0
	var failures []error
	for _, attempt := range attempts {
		if !attempt.SessionBound() {
			continue
		}
		session, seen := sessions[attempt.SessionID]
		if !seen {
			session, err = s.lookupSession(ctx, attempt.SessionID, metrics.PathSweep)
			if err != nil {
				s.opts.Logger.Error("failed to load session for attempt",
					zap.String("attemptId", attempt.ID),
					zap.String("sessionId", attempt.SessionID),
					zap.Error(err),
				)
				failures = append(failures, err)
				continue
			}
			sessions[attempt.SessionID] = session
		}
		if !attempt.StaleUnder(session, now) {
			continue
		}

		err := s.opts.Retry.do(ctx, func(ctx context.Context) error {
			_, applied, err := s.abandon(ctx, attempt, metrics.PathSweep, now)
			if applied {
				count++
			}
			return err
		})
		if err != nil {
			s.opts.Logger.Error("failed to abandon quiz attempt",
				zap.String("attemptId", attempt.ID),
				zap.Error(err),
			)
			failures = append(failures, err)
		}
	}

	if count > 0 {
		s.opts.Logger.Info("abandoned quiz attempts with expired sessions", zap.Int("count", count))
	}
	return count, errors.Join(failures...)
}

// loadInProgress applies the shared preconditions of answer, save and submit: the attempt exists
// for this student, survives reconciliation, and is still IN_PROGRESS.
func (s *AttemptService) loadInProgress(ctx context.Context, attemptID, studentID string, now time.Time) (domain.QuizAttempt, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID, studentID)
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	attempt, live, err := s.reconcile(ctx, attempt, now)
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	if !live {
		return domain.QuizAttempt{}, notInProgress(attempt.Status)
	}
	return attempt, nil
}

// write persists an attempt whose stored status must still be expected. Losing that race is
// reported with the error matching the status that won.
func (s *AttemptService) write(ctx context.Context, attempt domain.QuizAttempt, expected domain.AttemptStatus) error {
	applied, err := s.attempts.UpdateAttempt(ctx, attempt, expected)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	current, err := s.attempts.GetAttempt(ctx, attempt.ID, attempt.StudentID)
	if err != nil {
		return err
	}
	return notInProgress(current.Status)
}

func notInProgress(status domain.AttemptStatus) error {
	if status == domain.AttemptAbandoned {
		return domain.ErrAttemptExpired
	}
	return domain.ErrAttemptNotInProgress
}

// reconcile is the lazy path for attempts. live reports whether the returned attempt is still
// IN_PROGRESS. A failed write of a just-discovered abandonment is logged; the caller still gets
// the ABANDONED attempt and the next sweep retries the write.
func (s *AttemptService) reconcile(ctx context.Context, attempt domain.QuizAttempt, now time.Time) (domain.QuizAttempt, bool, error) {
	if attempt.Status != domain.AttemptInProgress {
		return attempt, false, nil
	}
	if !attempt.SessionBound() {
		return attempt, true, nil
	}
	session, err := s.lookupSession(ctx, attempt.SessionID, metrics.PathLazy)
	if err != nil {
		return attempt, false, err
	}
	if !attempt.StaleUnder(session, now) {
		return attempt, true, nil
	}

	current, _, err := s.abandon(ctx, attempt, metrics.PathLazy, now)
	if err != nil {
		s.opts.Logger.Warn("could not persist attempt abandonment",
			zap.String("attemptId", attempt.ID),
			zap.Error(err),
		)
	}
	return current, current.Status == domain.AttemptInProgress, nil
}

// lookupSession re-reads the attempt's session, expiring it under path if it elapsed. A session
// that no longer exists yields nil.
func (s *AttemptService) lookupSession(ctx context.Context, sessionID, path string) (*domain.QuizSession, error) {
	session, err := s.sessions.session(ctx, sessionID, path)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// abandon applies IN_PROGRESS -> ABANDONED with a conditional write. When another caller moved
// the attempt first, the stored attempt is returned instead.
func (s *AttemptService) abandon(ctx context.Context, attempt domain.QuizAttempt, path string, now time.Time) (domain.QuizAttempt, bool, error) {
	abandoned := attempt
	if !abandoned.Abandon() {
		return attempt, false, nil
	}
	applied, err := s.attempts.UpdateAttempt(ctx, abandoned, domain.AttemptInProgress)
	if err != nil {
		return abandoned, false, err
	}
	if !applied {
		current, err := s.attempts.GetAttempt(ctx, attempt.ID, attempt.StudentID)
		if err != nil {
			return abandoned, false, err
		}
		return current, false, nil
	}

	s.opts.Metrics.AttemptAbandoned(path)
	s.publish(domain.EventAttemptAbandoned, abandoned, now)
	return abandoned, true, nil
}

func (s *AttemptService) results(ctx context.Context, attempt domain.QuizAttempt) (domain.AttemptResult, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	responses, err := s.responses.ListResponses(ctx, attempt.ID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	return BuildResults(quiz, attempt, responses), nil
}

func (s *AttemptService) publish(eventType domain.EventType, attempt domain.QuizAttempt, now time.Time) {
	if !attempt.SessionBound() {
		return
	}
	event := domain.Event{
		Type:      eventType,
		SessionID: attempt.SessionID,
		QuizID:    attempt.QuizID,
		AttemptID: attempt.ID,
		StudentID: attempt.StudentID,
		At:        now,
	}
	if attempt.Status.Finished() {
		score := attempt.Score
		event.Score = &score
	}
	s.opts.Events.Publish(event)
}
