package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/metrics"
)

// maxCodeAttempts bounds access-code generation when codes keep colliding.
const maxCodeAttempts = 10

// CreateSessionRequest describes a new quiz session. A zero DurationMinutes selects the default
// duration; an empty AccessCode asks the service to generate one.
type CreateSessionRequest struct {
	QuizID          string `json:"quizId"`
	DurationMinutes int    `json:"durationMinutes"`
	AccessCode      string `json:"accessCode"`
}

// SessionService owns session creation and the ACTIVE -> EXPIRED transition.
type SessionService struct {
	users           UserRepository
	quizzes         QuizRepository
	sessions        SessionRepository
	defaultDuration time.Duration
	opts            Options
}

func NewSessionService(users UserRepository, quizzes QuizRepository, sessions SessionRepository, opts Options) *SessionService {
	return &SessionService{
		users:           users,
		quizzes:         quizzes,
		sessions:        sessions,
		defaultDuration: domain.DefaultSessionDuration,
		opts:            opts.withDefaults(),
	}
}

// WithDefaultDuration overrides the duration used when a request does not specify one.
func (s *SessionService) WithDefaultDuration(d time.Duration) *SessionService {
	if d > 0 {
		s.defaultDuration = d
	}
	return s
}

// CreateSession opens a new ACTIVE session for a quiz the teacher owns. A stale ACTIVE session
// found on the way is expired first; a live one is a conflict.
func (s *SessionService) CreateSession(ctx context.Context, teacherID string, req CreateSessionRequest) (domain.QuizSession, error) {
	if req.QuizID == "" {
		return domain.QuizSession{}, domain.ErrMissingQuiz
	}
	if req.DurationMinutes < 0 {
		return domain.QuizSession{}, domain.ErrInvalidDuration
	}
	requestedCode := ""
	if req.AccessCode != "" {
		code, err := NormalizeAccessCode(req.AccessCode)
		if err != nil {
			return domain.QuizSession{}, err
		}
		requestedCode = code
	}

	teacher, err := s.users.GetUser(ctx, teacherID)
	if err != nil {
		return domain.QuizSession{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, req.QuizID)
	if err != nil {
		return domain.QuizSession{}, err
	}
	if teacher.Role != domain.RoleTeacher || quiz.OwnerID != teacher.ID {
		return domain.QuizSession{}, domain.ErrNotQuizOwner
	}
	if !quiz.Attemptable() {
		return domain.QuizSession{}, domain.ErrQuizNotAttemptable
	}

	now := s.opts.Clock()
	existing, err := s.sessions.FindActiveSession(ctx, quiz.ID)
	switch {
	case err == nil:
		if !existing.Elapsed(now) {
			return domain.QuizSession{}, domain.ErrSessionAlreadyActive
		}
		if _, _, err := s.expire(ctx, existing, now, metrics.PathLazy); err != nil {
			return domain.QuizSession{}, err
		}
	case !errors.Is(err, domain.ErrNotFound):
		return domain.QuizSession{}, err
	}

	code, err := s.accessCode(ctx, requestedCode)
	if err != nil {
		return domain.QuizSession{}, err
	}

	duration := s.defaultDuration
	if req.DurationMinutes > 0 {
		duration = time.Duration(req.DurationMinutes) * time.Minute
	}
	session := domain.QuizSession{
		ID:         uuid.NewString(),
		QuizID:     quiz.ID,
		CreatedBy:  teacherID,
		AccessCode: code,
		StartTime:  now,
		EndTime:    now.Add(duration),
		Status:     domain.SessionActive,
		CreatedAt:  now,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return domain.QuizSession{}, err
	}

	s.opts.Logger.Info("quiz session created",
		zap.String("sessionId", session.ID),
		zap.String("quizId", quiz.ID),
		zap.String("accessCode", session.AccessCode),
		zap.Duration("duration", duration),
	)
	s.opts.Events.Publish(domain.Event{
		Type:      domain.EventSessionCreated,
		SessionID: session.ID,
		QuizID:    session.QuizID,
		At:        now,
	})
	return session, nil
}

// accessCode returns the requested code if it is free, or a freshly generated unique one.
// Uniqueness is checked against every session, expired ones included.
func (s *SessionService) accessCode(ctx context.Context, requested string) (string, error) {
	if requested != "" {
		taken, err := s.sessions.AccessCodeExists(ctx, requested)
		if err != nil {
			return "", err
		}
		if taken {
			return "", domain.ErrAccessCodeTaken
		}
		return requested, nil
	}
	for i := 0; i < maxCodeAttempts; i++ {
		code := s.opts.AccessCodes()
		taken, err := s.sessions.AccessCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", domain.ErrAccessCodeTaken
}

// ResolveByAccessCode finds the session behind a code. An ACTIVE session whose window has
// elapsed is returned as EXPIRED.
func (s *SessionService) ResolveByAccessCode(ctx context.Context, rawCode string) (domain.QuizSession, error) {
	code, err := NormalizeAccessCode(rawCode)
	if err != nil {
		return domain.QuizSession{}, err
	}
	session, err := s.sessions.GetSessionByAccessCode(ctx, code)
	if err != nil {
		return domain.QuizSession{}, err
	}
	return s.reconcile(ctx, session, s.opts.Clock(), metrics.PathLazy), nil
}

// IsAccessCodeValid reports whether a code belongs to a session that is open right now.
// Unknown or malformed codes are simply invalid.
func (s *SessionService) IsAccessCodeValid(ctx context.Context, rawCode string) (bool, error) {
	session, err := s.ResolveByAccessCode(ctx, rawCode)
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return session.Open(s.opts.Clock()), nil
}

// Session loads a session by id with the same lazy expiration as ResolveByAccessCode.
func (s *SessionService) Session(ctx context.Context, sessionID string) (domain.QuizSession, error) {
	return s.session(ctx, sessionID, metrics.PathLazy)
}

// session loads and reconciles a session, counting an expiry it applies under path.
func (s *SessionService) session(ctx context.Context, sessionID, path string) (domain.QuizSession, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return domain.QuizSession{}, err
	}
	return s.reconcile(ctx, session, s.opts.Clock(), path), nil
}

// Subscribe returns the current session snapshot and a stream of its lifecycle events.
func (s *SessionService) Subscribe(ctx context.Context, hub *EventHub, sessionID string) (domain.QuizSession, <-chan domain.Event, func(), error) {
	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return domain.QuizSession{}, nil, nil, err
	}
	ch, cancel := hub.Subscribe(sessionID)
	return session, ch, cancel, nil
}

// SweepExpired expires every ACTIVE session whose window ended before now. A record that cannot
// be persisted within the retry budget is logged and skipped; the joined failures are returned
// alongside the count of sessions this pass transitioned.
func (s *SessionService) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	active, err := s.sessions.ListActiveSessions(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	var failures []error
	for _, session := range active {
		if !session.Elapsed(now) {
			continue
		}
		err := s.opts.Retry.do(ctx, func(ctx context.Context) error {
			_, applied, err := s.expire(ctx, session, now, metrics.PathSweep)
			if applied {
				count++
			}
			return err
		})
		if err != nil {
			s.opts.Logger.Error("failed to expire quiz session",
				zap.String("sessionId", session.ID),
				zap.Error(err),
			)
			failures = append(failures, err)
		}
	}

	if count > 0 {
		s.opts.Logger.Info("expired quiz sessions", zap.Int("count", count))
	}
	return count, errors.Join(failures...)
}

// reconcile lets the caller see the correct status even when persisting the transition fails and
// has to wait for the next sweep.
func (s *SessionService) reconcile(ctx context.Context, session domain.QuizSession, now time.Time, path string) domain.QuizSession {
	expired, _, err := s.expire(ctx, session, now, path)
	if err != nil {
		s.opts.Logger.Warn("could not persist session expiration",
			zap.String("sessionId", session.ID),
			zap.Error(err),
		)
	}
	return expired
}

// expire applies ACTIVE -> EXPIRED to an elapsed session with a conditional write. applied is
// false when there was nothing to do or another caller got there first.
func (s *SessionService) expire(ctx context.Context, session domain.QuizSession, now time.Time, path string) (domain.QuizSession, bool, error) {
	if !session.Expire(now) {
		return session, false, nil
	}
	applied, err := s.sessions.UpdateSessionStatus(ctx, session.ID, domain.SessionActive, domain.SessionExpired)
	if err != nil {
		return session, false, err
	}
	if applied {
		s.opts.Metrics.SessionExpired(path)
		s.opts.Events.Publish(domain.Event{
			Type:      domain.EventSessionExpired,
			SessionID: session.ID,
			QuizID:    session.QuizID,
			At:        now,
		})
	}
	return session, applied, nil
}
