package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/metrics"
)

// UserHeader carries the already-authenticated caller id.
const UserHeader = "X-User-ID"

// Handler maps HTTP requests onto the session and attempt services.
type Handler struct {
	sessions *app.SessionService
	attempts *app.AttemptService
	hub      *app.EventHub
	logger   *zap.Logger
	metrics  *metrics.Metrics
	limiter  *clientLimiter
	upgrader websocket.Upgrader
}

// Config tunes the transport. Zero values disable rate limiting.
type Config struct {
	AccessCodeRPS   float64
	AccessCodeBurst int
}

func NewHandler(sessions *app.SessionService, attempts *app.AttemptService, hub *app.EventHub, logger *zap.Logger, m *metrics.Metrics, cfg Config) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sessions: sessions,
		attempts: attempts,
		hub:      hub,
		logger:   logger,
		metrics:  m,
		limiter:  newClientLimiter(cfg.AccessCodeRPS, cfg.AccessCodeBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the chi router with the full route table.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.metrics.Middleware)
	r.Use(h.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws/sessions/{sessionID}", h.ServeSessionFeed)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.requireUser)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.createSession)
			r.With(h.limiter.middleware).Get("/validate", h.validateAccessCode)
			r.With(h.limiter.middleware).Get("/code/{code}", h.sessionByCode)
		})

		r.Route("/attempts", func(r chi.Router) {
			r.With(h.limiter.middleware).Post("/", h.startAttempt)
			r.Get("/in-progress", h.inProgressAttempts)
			r.Get("/completed", h.completedAttempts)
			r.Get("/{attemptID}", h.getAttempt)
			r.Post("/{attemptID}/responses", h.submitAnswer)
			r.Post("/{attemptID}/save-progress", h.saveProgress)
			r.Post("/{attemptID}/submit", h.submitAttempt)
			r.Get("/{attemptID}/results", h.results)
		})
	})
	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("requestId", middleware.GetReqID(r.Context())),
		)
	})
}

func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(UserHeader) == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing " + UserHeader})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userID(r *http.Request) string {
	return r.Header.Get(UserHeader)
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req app.CreateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	session, err := h.sessions.CreateSession(r.Context(), userID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) validateAccessCode(w http.ResponseWriter, r *http.Request) {
	valid, err := h.sessions.IsAccessCodeValid(r.Context(), r.URL.Query().Get("accessCode"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func (h *Handler) sessionByCode(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.ResolveByAccessCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type startAttemptRequest struct {
	QuizID     string `json:"quizId"`
	AccessCode string `json:"accessCode"`
}

func (h *Handler) startAttempt(w http.ResponseWriter, r *http.Request) {
	var req startAttemptRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	attempt, created, err := h.attempts.BeginAttempt(r.Context(), userID(r), req.QuizID, req.AccessCode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.writeAttemptView(w, r, status, attempt)
}

func (h *Handler) inProgressAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.attempts.ListInProgressAttempts(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *Handler) completedAttempts(w http.ResponseWriter, r *http.Request) {
	results, err := h.attempts.ListCompletedAttempts(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) getAttempt(w http.ResponseWriter, r *http.Request) {
	attempt, err := h.attempts.GetAttempt(r.Context(), chi.URLParam(r, "attemptID"), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeAttemptView(w, r, http.StatusOK, attempt)
}

// responseView leaves out correctness so answering does not reveal the key.
type responseView struct {
	ID           string    `json:"id"`
	AttemptID    string    `json:"attemptId"`
	QuestionID   string    `json:"questionId"`
	AnswerID     string    `json:"answerId"`
	ResponseTime int       `json:"responseTime"`
	AnsweredAt   time.Time `json:"answeredAt"`
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var submission app.AnswerSubmission
	if err := decodeJSON(r, &submission); err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := h.attempts.SubmitAnswer(r.Context(), chi.URLParam(r, "attemptID"), userID(r), submission)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, responseView{
		ID:           resp.ID,
		AttemptID:    resp.AttemptID,
		QuestionID:   resp.QuestionID,
		AnswerID:     resp.AnswerID,
		ResponseTime: resp.ResponseTime,
		AnsweredAt:   resp.AnsweredAt,
	})
}

func (h *Handler) saveProgress(w http.ResponseWriter, r *http.Request) {
	attempt, err := h.attempts.SaveProgress(r.Context(), chi.URLParam(r, "attemptID"), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeAttemptView(w, r, http.StatusOK, attempt)
}

type submitAttemptRequest struct {
	TotalTimeSeconds int `json:"totalTimeSeconds"`
}

func (h *Handler) submitAttempt(w http.ResponseWriter, r *http.Request) {
	var req submitAttemptRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	attempt, err := h.attempts.SubmitAttempt(r.Context(), chi.URLParam(r, "attemptID"), userID(r), req.TotalTimeSeconds)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

func (h *Handler) results(w http.ResponseWriter, r *http.Request) {
	result, err := h.attempts.GetResults(r.Context(), chi.URLParam(r, "attemptID"), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) writeAttemptView(w http.ResponseWriter, r *http.Request, status int, attempt domain.QuizAttempt) {
	view, err := h.attempts.Describe(r.Context(), attempt)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, status, view)
}
