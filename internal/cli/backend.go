package cli

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
	"quiz-attempt-service/internal/infra/postgres"
	"quiz-attempt-service/internal/infra/redis"
)

// backend is the set of adapters selected by configuration: Postgres or the in-memory store for
// records, Redis or a local map for the quiz cache and sweep lock.
type backend struct {
	users     app.UserRepository
	quizzes   app.QuizRepository
	sessions  app.SessionRepository
	attempts  app.AttemptRepository
	responses app.ResponseRepository
	locker    app.Locker
	redis     *goredis.Client

	closers []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backend, error) {
	b := &backend{}
	var loader memory.QuizLoader

	if cfg.Postgres.URL != "" {
		db := openBun(cfg.Postgres.URL)
		b.closers = append(b.closers, func() { _ = db.Close() })

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)

		store := postgres.NewStore(db)
		b.users, b.sessions, b.attempts, b.responses = store, store, store, store
		loader = postgres.NewQuizLoader(pool)
		logger.Info("using postgres storage")
	} else {
		store := memory.NewStore()
		seedDemo(store)
		b.users, b.sessions, b.attempts, b.responses = store, store, store, store
		loader = store
		logger.Warn("postgres not configured, using in-memory storage with demo data")
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if cfg.Redis.Addr != "" {
		b.redis = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = b.redis.Close() })
		b.quizzes = redis.NewQuizCache(b.redis, loader, quizTTL)
		b.locker = redis.NewSweepLock(b.redis)
	} else {
		b.quizzes = memory.NewQuizCache(loader, quizTTL)
		b.locker = memory.NewLocker()
	}
	return b, nil
}

func openBun(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// services builds the lifecycle services over a backend.
func services(cfg config.Config, b *backend, opts app.Options) (*app.SessionService, *app.AttemptService) {
	sessions := app.NewSessionService(b.users, b.quizzes, b.sessions, opts).
		WithDefaultDuration(config.TTLDuration(cfg.Session.DefaultDuration, domain.DefaultSessionDuration))
	attempts := app.NewAttemptService(b.users, b.quizzes, b.attempts, b.responses, sessions, opts)
	return sessions, attempts
}

func retryPolicy(cfg config.Config) app.RetryPolicy {
	return app.RetryPolicy{
		MaxRetries:    cfg.Sweep.Retries(),
		RecordTimeout: config.TTLDuration(cfg.Sweep.RecordTimeout, 5*time.Second),
	}
}

func reconcilerConfig(cfg config.Config) app.ReconcilerConfig {
	return app.ReconcilerConfig{
		SessionInterval: config.TTLDuration(cfg.Sweep.SessionInterval, time.Minute),
		AttemptInterval: config.TTLDuration(cfg.Sweep.AttemptInterval, 5*time.Minute),
		LockTTL:         config.TTLDuration(cfg.Sweep.LockTTL, 0),
	}
}

// seedDemo provides a teacher, a student and one quiz so the in-memory mode is usable out of the box.
func seedDemo(store *memory.Store) {
	store.PutUser(domain.User{ID: "teacher-1", DisplayName: "Demo Teacher", Role: domain.RoleTeacher})
	store.PutUser(domain.User{ID: "student-1", DisplayName: "Demo Student", Role: domain.RoleStudent})
	store.PutQuiz(domain.Quiz{
		ID:      "quiz-1",
		Title:   "Warm-up",
		Status:  domain.QuizActive,
		OwnerID: "teacher-1",
		Questions: []domain.Question{
			{
				ID:   "q1",
				Text: "What is 2 + 2?",
				Type: "MULTIPLE_CHOICE",
				Answers: []domain.Answer{
					{ID: "q1-a1", Text: "3"},
					{ID: "q1-a2", Text: "4", IsCorrect: true},
					{ID: "q1-a3", Text: "5"},
				},
			},
			{
				ID:   "q2",
				Text: "Which planet is closest to the sun?",
				Type: "MULTIPLE_CHOICE",
				Answers: []domain.Answer{
					{ID: "q2-a1", Text: "Mercury", IsCorrect: true},
					{ID: "q2-a2", Text: "Venus"},
				},
			},
		},
	})
}
