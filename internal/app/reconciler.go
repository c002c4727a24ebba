package app

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sweep names, used for lock keys and metric labels.
const (
	SweepSessions = "sessions"
	SweepAttempts = "attempts"
)

// Locker grants a best-effort exclusive lease so that only one replica runs a sweep at a time.
// ok is false when someone else holds the lease.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type ReconcilerConfig struct {
	SessionInterval time.Duration
	AttemptInterval time.Duration
	LockTTL         time.Duration
}

func (c ReconcilerConfig) withDefaults() ReconcilerConfig {
	if c.SessionInterval <= 0 {
		c.SessionInterval = time.Minute
	}
	if c.AttemptInterval <= 0 {
		c.AttemptInterval = 5 * time.Minute
	}
	if c.LockTTL <= 0 {
		c.LockTTL = c.SessionInterval
	}
	return c
}

// Reconciler periodically drives the session and attempt sweeps. It is a backstop: lazy
// reconciliation already keeps reads correct, the sweeps keep storage from drifting.
type Reconciler struct {
	sessions *SessionService
	attempts *AttemptService
	locker   Locker
	cfg      ReconcilerConfig
	opts     Options
}

// NewReconciler wires the sweeps. A nil locker runs every pass unconditionally.
func NewReconciler(sessions *SessionService, attempts *AttemptService, locker Locker, cfg ReconcilerConfig, opts Options) *Reconciler {
	return &Reconciler{
		sessions: sessions,
		attempts: attempts,
		locker:   locker,
		cfg:      cfg.withDefaults(),
		opts:     opts.withDefaults(),
	}
}

// Run ticks both sweeps until ctx is done. The two schedules are independent.
func (r *Reconciler) Run(ctx context.Context) error {
	r.opts.Logger.Info("reconciler started",
		zap.Duration("sessionInterval", r.cfg.SessionInterval),
		zap.Duration("attemptInterval", r.cfg.AttemptInterval),
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.loop(ctx, r.cfg.SessionInterval, r.SweepSessions)
		return nil
	})
	g.Go(func() error {
		r.loop(ctx, r.cfg.AttemptInterval, r.SweepAttempts)
		return nil
	})
	err := g.Wait()
	r.opts.Logger.Info("reconciler stopped")
	return err
}

func (r *Reconciler) loop(ctx context.Context, every time.Duration, sweep func(context.Context) int) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep(ctx)
		}
	}
}

// RunOnce runs the session sweep and then the attempt sweep, so attempts see sessions that
// expired in the same pass.
func (r *Reconciler) RunOnce(ctx context.Context) (sessions, attempts int) {
	return r.SweepSessions(ctx), r.SweepAttempts(ctx)
}

// SweepSessions runs one session pass and returns the number of sessions expired.
func (r *Reconciler) SweepSessions(ctx context.Context) int {
	return r.run(ctx, SweepSessions, r.sessions.SweepExpired)
}

// SweepAttempts runs one attempt pass and returns the number of attempts abandoned.
func (r *Reconciler) SweepAttempts(ctx context.Context) int {
	return r.run(ctx, SweepAttempts, r.attempts.SweepAbandoned)
}

func (r *Reconciler) run(ctx context.Context, name string, sweep func(context.Context, time.Time) (int, error)) int {
	start := time.Now()
	log := r.opts.Logger.With(zap.String("sweep", name))

	if r.locker != nil {
		release, ok, err := r.locker.TryLock(ctx, "quiz:sweep:"+name, r.cfg.LockTTL)
		if err != nil {
			log.Warn("sweep lock unavailable", zap.Error(err))
			r.opts.Metrics.ObserveSweep(name, "lock_error", time.Since(start))
			return 0
		}
		if !ok {
			log.Debug("sweep held by another instance")
			r.opts.Metrics.ObserveSweep(name, "skipped", time.Since(start))
			return 0
		}
		defer release()
	}

	count, err := sweep(ctx, r.opts.Clock())
	outcome := "ok"
	if err != nil {
		outcome = "partial"
		log.Error("sweep finished with failures", zap.Int("count", count), zap.Error(err))
	}
	r.opts.Metrics.ObserveSweep(name, outcome, time.Since(start))
	return count
}
