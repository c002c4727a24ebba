package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/infra/redis"
	"quiz-attempt-service/internal/logging"
)

// newSweepCmd runs a single reconciliation pass, for cron-style deployments that disable the
// in-process sweeps.
func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire elapsed sessions and abandon stale attempts once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			b, err := openBackend(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			opts := app.Options{Logger: logger, Retry: retryPolicy(cfg)}
			if b.redis != nil {
				opts.Events = redis.NewEventBus(b.redis, redis.DefaultEventChannel, logger.Named("events"))
			}
			sessions, attempts := services(cfg, b, opts)

			reconciler := app.NewReconciler(sessions, attempts, b.locker, reconcilerConfig(cfg), opts)
			expired, abandoned := reconciler.RunOnce(ctx)
			logger.Info("sweep complete", zap.Int("sessionsExpired", expired), zap.Int("attemptsAbandoned", abandoned))
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d sessions, abandoned %d attempts\n", expired, abandoned)
			return nil
		},
	}
}
