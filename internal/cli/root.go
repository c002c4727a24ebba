package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"quiz-attempt-service/internal/config"
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "quiz-attempt-service",
		Short:         "Quiz sessions and attempts with expiration reconciliation",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "path to YAML config (env QUIZ_CONFIG)")
	flags.String("port", "", "port to listen on, overrides server.port")
	flags.String("postgres-url", "", "Postgres DSN, overrides postgres.url")
	flags.String("redis-addr", "", "Redis address, overrides redis.addr")
	flags.String("log-level", "", "log level, overrides log.level")

	cmd.AddCommand(newStartCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newSweepCmd())
	return cmd
}

// viperForCmd binds a command's flags and QUIZ_* environment variables to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())
	v.SetEnvPrefix("QUIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// loadConfig reads the YAML file named by --config and applies flag/env overrides on top.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	v := viperForCmd(cmd)

	cfg, err := config.Load(v.GetString("config"))
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if port := v.GetString("port"); port != "" {
		cfg.Server.Port = port
	}
	if url := v.GetString("postgres-url"); url != "" {
		cfg.Postgres.URL = url
	}
	if addr := v.GetString("redis-addr"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if level := v.GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	return cfg, nil
}
