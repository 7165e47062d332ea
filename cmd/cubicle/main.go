// Command cubicle is the thin CLI binary over the internal/cubicle
// core: a cobra command tree that loads config, opens the state
// store/index/resolver/builder/composer, and dispatches to one
// operation per invocation, in the same shape as the teacher's
// cmd/cli/main.go.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ongardie/cubicle/internal/logging"
)

const defaultLogLevel = "info"

func main() {
	var levelVar slog.LevelVar
	levelVar.Set(slog.LevelInfo)

	logger := logging.NewCLI(os.Stderr, &levelVar)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(logger, &levelVar)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("command interrupted", "error", err)
			os.Exit(130)
		}
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand(logger *slog.Logger, levelVar *slog.LevelVar) *cobra.Command {
	var (
		logLevel   string
		configPath string
	)

	root := &cobra.Command{
		Use:           "cub",
		Short:         "Manage lightweight isolated development environments built from cached, reproducible packages",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", defaultLogLevel, "Set log verbosity (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to the cubicle config file (default: $XDG_CONFIG_HOME/cubicle/cubicle.yaml)")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level, err := parseLogLevel(logLevel)
		if err != nil {
			return err
		}
		levelVar.Set(level)
		return nil
	}

	env := &cliEnv{logger: logger, configPathFlag: &configPath}

	root.AddCommand(
		newListCommand(env),
		newNewCommand(env),
		newResetCommand(env),
		newTmpCommand(env),
		newPurgeCommand(env),
		newEnterCommand(env),
		newExecCommand(env),
		newPackageCommand(env),
		newCompletionsCommand(root),
	)
	return root
}

func parseLogLevel(value string) (slog.Level, error) {
	switch value {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error", "err":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.New("unknown log level " + value)
	}
}
