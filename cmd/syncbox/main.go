// Command syncbox manages a local sync outbox: it records pending operations,
// drains them to a remote over HTTP and serves an in-memory reference remote
// for development.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/velmie/syncbox/internal/config"
	"github.com/velmie/syncbox/internal/zaplog"
)

const exitUsage = 2

type app struct {
	cfg       config.Config
	logger    *zaplog.Logger
	lookupEnv func(string) (string, bool)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: config.Default()}
	err := newRootCmd(a).ExecuteContext(ctx)
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errUsage) {
			os.Exit(exitUsage)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("usage error")

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "syncbox",
		Short:         "Offline-first sync outbox",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	config.BindFlags(root.PersistentFlags(), &a.cfg)

	root.AddCommand(
		newEnqueueCmd(a),
		newDrainCmd(a),
		newRetryCmd(a),
		newListCmd(a),
		newStatsCmd(a),
		newClearDoneCmd(a),
		newPreviewCmd(a),
		newServeCmd(a),
		newBenchCmd(a),
	)

	return root
}

func (a *app) init(cmd *cobra.Command) error {
	if err := config.ApplyEnv(cmd.Flags(), a.lookupEnv); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if a.logger != nil {
		return nil
	}

	logger, _, err := zaplog.Build(zaplog.Config{Level: a.cfg.LogLevel, JSON: a.cfg.LogJSON})
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	a.logger = logger.With("component", "syncbox", "driver", a.cfg.DBDriver)

	return nil
}
