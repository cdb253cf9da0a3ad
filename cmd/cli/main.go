package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dvloznov/ofx-ingest/internal/app"
	"github.com/dvloznov/ofx-ingest/internal/config"
	"github.com/dvloznov/ofx-ingest/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// cli carries what every subcommand needs.
type cli struct {
	out      io.Writer
	errOut   io.Writer
	logLevel string
	log      zerolog.Logger
	cfg      config.Config
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "ofx-ingest",
		Short:         "Ingest OFX bank statements and manage categorization rules",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.cfg = cfg

			level := cfg.Log.Level
			if c.logLevel != "" {
				level = c.logLevel
			}
			c.log = zerolog.New(zerolog.ConsoleWriter{Out: c.errOut, TimeFormat: time.RFC3339}).
				With().Timestamp().Logger().
				Level(logger.ParseLevel(level))
			cmd.SetContext(logger.WithContext(cmd.Context(), c.log))
			return nil
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		c.validateCmd(),
		c.ingestCmd(),
		c.recoverCmd(),
		c.uploadsCmd(),
		c.filesCmd(),
		c.rulesCmd(),
		c.migrateCmd(),
		c.warehouseCmd(),
	)
	return root
}

// open builds the application from the loaded configuration.
func (c *cli) open(ctx context.Context) (*app.App, error) {
	return app.Build(ctx, c.cfg, c.log)
}

// company resolves the --company flag against the configured default.
func (c *cli) company(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if c.cfg.Company.DefaultID == "" {
		return "", fmt.Errorf("no company given and company.default_id is not configured")
	}
	return c.cfg.Company.DefaultID, nil
}
