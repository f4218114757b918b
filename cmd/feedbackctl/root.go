package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ekaya-inc/ekaya-feedback/pkg/app"
	"github.com/ekaya-inc/ekaya-feedback/pkg/config"
)

// loadConfig is replaced in tests.
var loadConfig = config.Load

type rootOptions struct {
	output  string
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "feedbackctl",
		Short: "Ingest, import and query customer feedback",
		Long: `feedbackctl works against the same database and AI provider settings as the
ekaya-feedback server. Configuration comes from config.yaml or the environment.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOutput(opts.output)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", outputText, "output format (text, json, yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")

	cmd.AddCommand(ingestCmd(opts))
	cmd.AddCommand(importCmd(opts))
	cmd.AddCommand(searchCmd(opts))
	cmd.AddCommand(askCmd(opts))
	cmd.AddCommand(alertsCmd(opts))
	cmd.AddCommand(statsCmd(opts))
	cmd.AddCommand(topicCmd(opts))
	cmd.AddCommand(classifyCmd(opts))
	cmd.AddCommand(reclassifyCmd(opts))
	cmd.AddCommand(migrateCmd(opts))
	cmd.AddCommand(seedCmd(opts))

	return cmd
}

func (o *rootOptions) newLogger() (*zap.Logger, error) {
	if o.verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.Encoding = "console"
	cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	return cfg.Build()
}

// withApp loads configuration, builds the application and closes it once fn returns.
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(Version)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := o.newLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer func() {
		if err := a.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Shutdown incomplete", zap.Error(err))
		}
	}()

	return fn(ctx, a)
}
