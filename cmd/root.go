package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"outreach/config"
	"outreach/utils"
)

const AppName = "outreach"

var (
	envFile string
	cfg     *config.Config
	logger  *logrus.Logger
)

// RootCmd starts the HTTP server when called without a subcommand
var RootCmd = &cobra.Command{
	Use:   AppName,
	Short: "Email outreach campaign trigger",
	Long: `Loads recipients from a spreadsheet, optionally probes each mailbox over SMTP
and sends a templated email to every recipient at a fixed pace.

Without a subcommand the HTTP server is started; a campaign is triggered by
completing the Google consent flow at /auth/google.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}
		if err := config.LoadEnvFile(envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		loaded, err := config.LoadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
		logger = utils.NewLogger(cfg.LogLevel, cfg.LogFormat)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := RootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "additional .env file loaded on top of the environment")
}

func componentLogger(name string) *logrus.Entry {
	return logger.WithField("component", name)
}
