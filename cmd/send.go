package cmd

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"outreach/utils"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Run a campaign without the OAuth flow",
	Long: `Runs a campaign from the command line through an SMTP relay, or renders
every message without delivering it.

Example:
  ` + AppName + ` send --file email-api.xlsx --transport smtp`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		transport, _ := cmd.Flags().GetString("transport")
		if file == "" {
			file = cfg.Campaign.RecipientsFile
		}

		var mailer utils.Mailer
		switch transport {
		case "smtp":
			if cfg.SMTP.Host == "" {
				return fmt.Errorf("SMTP_HOST is required for the smtp transport")
			}
			mailer = utils.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password)
		case "dry-run":
			mailer = &utils.DryRunMailer{Logger: componentLogger("dry-run")}
		default:
			return fmt.Errorf("unknown transport %q, want smtp or dry-run", transport)
		}

		recipients, err := recipientLoader(cfg, cfg.Campaign.StrictRecipients).LoadFile(file)
		if err != nil {
			return err
		}
		composer, err := newComposer(cfg)
		if err != nil {
			return err
		}
		deliveries, _, err := newDeliveryLog(cfg)
		if err != nil {
			return err
		}

		verifier, err := newVerifier(cfg)
		if err != nil {
			return err
		}

		hub := utils.NewProgressHub()
		events, unsubscribe := hub.Subscribe()
		bar := progressbar.NewOptions(len(recipients),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("Sending..."),
			progressbar.OptionShowCount(),
			progressbar.OptionShowElapsedTimeOnFinish(),
		)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range events {
				if ev.Email != "" {
					_ = bar.Set(ev.Done)
				}
			}
		}()

		factory := newWorkerFactory(cfg, workerDeps{
			composer:   composer,
			verifier:   verifier,
			deliveries: deliveries,
			progress:   hub,
		})
		cw := factory(mailer)
		cw.Source = file

		report, runErr := cw.Run(cmd.Context(), recipients)
		unsubscribe()
		<-done
		_ = bar.Finish()
		fmt.Println()

		if report != nil {
			fmt.Printf("Run %s: %d sent, %d failed, %d skipped of %d\n",
				report.RunID, report.Sent, report.Failed, report.Skipped, report.Total)
		}
		return runErr
	},
}

func init() {
	sendCmd.Flags().StringP("file", "f", "", "recipients file (.xlsx, .xlsm or .csv), defaults to CAMPAIGN_RECIPIENTS_FILE")
	sendCmd.Flags().StringP("transport", "t", "smtp", "mail transport: smtp or dry-run")
	RootCmd.AddCommand(sendCmd)
}
