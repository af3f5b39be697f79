package cmd

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"outreach/utils"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Load a recipients file and probe every mailbox",
	Long: `Loads the recipients file the way a campaign would and verifies each
address, without sending anything.

Example:
  ` + AppName + ` check --file email-api.xlsx --permissive`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		permissive, _ := cmd.Flags().GetBool("permissive")
		if file == "" {
			file = cfg.Campaign.RecipientsFile
		}

		recipients, err := recipientLoader(cfg, !permissive).LoadFile(file)
		if err != nil {
			return err
		}
		fmt.Printf("Loaded %d recipients from %s\n", len(recipients), file)
		if len(recipients) == 0 {
			return nil
		}

		verifier, err := newVerifier(cfg)
		if err != nil {
			return err
		}
		bar := progressbar.NewOptions(len(recipients),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("Verifying..."),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionShowCount(),
			progressbar.OptionShowElapsedTimeOnFinish(),
		)

		counts := map[utils.VerificationOutcome]int{}
		var undeliverable []utils.VerificationResult
		for _, r := range recipients {
			if err := cmd.Context().Err(); err != nil {
				return err
			}
			result := verifier.Verify(cmd.Context(), r.Email)
			counts[result.Outcome]++
			if !result.Deliverable {
				undeliverable = append(undeliverable, result)
			}
			_ = bar.Add(1)
		}
		_ = bar.Finish()
		fmt.Println()

		for _, outcome := range []utils.VerificationOutcome{
			utils.OutcomeDeliverable,
			utils.OutcomeRejected,
			utils.OutcomeMXMissing,
			utils.OutcomeTransportError,
		} {
			fmt.Printf("%-16s %d\n", outcome, counts[outcome])
		}
		for _, r := range undeliverable {
			fmt.Printf("  %s: %s (%s)\n", r.Email, r.Outcome, r.Reason)
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().StringP("file", "f", "", "recipients file (.xlsx, .xlsm or .csv), defaults to CAMPAIGN_RECIPIENTS_FILE")
	checkCmd.Flags().Bool("permissive", false, "keep rows whose email fails the syntax check")
	RootCmd.AddCommand(checkCmd)
}
