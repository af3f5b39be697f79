package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <email>...",
	Short: "Probe mailboxes over SMTP",
	Long: `Resolves each address's mail exchange and asks it whether it would accept
mail for the address. No message is sent.

Example:
  ` + AppName + ` verify jane@example.com john@example.org`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		verifier, err := newVerifier(cfg)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "EMAIL\tOUTCOME\tEXCHANGE\tREASON")

		undeliverable := 0
		for _, email := range args {
			result := verifier.Verify(cmd.Context(), email)
			if !result.Deliverable {
				undeliverable++
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", email, result.Outcome, result.Exchange, result.Reason)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if undeliverable > 0 {
			return fmt.Errorf("%d of %d addresses are not deliverable", undeliverable, len(args))
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(verifyCmd)
}
