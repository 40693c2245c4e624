package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/billbatista/rateio/settlement"
	"github.com/spf13/cobra"
)

var (
	snapshotPath string
	jsonOutput   bool
	strict       bool
)

var settleCmd = &cobra.Command{
	Use:   "settle",
	Short: "Compute balances and transfers for a snapshot file",
	Example: `  rateio settle --file trip.toml
  rateio settle --file trip.yaml --json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		snap, err := readSnapshot(snapshotPath)
		if err != nil {
			return err
		}
		in, err := snap.input()
		if err != nil {
			return err
		}
		summary, err := settlement.Summarize(in)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return err
			}
		} else if err := printSummary(out, snap.Currency, summary); err != nil {
			return err
		}

		if !summary.Balanced {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: balances do not reconcile, residual %s\n", summary.Residual.StringFixed(2))
			if strict {
				return fmt.Errorf("%w: residual %s", settlement.ErrUnbalanced, summary.Residual.StringFixed(2))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(settleCmd)

	settleCmd.Flags().StringVarP(&snapshotPath, "file", "f", "", "Snapshot file (.toml or .yaml).")
	settleCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the summary as JSON.")
	settleCmd.Flags().BoolVar(&strict, "strict", false, "Fail when the balances do not reconcile.")
	settleCmd.MarkFlagRequired("file")
}

func printSummary(w io.Writer, currency string, s settlement.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)

	fmt.Fprintf(tw, "Total expenses\t%s %s\t\n", s.TotalExpenses.StringFixed(2), currency)
	fmt.Fprintf(tw, "Contributions\t%s %s\t\n", s.TotalContributions.StringFixed(2), currency)
	fmt.Fprintf(tw, "Net expense\t%s %s\t\n", s.NetExpense.StringFixed(2), currency)
	if s.Surplus.IsPositive() {
		fmt.Fprintf(tw, "Surplus\t%s %s\t\n", s.Surplus.StringFixed(2), currency)
	}
	fmt.Fprintf(tw, "Share per participant\t%s %s\t\n", s.SharePerParticipant.StringFixed(2), currency)
	fmt.Fprintln(tw, "\t\t")

	fmt.Fprintln(tw, "Participant\tPaid\tDeposit\tShare\tBalance\tStatus\t")
	for _, b := range s.Balances {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			b.Name,
			b.Paid.StringFixed(2),
			b.Deposit.StringFixed(2),
			b.Share.StringFixed(2),
			b.Balance.StringFixed(2),
			b.Status(),
		)
	}

	if len(s.Instructions) > 0 {
		fmt.Fprintln(tw, "\t\t")
		fmt.Fprintln(tw, "From\tTo\tAmount\t")
		for _, in := range s.Instructions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t\n", in.From, in.To, in.Amount.StringFixed(2))
		}
	}

	return tw.Flush()
}
