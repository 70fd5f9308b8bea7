package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/privylens/privylens/internal/policy"
)

// errRejected makes the process exit non-zero without repeating the report.
var errRejected = errors.New("payload rejected")

var checkCmd = &cobra.Command{
	Use:   "check [text|-]",
	Short: "Check that text is masked; exits 1 when raw emails, cards or phones remain",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "check")
		defer span.End()

		text, err := readInput(cmd, args)
		if err != nil {
			return err
		}
		if err := policy.Check(text); err != nil {
			fmt.Fprintln(cmd.OutOrStdout(), "rejected:", err)
			return errRejected
		}
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
