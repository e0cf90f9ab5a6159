package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/selfcorrect/internal/prevention"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect prevention rules",
	}
	cmd.AddCommand(newRulesListCmd(), newRulesFeedbackCmd())
	return cmd
}

func newRulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List prevention rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, _, err := openSystem(cmd)
			if err != nil {
				return err
			}
			defer sys.Close()

			rules := prevention.Rules(sys.Ledger())
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return printJSON(cmd, map[string]interface{}{
					"rules": rules,
					"count": len(rules),
				})
			}
			out := cmd.OutOrStdout()
			if len(rules) == 0 {
				fmt.Fprintln(out, "No prevention rules.")
				return nil
			}
			for _, r := range rules {
				fmt.Fprintf(out, "%s  %s / %s  seen %dx  confidence %.2f  effectiveness %.2f\n",
					r.ID, r.Trigger, r.Condition, r.Occurrences, r.Confidence, r.Effectiveness)
			}
			return nil
		},
	}
}

func newRulesFeedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback <rule-id>",
		Short: "Report whether a rule prevented a recurrence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, _, err := openSystem(cmd)
			if err != nil {
				return err
			}
			defer sys.Close()

			prevented, _ := cmd.Flags().GetBool("prevented")
			rule, err := sys.Prevention().RecordOutcome(cmd.Context(), args[0], prevented)
			if err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return printJSON(cmd, rule)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rule %s effectiveness is now %.2f\n", rule.ID, rule.Effectiveness)
			return nil
		},
	}
	cmd.Flags().Bool("prevented", false, "The rule prevented the issue from recurring")
	return cmd
}
