package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bolsa-empleo/portal/internal/rbac"
)

func newRoutesCommand() *cobra.Command {
	var rulesFile string
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Print the effective route guard table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rulesFile == "" {
				rulesFile = os.Getenv("ROUTE_RULES_FILE")
			}
			rules, err := loadRules(rulesFile)
			if err != nil {
				return err
			}
			return printRules(cmd.OutOrStdout(), rules)
		},
	}
	cmd.Flags().StringVar(&rulesFile, "rules", "", "YAML rule file, defaults to ROUTE_RULES_FILE or the built-in table")
	return cmd
}

func printRules(out io.Writer, rules rbac.Rules) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tPREFIX\tROLES")
	for i, rule := range rules.List() {
		roles := make([]string, 0, len(rule.Roles))
		for _, role := range rule.Roles {
			roles = append(roles, role.String())
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, rule.Prefix, strings.Join(roles, ", "))
	}
	if rules.Len() == 0 {
		fmt.Fprintln(tw, "-\t(none)\tevery path allowed")
	}
	return tw.Flush()
}
