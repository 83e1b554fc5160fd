package abcli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ligadeals/ligadeals-web/internal/abtest"
	"github.com/ligadeals/ligadeals-web/internal/abtest/sqlitestore"
)

func (a *App) resultsCmd() *cobra.Command {
	var (
		clientID string
		all      bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "results [test]",
		Short: "Show impressions, conversions and rates per variant",
		Long: `Show results for one test, or every test with --all. Counters are summed
over all clients unless --client is given.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *sqlitestore.Store) error {
				report, err := a.collect(cmd.Context(), s, clientID)
				if err != nil {
					return err
				}
				if !all {
					report = map[string]map[string]abtest.Result{args[0]: report[args[0]]}
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(report)
				}
				printReport(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "only this client")
	cmd.Flags().BoolVar(&all, "all", false, "every test")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// collect returns testID -> variantID -> result summed over clients.
func (a *App) collect(ctx context.Context, s *sqlitestore.Store, clientID string) (map[string]map[string]abtest.Result, error) {
	parts := make(map[string][]map[string]abtest.Result)
	err := a.forClients(ctx, s, clientID, func(_ string, e *abtest.Engine) error {
		rs, err := e.AllTestResults(ctx)
		if err != nil {
			return err
		}
		for testID, byVariant := range rs {
			parts[testID] = append(parts[testID], byVariant)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]abtest.Result, len(parts))
	for testID, ps := range parts {
		out[testID] = abtest.Combine(ps...)
	}
	return out, nil
}

func printReport(w io.Writer, report map[string]map[string]abtest.Result) {
	testIDs := make([]string, 0, len(report))
	for id := range report {
		testIDs = append(testIDs, id)
	}
	sort.Strings(testIDs)

	for i, testID := range testIDs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "TEST: %s\n", testID)
		rs := report[testID]
		if len(rs) == 0 {
			fmt.Fprintln(w, "no data")
			continue
		}

		ids := make([]string, 0, len(rs))
		for id := range rs {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		leading := ids[0]
		for _, id := range ids {
			if rs[id].ConversionRate > rs[leading].ConversionRate {
				leading = id
			}
		}

		fmt.Fprintln(w, "VARIANT           IMPRESSIONS  CONVERSIONS  RATE     95% CI")
		fmt.Fprintln(w, strings.Repeat("─", 64))
		for _, id := range ids {
			r := rs[id]
			ci := "N/A"
			if r.Impressions > 0 {
				lo, hi := abtest.Wilson95(r.Conversions, r.Impressions)
				ci = fmt.Sprintf("[%.1f%%, %.1f%%]", lo*100, hi*100)
			}
			mark := ""
			if id == leading && len(ids) > 1 && r.ConversionRate > 0 {
				mark = " <- LEADING"
			}
			name := id
			if len(name) > 16 {
				name = name[:13] + "..."
			}
			fmt.Fprintf(w, "%-16s  %-11d  %-11d  %-7s  %s%s\n",
				name, r.Impressions, r.Conversions, fmt.Sprintf("%.2f%%", r.ConversionRate), ci, mark)
		}
	}
}
