package abcli

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ligadeals/ligadeals-web/internal/abtest"
	"github.com/ligadeals/ligadeals-web/internal/abtest/sqlitestore"
	"github.com/ligadeals/ligadeals-web/internal/xerrors"
)

func (a *App) assignCmd() *cobra.Command {
	var testFile, clientID string

	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign a client to a variant of a test",
		Long: `Resolve the client's variant for the test in --test, drawing one by weight
when the client has none yet. New assignments count one impression.

Example:
  abctl assign --test hero-cta.json --client 4f0c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(testFile)
			if err != nil {
				return xerrors.Wrap(err, "open test definition")
			}
			defer f.Close()
			t, err := abtest.DecodeTest(f, nil)
			if err != nil {
				return err
			}

			if clientID == "" {
				clientID = a.newClientID()
			}
			return a.withStore(func(s *sqlitestore.Store) error {
				v, err := a.engine(s.Client(clientID)).Variant(cmd.Context(), t)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "client %s: %s -> %s (%q)\n", clientID, t.ID, v.ID, v.Value)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&testFile, "test", "", "test definition JSON file (required)")
	cmd.Flags().StringVar(&clientID, "client", "", "client id (default: a new random id)")
	_ = cmd.MarkFlagRequired("test")
	return cmd
}

func (a *App) newClientID() string {
	if a.NewClientID != nil {
		return a.NewClientID()
	}
	return uuid.NewString()
}

func (a *App) convertCmd() *cobra.Command {
	var clientID string

	cmd := &cobra.Command{
		Use:   "convert <test> [variant]",
		Short: "Record a conversion for a client",
		Long: `Count one conversion for the client's variant, or for [variant] when given.
Nothing is recorded when the client was never assigned or has no impression
for that variant.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			testID := args[0]
			variantID := ""
			if len(args) == 2 {
				variantID = args[1]
			}
			return a.withStore(func(s *sqlitestore.Store) error {
				e := a.engine(s.Client(clientID))
				before, err := e.TestResults(cmd.Context(), testID)
				if err != nil {
					return err
				}
				if err := e.TrackConversion(cmd.Context(), testID, variantID); err != nil {
					return err
				}
				after, err := e.TestResults(cmd.Context(), testID)
				if err != nil {
					return err
				}
				if conversions(after) == conversions(before) {
					fmt.Fprintf(cmd.OutOrStdout(), "no impression for client %s in %s; nothing recorded\n", clientID, testID)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "conversion recorded for client %s in %s\n", clientID, testID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "client id (required)")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

func conversions(rs map[string]abtest.Result) int64 {
	var n int64
	for _, r := range rs {
		n += r.Conversions
	}
	return n
}
