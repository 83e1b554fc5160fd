package abcli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/ligadeals/ligadeals-web/internal/abtest"
	"github.com/ligadeals/ligadeals-web/internal/abtest/sqlitestore"
	"github.com/ligadeals/ligadeals-web/internal/xerrors"
)

func (a *App) resetCmd() *cobra.Command {
	var (
		clientID string
		yes      bool
	)

	cmd := &cobra.Command{
		Use:   "reset <test>",
		Short: "Forget assignments and counters for a test",
		Long: `Remove every client's assignment and counters for <test>, or only
--client's. Asks for confirmation unless --yes is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			testID := args[0]
			if !yes {
				scope := "all clients"
				if clientID != "" {
					scope = "client " + clientID
				}
				ok, err := a.confirm(fmt.Sprintf("Reset %s for %s", testID, scope))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
			}

			return a.withStore(func(s *sqlitestore.Store) error {
				n := 0
				err := a.forClients(cmd.Context(), s, clientID, func(_ string, e *abtest.Engine) error {
					n++
					return e.ResetTest(cmd.Context(), testID)
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reset %s for %d client(s)\n", testID, n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "only this client")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func (a *App) confirm(label string) (bool, error) {
	if a.Confirm != nil {
		return a.Confirm(label)
	}
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Stdin:     a.In,
	}
	answer, err := prompt.Run()
	if err != nil {
		// promptui reports "no" as ErrAbort
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		if errors.Is(err, promptui.ErrInterrupt) {
			return false, xerrors.New("cancelled")
		}
		return false, err
	}
	return strings.EqualFold(answer, "y"), nil
}
