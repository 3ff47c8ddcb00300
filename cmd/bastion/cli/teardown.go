package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	teardownUser  string
	teardownForce bool
)

var teardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Delete a user's sandbox and local state",
	Long: `Delete the user's sandbox on the control plane and remove all local
state for it. The remote delete is best-effort: a sandbox that is already
gone does not block cleanup of the local record.`,
	RunE: runTeardown,
}

func init() {
	rootCmd.AddCommand(teardownCmd)
	teardownCmd.Flags().StringVar(&teardownUser, "user", "", "user id")
	teardownCmd.Flags().BoolVarP(&teardownForce, "force", "f", false, "skip confirmation")
	teardownCmd.MarkFlagRequired("user")
}

func runTeardown(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if !teardownForce {
		fmt.Fprintf(cmd.OutOrStdout(), "delete sandbox for %s? [y/N] ", teardownUser)
		var answer string
		fmt.Fscanln(cmd.InOrStdin(), &answer)
		if answer != "y" && answer != "Y" {
			fmt.Fprintln(cmd.OutOrStdout(), "aborted")
			return nil
		}
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.orch.TeardownVM(ctx, teardownUser); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "sandbox removed")
	return nil
}
