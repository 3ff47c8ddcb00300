package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/majorcontext/bastion/internal/store"
)

var statusUser string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show provisioning progress and gateway health for a user",
	Long: `Show which provisioning steps have completed and probe the sandbox for
gateway health: process liveness, listening port, startup script and the
tail of the gateway log. The probe is read-only.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusUser, "user", "", "user id")
	statusCmd.MarkFlagRequired("user")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	rec, err := a.records.Get(ctx, statusUser)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Fprintln(cmd.OutOrStdout(), "no sandbox for this user")
		return nil
	}
	if err != nil {
		return err
	}

	if jsonOut {
		out := map[string]any{
			"sandboxId": rec.SandboxID,
			"provider":  rec.Provider,
			"status":    rec.Status,
		}
		if rec.Status.GatewayStarted {
			if gw, err := a.orch.CheckGatewayStatus(ctx, statusUser); err == nil {
				out["gateway"] = gw
			}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "sandbox:   %s\n", rec.SandboxID)
	fmt.Fprintf(cmd.OutOrStdout(), "provider:  %s\n", rec.Provider)
	fmt.Fprintf(cmd.OutOrStdout(), "  vm created:          %s\n", check(rec.Status.VMCreated))
	fmt.Fprintf(cmd.OutOrStdout(), "  runtime installed:   %s\n", check(rec.Status.RuntimeInstalled))
	fmt.Fprintf(cmd.OutOrStdout(), "  channel configured:  %s\n", check(rec.Status.TelegramConfigured))
	fmt.Fprintf(cmd.OutOrStdout(), "  gateway started:     %s\n", check(rec.Status.GatewayStarted))
	if rec.Status.LastError != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "  last error: %s\n", rec.Status.LastError)
	}

	if rec.SandboxID == "" {
		return nil
	}

	gw, err := a.orch.CheckGatewayStatus(ctx, statusUser)
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "gateway probe failed: %v\n", err)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "gateway:\n")
	fmt.Fprintf(cmd.OutOrStdout(), "  running:        %s\n", check(gw.Running))
	fmt.Fprintf(cmd.OutOrStdout(), "  port listening: %s\n", check(gw.PortListening))
	fmt.Fprintf(cmd.OutOrStdout(), "  start script:   %s\n", check(gw.ScriptPresent))
	if gw.ProcessDetail != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "  process: %s\n", gw.ProcessDetail)
	}
	if gw.LogTail != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "--- log tail ---\n%s\n", gw.LogTail)
	}
	return nil
}

func check(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}
