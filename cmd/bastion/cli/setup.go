package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/majorcontext/bastion/internal/provider"
)

var (
	setupUser          string
	setupCredential    string
	setupProvider      string
	setupModel         string
	setupTelegramToken string
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Provision an agent VM for a user",
	Long: `Provision an agent VM: create the sandbox, install the agent runtime,
write the provider configuration and start the gateway.

The provider is detected from the credential's prefix. When a prefix is
shared by several providers, setup lists the candidates and asks for an
explicit --provider choice instead of guessing.

Setup is resumable: rerunning it continues from the first incomplete step.

Examples:
  bastion setup --user u1 --credential sk-ant-...
  bastion setup --user u1 --credential sk-...    --provider openai
  bastion setup --user u1 --credential sk-ant-... --telegram-token 123:abc`,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
	setupCmd.Flags().StringVar(&setupUser, "user", "", "user id to provision for")
	setupCmd.Flags().StringVar(&setupCredential, "credential", "", "provider API credential")
	setupCmd.Flags().StringVar(&setupProvider, "provider", "", "explicit provider id (required when detection is ambiguous)")
	setupCmd.Flags().StringVar(&setupModel, "model", "", "override the provider's default model")
	setupCmd.Flags().StringVar(&setupTelegramToken, "telegram-token", "", "Telegram bot token for the messaging channel")
	setupCmd.MarkFlagRequired("user")
}

func runSetup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if setupCredential != "" {
		providerID, err := resolveProvider(cmd, setupCredential, setupProvider)
		if err != nil {
			return err
		}
		if err := a.orch.SaveCredential(ctx, setupUser, providerID, setupCredential); err != nil {
			return err
		}
	}
	if setupTelegramToken != "" {
		if err := a.orch.SaveTelegramToken(ctx, setupUser, setupTelegramToken); err != nil {
			return err
		}
	}

	rec, err := a.orch.CreateVM(ctx, setupUser)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sandbox: %s\n", rec.SandboxID)

	if !rec.Status.RuntimeInstalled {
		if err := a.orch.InstallRuntime(ctx, setupUser); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "runtime installed")
	}
	if err := a.orch.ConfigureChannel(ctx, setupUser); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "channel configured")

	if err := a.orch.StartGateway(ctx, setupUser); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "gateway running")
	return nil
}

// resolveProvider applies the two-phase detection protocol: detect from the
// credential prefix, and when the prefix is shared by several providers,
// require an explicit choice rather than picking one.
func resolveProvider(cmd *cobra.Command, credential, explicit string) (string, error) {
	if explicit != "" {
		if provider.ByID(explicit) == nil {
			return "", fmt.Errorf("unknown provider %q, see `bastion providers`", explicit)
		}
		return explicit, nil
	}

	if desc := provider.Detect(credential); desc != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "detected provider: %s\n", desc.DisplayName)
		return desc.ID, nil
	}

	if candidates := provider.Ambiguous(credential); len(candidates) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "this credential could belong to several providers:")
		for _, c := range candidates {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s (%s)\n", c.ID, c.DisplayName)
		}
		return "", fmt.Errorf("rerun with --provider to choose one")
	}

	return "", fmt.Errorf("could not detect a provider from the credential, use --provider")
}
