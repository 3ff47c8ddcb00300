package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/majorcontext/bastion/internal/provider"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List supported inference providers",
	RunE:  runProviders,
}

var providersDetectCmd = &cobra.Command{
	Use:   "detect <credential>",
	Short: "Detect which provider issued a credential",
	Long: `Detect the provider from a credential's prefix. When the prefix is
shared by several providers the full candidate set is printed; pass the
chosen id to setup with --provider.`,
	Args: cobra.ExactArgs(1),
	RunE: runProvidersDetect,
}

func init() {
	rootCmd.AddCommand(providersCmd)
	providersCmd.AddCommand(providersDetectCmd)
}

func runProviders(cmd *cobra.Command, args []string) error {
	descriptors := provider.List()

	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(descriptors)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDEFAULT MODEL\tPREFIXES")
	for _, d := range descriptors {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.DisplayName, d.DefaultModel,
			strings.Join(d.Prefixes, ", "))
	}
	return w.Flush()
}

func runProvidersDetect(cmd *cobra.Command, args []string) error {
	credential := args[0]

	if desc := provider.Detect(credential); desc != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", desc.ID, desc.DisplayName)
		return nil
	}

	if candidates := provider.Ambiguous(credential); len(candidates) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "ambiguous, candidates:")
		for _, c := range candidates {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s (%s)\n", c.ID, c.DisplayName)
		}
		return nil
	}

	return fmt.Errorf("no provider matches this credential")
}
