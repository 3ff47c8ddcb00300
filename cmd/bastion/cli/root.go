// Package cli implements the bastion command-line interface using Cobra.
// It provides commands for provisioning agent VMs, inspecting their status,
// and attaching interactive terminals.
package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/majorcontext/bastion/internal/config"
	"github.com/majorcontext/bastion/internal/log"
)

var (
	verbose bool
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "bastion",
	Short: "Bastion - provision and operate remote agent VMs",
	Long: `Bastion provisions remote compute sandboxes for AI agents: it creates
the VM, installs the agent runtime, writes the provider configuration and
starts the gateway process that bridges the agent to a messaging channel.
Provisioning is resumable — rerunning setup continues from the first
incomplete step.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		globalCfg, _ := config.Load()

		retention := 7
		if globalCfg != nil {
			retention = globalCfg.Debug.RetentionDays
		}

		if err := log.Init(log.Options{
			Verbose:       verbose,
			JSONFormat:    jsonOut,
			DebugDir:      filepath.Join(config.Dir(), "debug"),
			RetentionDays: retention,
		}); err != nil {
			// Non-fatal; fall back to the default logger.
			cmd.PrintErrf("Warning: failed to initialize debug logging: %v\n", err)
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	defer log.Close()
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")
}
