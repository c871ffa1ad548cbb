// Package commands implements the cconnectctl CLI commands.
package commands

import (
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"github.com/olafkfreund/cosmic-connectd/pkg/api"
)

var (
	// busObj is the daemon's exported D-Bus object, initialized in
	// PersistentPreRunE.
	busObj dbus.BusObject

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string
)

// rootCmd is the top-level cobra command for cconnectctl.
var rootCmd = &cobra.Command{
	Use:   "cconnectctl",
	Short: "CLI client for the cosmic-connectd daemon",
	Long:  "cconnectctl communicates with the cosmic-connectd daemon over D-Bus to manage paired devices.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		conn, err := dbus.ConnectSessionBus()
		if err != nil {
			return fmt.Errorf("connect to session bus: %w", err)
		}
		busObj = conn.Object(api.BusName, api.ObjectPath)
		return nil
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(deviceCmd())
	rootCmd.AddCommand(pairCmd())
	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(diagnosticsCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// call invokes a daemon method with no reply value beyond the D-Bus error.
func call(method string, args ...any) error {
	return busObj.Call(api.InterfaceName+"."+method, 0, args...).Err
}
