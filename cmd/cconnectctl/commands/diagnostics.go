package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/olafkfreund/cosmic-connectd/pkg/api"
)

func diagnosticsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnostics",
		Short: "Show daemon-internal counters",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var diag api.Diagnostics
			if err := busObj.Call(api.InterfaceName+".GetDiagnostics", 0).Store(&diag); err != nil {
				return fmt.Errorf("get diagnostics: %w", err)
			}

			out, err := formatDiagnostics(diag, outputFormat)
			if err != nil {
				return fmt.Errorf("format diagnostics: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	}
}
