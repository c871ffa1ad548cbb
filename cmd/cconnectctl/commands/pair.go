package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// errConfigFlagRequired is returned when neither or both of --enable/--disable
// are given to "device config".
var errConfigFlagRequired = errors.New("exactly one of --enable or --disable is required")

func pairCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Manage device pairing",
	}

	cmd.AddCommand(pairRequestCmd())
	cmd.AddCommand(pairAcceptCmd())
	cmd.AddCommand(pairRejectCmd())
	cmd.AddCommand(unpairCmd())

	return cmd
}

func pairRequestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "request <device-id>",
		Short: "Send a pairing request to a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := call("PairRequest", args[0]); err != nil {
				return fmt.Errorf("pair request: %w", err)
			}
			fmt.Printf("pairing request sent to %s\n", args[0])
			return nil
		},
	}
}

func pairAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <device-id>",
		Short: "Accept an incoming pairing request",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := call("PairAccept", args[0]); err != nil {
				return fmt.Errorf("pair accept: %w", err)
			}
			fmt.Printf("paired with %s\n", args[0])
			return nil
		},
	}
}

func pairRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <device-id>",
		Short: "Reject an incoming pairing request, or cancel one we sent",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := call("PairReject", args[0]); err != nil {
				return fmt.Errorf("pair reject: %w", err)
			}
			fmt.Printf("pairing with %s rejected\n", args[0])
			return nil
		},
	}
}

func unpairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unpair <device-id>",
		Short: "Remove a device from the trust store",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := call("Unpair", args[0]); err != nil {
				return fmt.Errorf("unpair: %w", err)
			}
			fmt.Printf("%s untrusted\n", args[0])
			return nil
		},
	}
}
