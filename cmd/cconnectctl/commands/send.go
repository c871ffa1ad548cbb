package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func sendCmd() *cobra.Command {
	var body string

	cmd := &cobra.Command{
		Use:   "send <device-id> <packet-type>",
		Short: "Send an ad-hoc packet to a device",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			if body == "" {
				body = "{}"
			}
			if err := call("SendPacket", args[0], args[1], body); err != nil {
				return fmt.Errorf("send packet: %w", err)
			}
			fmt.Printf("sent %s to %s\n", args[1], args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&body, "body", "{}", "packet body as a JSON object")
	return cmd
}
