package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/olafkfreund/cosmic-connectd/pkg/api"
)

func deviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Inspect and configure known devices",
	}

	cmd.AddCommand(deviceListCmd())
	cmd.AddCommand(deviceConfigCmd())
	cmd.AddCommand(deviceMACCmd())

	return cmd
}

// --- device list ---

func deviceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every device the daemon has seen",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var devices []api.DeviceInfo
			if err := busObj.Call(api.InterfaceName+".ListDevices", 0).Store(&devices); err != nil {
				return fmt.Errorf("list devices: %w", err)
			}

			out, err := formatDevices(devices, outputFormat)
			if err != nil {
				return fmt.Errorf("format devices: %w", err)
			}
			fmt.Print(out)
			return nil
		},
	}
}

// --- device config ---

func deviceConfigCmd() *cobra.Command {
	var enable, disable bool

	cmd := &cobra.Command{
		Use:   "config <device-id> <plugin>",
		Short: "Enable or disable a plugin for one device",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			if enable == disable {
				return errConfigFlagRequired
			}
			if err := call("SetDeviceConfig", args[0], args[1], enable); err != nil {
				return fmt.Errorf("set device config: %w", err)
			}
			fmt.Printf("%s: %s %s\n", args[0], args[1], enabledWord(enable))
			return nil
		},
	}

	cmd.Flags().BoolVar(&enable, "enable", false, "enable the plugin")
	cmd.Flags().BoolVar(&disable, "disable", false, "disable the plugin")
	return cmd
}

// --- device mac ---

func deviceMACCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mac <device-id> <mac-address>",
		Short: "Record a device's Wake-on-LAN MAC address",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := call("SetDeviceMAC", args[0], args[1]); err != nil {
				return fmt.Errorf("set device mac: %w", err)
			}
			fmt.Printf("%s: mac set to %s\n", args[0], args[1])
			return nil
		},
	}
}

func enabledWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
