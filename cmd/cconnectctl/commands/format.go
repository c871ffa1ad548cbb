package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/olafkfreund/cosmic-connectd/pkg/api"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// --- devices ---

func formatDevices(devices []api.DeviceInfo, format string) (string, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(devices, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal devices to JSON: %w", err)
		}
		return string(data), nil
	case formatTable:
		return formatDevicesTable(devices), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatDevicesTable(devices []api.DeviceInfo) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE ID\tNAME\tTYPE\tPAIRING\tSESSION\tMAC\tCAPABILITIES")

	for _, d := range devices {
		mac := d.MACAddress
		if mac == "" {
			mac = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.DeviceID, d.DeviceName, d.DeviceType, d.PairingState, d.SessionState,
			mac, strings.Join(d.Capabilities, ","),
		)
	}

	w.Flush()
	return buf.String()
}

// --- diagnostics ---

func formatDiagnostics(diag api.Diagnostics, format string) (string, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(diag, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal diagnostics to JSON: %w", err)
		}
		return string(data), nil
	case formatTable:
		return formatDiagnosticsTable(diag), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatDiagnosticsTable(diag api.Diagnostics) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Active Sessions:\t%d\n", diag.ActiveSessions)
	fmt.Fprintf(w, "Known Devices:\t%d\n", diag.KnownDevices)
	fmt.Fprintf(w, "Paired Devices:\t%d\n", diag.PairedDevices)
	fmt.Fprintf(w, "Retry Queue Length:\t%d\n", diag.RetryQueueLength)
	fmt.Fprintf(w, "Reconnects In Flight:\t%d\n", diag.ReconnectsInFlight)
	w.Flush()
	return buf.String()
}
