// Command cconnectctl is a D-Bus CLI client for cconnectd: it lists known
// devices, drives the pairing ceremony, sends ad-hoc packets, and reports
// daemon diagnostics.
package main

import "github.com/olafkfreund/cosmic-connectd/cmd/cconnectctl/commands"

func main() {
	commands.Execute()
}
