package main

import (
	"fmt"
	"io"

	"github.com/cjeanneret/TurnGo/internal/hw/motor"
	"github.com/spf13/cobra"
)

func newPortsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		Long: `Lists the serial ports of this machine. The port marked with * is the one
the motor link uses when serial.port is empty.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := motor.ListPorts()
			if err != nil {
				return err
			}
			return printPorts(cmd.OutOrStdout(), ports, a.cfg.Serial.Port)
		},
	}
}

func printPorts(w io.Writer, ports []string, configured string) error {
	if len(ports) == 0 {
		fmt.Fprintln(w, "no serial ports found")
		return nil
	}
	selected := configured
	if selected == "" {
		selected, _ = motor.ResolvePort(ports)
	}
	for _, p := range ports {
		mark := " "
		if p == selected {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %s\n", mark, p)
	}
	return nil
}
