package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/itohio/freistat/pkg/device"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := device.Ports()
		if err != nil {
			return err
		}
		printPorts(cmd.OutOrStdout(), ports)
		return nil
	},
}

func printPorts(w io.Writer, ports []device.Port) {
	if len(ports) == 0 {
		fmt.Fprintln(w, "no serial ports found")
		return
	}
	for _, p := range ports {
		if p.USB {
			fmt.Fprintf(w, "%s\t%s\t%s:%s\n", p.Name, p.Description, p.VID, p.PID)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\n", p.Name, p.Description)
	}
}
