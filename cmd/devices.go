// Package cmd holds the auxiliary CLI subcommands.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cattern/rovercam/internal/devices"
	"github.com/cattern/rovercam/internal/logging"
)

// CreateDevicesCmd creates the devices listing command.
func CreateDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List video capture devices",
		Long:  "Enumerates V4L2 capture devices with their resolved names and bus locations.",
		Run: func(_ *cobra.Command, _ []string) {
			logging.Initialize(logging.Config{Level: "warn", Format: "text"})

			devs := devices.List()
			if len(devs) == 0 {
				fmt.Println("No video devices found")
				return
			}

			for _, d := range devs {
				status := "present"
				if !d.Present {
					status = "missing"
				}
				name := d.Name
				if name == "" {
					name = devices.DisplayName(d.Path)
				}
				fmt.Printf("%-16s %-32s %-10s %s\n", d.Path, name, status, d.Bus)
			}
		},
	}
}
