package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cattern/rovercam/internal/encoders"
	"github.com/cattern/rovercam/internal/logging"
)

// CreateProbeCmd creates the encoder probe command.
func CreateProbeCmd() *cobra.Command {
	var software bool

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Probe the H.264 encoder",
		Long:  "Checks which encoder backend ffmpeg provides and prints the command line used per preset.",
		Run: func(_ *cobra.Command, _ []string) {
			logging.Initialize(logging.Config{Level: "warn", Format: "text"})

			cfg := encoders.DefaultH264Config()
			cfg.UseHardware = !software

			backend, err := encoders.SelectBackend(cfg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "encoder probe failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("backend: %s\n\n", backend)

			for _, preset := range encoders.Presets() {
				args := encoders.BuildCommand(backend, cfg, preset)
				fmt.Printf("%s (%dx%d@%d, %s):\n  %s\n\n",
					preset.Name, preset.Width, preset.Height, preset.FPS, preset.Bitrate,
					strings.Join(args, " "))
			}
		},
	}

	cmd.Flags().BoolVar(&software, "software", false, "Skip the hardware encoder even when available")
	return cmd
}
