package cmd

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/audiolibrelab/xlrbridge/internal/host"
	"github.com/audiolibrelab/xlrbridge/internal/host/usbid"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio devices visible to the configured backend",
	Long:  `List the devices the configured host backend can see, plus the USB sound cards found in /proc/asound. Matching cards are marked.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		h, err := openHost(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := h.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		return listDevices(cmd, h)
	},
}

func listDevices(cmd *cobra.Command, h host.Host) error {
	devices, err := h.Devices(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	fmt.Printf("Audio Devices (%s, backend %s)\n", runtime.GOOS, host.DetermineBackend(cfg.Audio.Backend))
	fmt.Printf("=======================================\n\n")
	fmt.Printf("BACKENDS: %s\n\n", backendList())
	fmt.Printf("DEVICES (%d found):\n", len(devices))
	for i, d := range devices {
		fmt.Printf("  %d. %s [%s]%s\n", i+1, d.Name, d.UID, directions(d))
	}

	cards, err := usbid.NewScanner(afero.NewOsFs(), usbid.DefaultRoot).Cards()
	if err != nil {
		slog.Debug("No sound card listing available", "error", err)
		return nil
	}
	want := host.Descriptor{
		VendorID:   cfg.Hardware.VendorID,
		ProductIDs: cfg.Hardware.ProductIDs,
	}
	fmt.Printf("\nUSB SOUND CARDS (%d found):\n", len(cards))
	for _, c := range cards {
		mark := ""
		if want.Matches(c.Vendor, c.Product) {
			mark = "  <- matches hardware"
		}
		fmt.Printf("  %s%s\n", c, mark)
	}
	fmt.Println()
	return nil
}

// backendList names every backend built into this binary.
func backendList() string {
	names := make([]string, 0, len(host.GetAvailableBackends()))
	for _, b := range host.GetAvailableBackends() {
		names = append(names, string(b))
	}
	return strings.Join(names, ", ")
}

func directions(d host.DeviceInfo) string {
	switch {
	case d.Capture && d.Render:
		return " capture+render"
	case d.Capture:
		return " capture"
	case d.Render:
		return " render"
	default:
		return ""
	}
}
