package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/gattc/internal/gatt"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <device-address>",
	Short: "Inspect GATT services and characteristics",
	Long: fmt.Sprintf(`Connects to a BLE device and displays its GATT database: services,
characteristics, ATT handles, configuration descriptors, and properties.

Examples:
  # Inspect a device
  gattc inspect %s

  # Output the GATT database as JSON
  gattc inspect %s --format json

%s`, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var (
	inspectFormat  string
	inspectTimeout time.Duration
)

func init() {
	inspectCmd.Flags().StringVarP(&inspectFormat, "format", "f", "table", "Output format (table, json)")
	inspectCmd.Flags().DurationVar(&inspectTimeout, "timeout", 30*time.Second, "Connection timeout")
}

func runInspect(cmd *cobra.Command, args []string) error {
	address := args[0]

	if inspectFormat != "table" && inspectFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", inspectFormat)
	}

	cfg, logger, err := setupCommand(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	if cmd.Flags().Changed("timeout") {
		cfg.ConnectTimeout = inspectTimeout
	}

	progress := NewProgressPrinter(fmt.Sprintf("Inspecting %s", address), "Connecting", "Done")
	progress.Start()
	defer progress.Stop()

	return withSession(context.Background(), address, cfg, logger, progress.Callback(),
		func(ctx context.Context, s *gatt.Session) error {
			progress.Callback()("Discovering services")
			if err := s.Refresh(ctx); err != nil {
				return fmt.Errorf("service discovery failed: %w", err)
			}
			progress.Stop()

			if inspectFormat == "json" {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(s.Catalog())
			}
			return displayCatalogTable(os.Stdout, s.Catalog(), s.RSSI())
		})
}

func displayCatalogTable(out io.Writer, catalog *gatt.ServiceCatalog, rssi int) error {
	if catalog == nil || catalog.Len() == 0 {
		fmt.Fprintln(out, "No services discovered")
		return nil
	}

	if rssi != 0 {
		fmt.Fprintf(out, "RSSI: %d dBm\n\n", rssi)
	}

	serviceColor := color.New(color.FgGreen, color.Bold)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, svc := range catalog.Services() {
		label := svc.UUID.String()
		if name := svc.KnownName(); name != "" {
			label = fmt.Sprintf("%s (%s)", label, name)
		}
		fmt.Fprintf(w, "%s\n", serviceColor.Sprintf("service %s", label))

		for _, char := range svc.Characteristics() {
			charLabel := char.UUID.String()
			if name := char.KnownName(); name != "" {
				charLabel = fmt.Sprintf("%s (%s)", charLabel, name)
			}
			cccd := "-"
			if char.CCCDHandle != 0 {
				cccd = fmt.Sprintf("0x%04x", char.CCCDHandle)
			}
			fmt.Fprintf(w, "  %s\thandle 0x%04x\tcccd %s\t[%s]\n",
				charLabel, char.ValueHandle, cccd, char.Properties)
		}
	}
	return w.Flush()
}
