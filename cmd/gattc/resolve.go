package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/gattc/internal/bledb"
	"github.com/srg/gattc/internal/gatt"
)

// resolveCmd represents the resolve command
var resolveCmd = &cobra.Command{
	Use:   "resolve <device-address> <char-uuid>[,<char-uuid>...]",
	Short: "Resolve characteristic UUIDs to ATT value handles",
	Long: fmt.Sprintf(`Connects to a BLE device and resolves characteristic UUIDs to their
ATT value handles using the discovered GATT database.

Examples:
  # Resolve the Heart Rate Measurement characteristic
  gattc resolve %s 2a37

  # Resolve several characteristics at once
  gattc resolve %s 2a37,2a38,2a19

  # Disambiguate a UUID that appears in multiple services
  gattc resolve %s 2a37 --service 180d

%s`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(2),
	RunE: runResolve,
}

var (
	resolveServiceUUID string
	resolveTimeout     time.Duration
)

func init() {
	resolveCmd.Flags().StringVar(&resolveServiceUUID, "service", "", "Service UUID (required if characteristic UUID is ambiguous)")
	resolveCmd.Flags().DurationVar(&resolveTimeout, "timeout", 30*time.Second, "Connection timeout")
}

func runResolve(cmd *cobra.Command, args []string) error {
	address := args[0]
	charUUIDs := parseCSVUUIDs(args[1])
	if len(charUUIDs) == 0 {
		return fmt.Errorf("no valid UUIDs provided")
	}

	cfg, logger, err := setupCommand(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	if cmd.Flags().Changed("timeout") {
		cfg.ConnectTimeout = resolveTimeout
	}

	progress := NewProgressPrinter(fmt.Sprintf("Resolving on %s", address), "Connecting", "Done")
	progress.Start()
	defer progress.Stop()

	return withSession(context.Background(), address, cfg, logger, progress.Callback(),
		func(ctx context.Context, s *gatt.Session) error {
			progress.Stop()

			var firstErr error
			for _, uuid := range charUUIDs {
				handle, err := s.ResolveHandle(ctx, uuid, resolveServiceUUID)
				if err != nil {
					fmt.Printf("%s: %s\n", uuid, FormatUserError(err))
					if firstErr == nil {
						firstErr = err
					}
					continue
				}

				label := bledb.NormalizeUUID(uuid)
				if name := bledb.LookupCharacteristic(label); name != "" {
					label = fmt.Sprintf("%s (%s)", label, name)
				}
				fmt.Printf("%s: handle 0x%04x (%d)\n", label, handle, handle)
			}
			return firstErr
		})
}
