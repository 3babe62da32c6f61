package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/gattc/internal/gatt"
)

// subscribeCmd represents the subscribe command
var subscribeCmd = &cobra.Command{
	Use:   "subscribe <device-address> [uuid]",
	Short: "Subscribe to characteristic notifications",
	Long: fmt.Sprintf(`Subscribes to BLE characteristic notifications and outputs received data
until interrupted or the duration elapses.

Examples:
  # Subscribe to single characteristic
  gattc subscribe %s 2a37

  # Subscribe to multiple characteristics
  gattc subscribe %s 2a37,2a38,2a19 --hex

  # Subscribe to characteristics in a specific service
  gattc subscribe %s --service 180d --char 2a37,2a38

  # Request indications instead of notifications
  gattc subscribe %s 2a35 --indication

  # Stop after 30 seconds
  gattc subscribe %s 2a37 --duration 30s

%s`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.RangeArgs(1, 2),
	RunE: runSubscribe,
}

var (
	subscribeServiceUUID string
	subscribeCharUUIDs   string // comma-separated
	subscribeHex         bool
	subscribeIndication  bool
	subscribeTimeout     time.Duration
	subscribeDuration    time.Duration
)

func init() {
	subscribeCmd.Flags().StringVar(&subscribeServiceUUID, "service", "", "Service UUID (required if characteristic UUID is ambiguous)")
	subscribeCmd.Flags().StringVar(&subscribeCharUUIDs, "char", "", "Characteristic UUID(s), comma-separated (e.g., 2a37,2a38)")
	subscribeCmd.Flags().BoolVar(&subscribeHex, "hex", false, "Output as hex string; raw bytes by default")
	subscribeCmd.Flags().BoolVar(&subscribeIndication, "indication", false, "Request indications (acknowledged) instead of notifications")
	subscribeCmd.Flags().DurationVar(&subscribeTimeout, "timeout", 30*time.Second, "Connection timeout")
	subscribeCmd.Flags().DurationVar(&subscribeDuration, "duration", 0, "Stop after this duration (0 = until Ctrl+C)")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	address := args[0]

	var charUUIDsCSV string
	if len(args) == 2 {
		charUUIDsCSV = args[1]
	} else if subscribeCharUUIDs != "" {
		charUUIDsCSV = subscribeCharUUIDs
	}

	charUUIDs := parseCSVUUIDs(charUUIDsCSV)
	if len(charUUIDs) == 0 {
		return fmt.Errorf("specify characteristic UUID(s) via argument or --char flag")
	}

	cfg, logger, err := setupCommand(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	if cmd.Flags().Changed("timeout") {
		cfg.ConnectTimeout = subscribeTimeout
	}

	progress := NewProgressPrinter(
		fmt.Sprintf("Subscribing to %d characteristic(s) on %s", len(charUUIDs), address),
		"Connecting", "Listening")
	progress.Start()
	defer progress.Stop()

	return withSession(context.Background(), address, cfg, logger, progress.Callback(),
		func(ctx context.Context, s *gatt.Session) error {
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			if subscribeDuration > 0 {
				var tcancel context.CancelFunc
				ctx, tcancel = context.WithTimeout(ctx, subscribeDuration)
				defer tcancel()
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				<-sigCh
				cancel()
			}()

			// Resolve every target up front so the handle-to-UUID labels are
			// known before the first notification arrives
			labels := make(map[uint16]string, len(charUUIDs))
			for _, uuid := range charUUIDs {
				handle, err := s.ResolveHandle(ctx, uuid, subscribeServiceUUID)
				if err != nil {
					return err
				}
				labels[handle] = uuid
			}

			uuidColor := color.New(color.FgYellow)
			printNotification := func(handle uint16, payload []byte) {
				var rendered string
				if subscribeHex {
					rendered = strings.ToUpper(hex.EncodeToString(payload))
				} else {
					rendered = string(payload)
				}
				label := labels[handle]
				if label == "" {
					label = fmt.Sprintf("0x%04x", handle)
				}
				fmt.Printf("%s %s: %s\n",
					time.Now().Format("15:04:05.000"), uuidColor.Sprint(label), rendered)
			}

			for _, uuid := range charUUIDs {
				if err := s.Subscribe(ctx, uuid, subscribeServiceUUID, printNotification, subscribeIndication); err != nil {
					return fmt.Errorf("failed to subscribe to %s: %w", uuid, err)
				}
			}

			progress.Callback()("Listening")
			fmt.Fprintln(os.Stderr, "Listening for notifications, press Ctrl+C to stop...")

			<-ctx.Done()

			// Best-effort teardown on a fresh context; ctx is already done
			teardownCtx, tdCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer tdCancel()
			for _, uuid := range charUUIDs {
				if err := s.Unsubscribe(teardownCtx, uuid, subscribeServiceUUID); err != nil {
					logger.WithError(err).WithField("uuid", uuid).Debug("Failed to unsubscribe")
				}
			}
			return nil
		})
}
