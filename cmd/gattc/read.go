package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/gattc/internal/gatt"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <device-address> [uuid]",
	Short: "Read characteristic values",
	Long: fmt.Sprintf(`Reads data from BLE characteristic(s).

Examples:
  # Read Battery Level characteristic
  gattc read %s 2a19

  # Read multiple characteristics (comma-separated)
  gattc read %s 2a37,2a38,2a19 --hex

  # Read with service disambiguation
  gattc read %s --service 180f --char 2a19

  # Read a raw ATT handle directly
  gattc read %s --handle 0x0010 --hex

  # Continuously poll a characteristic every second
  gattc read %s 2a37 --watch

  # Watch with custom interval
  gattc read %s 2a37 --watch 500ms

%s`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.RangeArgs(1, 2),
	RunE: runRead,
}

var (
	readServiceUUID string
	readCharUUIDs   string // supports comma-separated UUIDs
	readHandle      string
	readHex         bool
	readTimeout     time.Duration
	readWatch       string
)

func init() {
	readCmd.Flags().StringVar(&readServiceUUID, "service", "", "Service UUID (required if characteristic UUID is ambiguous)")
	readCmd.Flags().StringVar(&readCharUUIDs, "char", "", "Characteristic UUID(s), comma-separated for multiple")
	readCmd.Flags().StringVar(&readHandle, "handle", "", "Raw ATT handle to read (e.g. 0x0010), bypasses UUID resolution")
	readCmd.Flags().BoolVar(&readHex, "hex", false, "Output as hex string (e.g., 'FF01'); raw bytes by default")
	readCmd.Flags().DurationVar(&readTimeout, "timeout", 5*time.Second, "Read timeout")
	readCmd.Flags().StringVar(&readWatch, "watch", "", "Continuously read at interval (e.g., 1s, 500ms); default 1s if no value given")
	readCmd.Flags().Lookup("watch").NoOptDefVal = "1s"
}

// parseHandle parses an ATT handle in decimal or 0x-prefixed hex form.
func parseHandle(input string) (uint16, error) {
	v, err := strconv.ParseUint(input, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid handle %q: %w", input, err)
	}
	if v == 0 {
		return 0, fmt.Errorf("invalid handle %q: handle must be nonzero", input)
	}
	return uint16(v), nil
}

func runRead(cmd *cobra.Command, args []string) error {
	address := args[0]

	var uuidInput string
	if len(args) == 2 {
		uuidInput = args[1]
	} else if readCharUUIDs != "" {
		uuidInput = readCharUUIDs
	}

	var charUUIDs []string
	var rawHandle uint16

	if readHandle != "" {
		if uuidInput != "" {
			return fmt.Errorf("--handle cannot be combined with characteristic UUIDs")
		}
		var err error
		rawHandle, err = parseHandle(readHandle)
		if err != nil {
			return err
		}
	} else {
		charUUIDs = parseCSVUUIDs(uuidInput)
		if len(charUUIDs) == 0 {
			return fmt.Errorf("UUID required: provide as second argument or via --char/--handle flag")
		}
	}

	// Parse watch interval if watch flag is set
	var watchInterval time.Duration
	if readWatch != "" {
		if len(charUUIDs) > 1 {
			return fmt.Errorf("watch mode requires a single characteristic, got %d", len(charUUIDs))
		}
		var err error
		watchInterval, err = time.ParseDuration(readWatch)
		if err != nil {
			return fmt.Errorf("invalid watch interval: %w", err)
		}
	}

	cfg, logger, err := setupCommand(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	var progressDesc string
	operation := "Reading"
	if readWatch != "" {
		operation = "Watching"
	}
	switch {
	case readHandle != "":
		progressDesc = fmt.Sprintf("%s handle %s from %s", operation, readHandle, address)
	case len(charUUIDs) == 1:
		progressDesc = fmt.Sprintf("%s %s from %s", operation, charUUIDs[0], address)
	default:
		progressDesc = fmt.Sprintf("%s %d characteristics from %s", operation, len(charUUIDs), address)
	}

	progress := NewProgressPrinter(progressDesc, "Connecting", "Done")
	progress.Start()
	defer progress.Stop()

	return withSession(context.Background(), address, cfg, logger, progress.Callback(),
		func(ctx context.Context, s *gatt.Session) error {
			progress.Stop()

			// Raw handle path
			if rawHandle != 0 {
				if readWatch != "" {
					return watchRead(ctx, watchInterval, func(ctx context.Context) ([]byte, error) {
						return s.CharReadHandle(ctx, rawHandle)
					})
				}
				data, err := readWithTimeout(ctx, func(ctx context.Context) ([]byte, error) {
					return s.CharReadHandle(ctx, rawHandle)
				})
				if err != nil {
					return err
				}
				outputData(readHandle, data, readHex, false)
				return nil
			}

			// Watch mode: single characteristic polled at the interval
			if readWatch != "" {
				uuid := charUUIDs[0]
				return watchRead(ctx, watchInterval, func(ctx context.Context) ([]byte, error) {
					return s.CharRead(ctx, uuid, readServiceUUID)
				})
			}

			// Single characteristic
			if len(charUUIDs) == 1 {
				data, err := readWithTimeout(ctx, func(ctx context.Context) ([]byte, error) {
					return s.CharRead(ctx, charUUIDs[0], readServiceUUID)
				})
				if err != nil {
					return err
				}
				outputData(charUUIDs[0], data, readHex, false)
				return nil
			}

			// Multi-characteristic: report per-UUID errors but keep going
			var firstErr error
			for _, uuid := range charUUIDs {
				data, err := readWithTimeout(ctx, func(ctx context.Context) ([]byte, error) {
					return s.CharRead(ctx, uuid, readServiceUUID)
				})
				if err != nil {
					fmt.Fprintf(os.Stderr, "%s: error: %v\n", uuid, err)
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				outputData(uuid, data, readHex, true)
			}
			return firstErr
		})
}

// readWithTimeout bounds a single read with the --timeout flag.
func readWithTimeout(ctx context.Context, read func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	readCtx := ctx
	if readTimeout > 0 {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(ctx, readTimeout)
		defer cancel()
	}
	return read(readCtx)
}

// watchRead polls a read function at the interval until interrupted.
func watchRead(ctx context.Context, interval time.Duration, read func(ctx context.Context) ([]byte, error)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		data, err := readWithTimeout(ctx, read)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		outputData(time.Now().Format("15:04:05.000"), data, readHex, true)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
