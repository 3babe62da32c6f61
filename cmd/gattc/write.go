package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/gattc/internal/gatt"
)

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write <device-address> <uuid> <data>",
	Short: "Write to a characteristic",
	Long: fmt.Sprintf(`Writes data to a BLE characteristic.

Examples:
  # Write to characteristic (string data)
  gattc write %s 2a06 "high"

  # Write hex data
  gattc write %s 2a06 01 --hex

  # Write with service disambiguation
  gattc write %s --service 1802 --char 2a06 01 --hex

  # Write to a raw ATT handle (e.g. a configuration descriptor)
  gattc write %s --handle 0x000b 0100 --hex

  # Write without response (faster, no ACK)
  gattc write %s 2a06 "data" --without-response

%s`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.RangeArgs(2, 3),
	RunE: runWrite,
}

var (
	writeServiceUUID string
	writeCharUUID    string
	writeHandle      string
	writeHex         bool
	writeNoResponse  bool
	writeTimeout     time.Duration
)

func init() {
	writeCmd.Flags().StringVar(&writeServiceUUID, "service", "", "Service UUID (required if characteristic UUID is ambiguous)")
	writeCmd.Flags().StringVar(&writeCharUUID, "char", "", "Characteristic UUID")
	writeCmd.Flags().StringVar(&writeHandle, "handle", "", "Raw ATT handle to write (e.g. 0x000b), bypasses UUID resolution")
	writeCmd.Flags().BoolVar(&writeHex, "hex", false, "Parse input as hex string (e.g., 'FF01'); raw bytes by default")
	writeCmd.Flags().BoolVar(&writeNoResponse, "without-response", false, "Write without response (faster, no ACK); default waits for ACK")
	writeCmd.Flags().DurationVar(&writeTimeout, "timeout", 5*time.Second, "Write timeout")
}

func runWrite(cmd *cobra.Command, args []string) error {
	address := args[0]

	// Parse target and data from positional args, honoring --char/--handle
	var targetUUID, dataStr string
	switch {
	case writeHandle != "" && len(args) >= 2:
		dataStr = args[1]
	case len(args) == 3:
		targetUUID = args[1]
		dataStr = args[2]
	case writeCharUUID != "" && len(args) == 2:
		targetUUID = writeCharUUID
		dataStr = args[1]
	default:
		return fmt.Errorf("UUID and data required: provide UUID as second argument or via --char/--handle flag")
	}

	var rawHandle uint16
	if writeHandle != "" {
		if targetUUID != "" {
			return fmt.Errorf("--handle cannot be combined with characteristic UUIDs")
		}
		var err error
		rawHandle, err = parseHandle(writeHandle)
		if err != nil {
			return err
		}
	}

	data, err := parseWriteData(dataStr)
	if err != nil {
		return err
	}

	cfg, logger, err := setupCommand(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	target := targetUUID
	if rawHandle != 0 {
		target = fmt.Sprintf("handle %s", writeHandle)
	}
	progress := NewProgressPrinter(fmt.Sprintf("Writing %d bytes to %s on %s", len(data), target, address), "Connecting", "Done")
	progress.Start()
	defer progress.Stop()

	return withSession(context.Background(), address, cfg, logger, progress.Callback(),
		func(ctx context.Context, s *gatt.Session) error {
			progress.Stop()

			writeCtx := ctx
			if writeTimeout > 0 {
				var cancel context.CancelFunc
				writeCtx, cancel = context.WithTimeout(ctx, writeTimeout)
				defer cancel()
			}

			if rawHandle != 0 {
				if err := s.CharWriteHandle(writeCtx, rawHandle, data, !writeNoResponse); err != nil {
					return err
				}
			} else {
				if err := s.CharWrite(writeCtx, targetUUID, data, writeServiceUUID, !writeNoResponse); err != nil {
					return err
				}
			}

			fmt.Printf("Wrote %d bytes to %s\n", len(data), target)
			return nil
		})
}

// parseWriteData converts input string to bytes based on format flags
func parseWriteData(dataStr string) ([]byte, error) {
	if writeHex {
		// Remove spaces and common separators
		cleaned := strings.ReplaceAll(dataStr, " ", "")
		cleaned = strings.ReplaceAll(cleaned, ":", "")
		cleaned = strings.ReplaceAll(cleaned, "-", "")
		cleaned = strings.ReplaceAll(cleaned, "0x", "")

		data, err := hex.DecodeString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("invalid hex data: %w", err)
		}
		return data, nil
	}

	return []byte(dataStr), nil
}
