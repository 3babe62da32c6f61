package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/gattc/internal/gatt"
	"github.com/srg/gattc/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for and display Bluetooth Low Energy devices in the vicinity.

This command will scan for BLE devices and display information about
discovered devices, including their names, addresses, RSSI values, and
advertised services.`,
	RunE: runScan,
}

var (
	scanDuration    time.Duration
	scanFormat      string
	scanServices    []string
	scanAllowList   []string
	scanBlockList   []string
	scanNoDuplicate bool
	scanWatch       bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration (0 for indefinite)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().StringSliceVarP(&scanServices, "services", "s", nil, "Filter by service UUIDs")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide devices with these addresses")
	scanCmd.Flags().BoolVar(&scanNoDuplicate, "no-duplicates", true, "Filter duplicate advertisements")
	scanCmd.Flags().BoolVarP(&scanWatch, "watch", "w", false, "Continuously scan and update results")
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}

	cfg, logger, err := setupCommand(cmd)
	if err != nil {
		return err
	}

	// Validate service UUIDs before touching the radio
	for _, svc := range scanServices {
		if _, err := gatt.ParseUUID(svc); err != nil {
			return fmt.Errorf("invalid service UUID: %w", err)
		}
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	timeout := cfg.ScanTimeout
	if cmd.Flags().Changed("duration") || scanDuration == 0 {
		timeout = scanDuration
	}
	// For watch mode, default to indefinite scan if no duration specified
	if scanWatch && !cmd.Flags().Changed("duration") {
		timeout = 0
	}

	s := scanner.NewScanner(logger)
	opts := &scanner.ScanOptions{
		Duration:        timeout,
		DuplicateFilter: scanNoDuplicate,
		ServiceUUIDs:    scanServices,
		AllowList:       scanAllowList,
		BlockList:       scanBlockList,
	}

	if scanWatch {
		return runWatchScan(s, opts, logger)
	}
	return runSingleScan(s, opts, timeout, logger)
}

func runSingleScan(s *scanner.Scanner, opts *scanner.ScanOptions, timeout time.Duration, logger *logrus.Logger) error {
	baseCtx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		baseCtx, cancel = context.WithTimeout(baseCtx, timeout)
		defer cancel()
	}

	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	// Listen for Ctrl+C to cancel
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, cancelling scan...")
		cancel()
	}()

	progress := NewCountdownProgressPrinter("Scanning for BLE devices", "Scanning", timeout, "Processing results")
	progress.Start()
	defer progress.Stop()

	devices, err := s.Scan(ctx, opts, progress.Callback())
	progress.Stop()

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.WithError(err).Error("scan failed")
		return err
	}
	return displayDevices(devices)
}

func runWatchScan(s *scanner.Scanner, opts *scanner.ScanOptions, logger *logrus.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, cancelling scan...")
		cancel()
	}()

	devices := make(map[string]*scanner.DeviceInfo)

	// Run the blocking scan in a goroutine and collect its events here
	scanErrCh := make(chan error, 1)
	go func() {
		latest, err := s.Scan(ctx, opts, nil)
		for addr, dev := range latest {
			devices[addr] = dev
		}
		scanErrCh <- err
	}()

	redraw := time.NewTicker(1 * time.Second)
	defer redraw.Stop()

	for {
		select {
		case <-ctx.Done():
			clearScreen()
			return displayDevices(devices)

		case err := <-scanErrCh:
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			clearScreen()
			return displayDevices(devices)

		case ev := <-s.Events():
			devices[ev.Device.Address] = ev.Device

		case <-redraw.C:
			clearScreen()
			if err := displayDevices(devices); err != nil {
				logger.WithError(err).Warn("Failed to render device table")
			}
		}
	}
}

func clearScreen() {
	fmt.Print("\033[2J\033[H")
}

func displayDevices(devices map[string]*scanner.DeviceInfo) error {
	if len(devices) == 0 {
		fmt.Println("No devices discovered")
		return nil
	}

	devList := make([]*scanner.DeviceInfo, 0, len(devices))
	for _, d := range devices {
		devList = append(devList, d)
	}
	// Strongest signal first, address as tie-breaker for stable output
	sort.Slice(devList, func(i, j int) bool {
		if devList[i].RSSI != devList[j].RSSI {
			return devList[i].RSSI > devList[j].RSSI
		}
		return devList[i].Address < devList[j].Address
	})

	if scanFormat == "json" {
		return displayDevicesJSON(devList)
	}
	return displayDevicesTable(devList)
}

func displayDevicesTable(devices []*scanner.DeviceInfo) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES\tLAST SEEN")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, dev := range devices {
		name := dev.Name
		if name == "" {
			name = "(unknown)"
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		services := strings.Join(dev.Services, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}

		lastSeen := time.Since(dev.LastSeen).Truncate(time.Second)

		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%s ago\n",
			name, dev.Address, dev.RSSI, services, lastSeen)
	}

	return w.Flush()
}

func displayDevicesJSON(devices []*scanner.DeviceInfo) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(devices)
}
