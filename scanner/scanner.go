// Package scanner implements BLE advertisement scanning and device discovery.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/gattc/internal/bledb"
	goble "github.com/srg/gattc/internal/gatt/go-ble"
	"github.com/srg/gattc/internal/ringchan"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// DeviceEventType marks if the device was newly discovered or updated
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

type DeviceEvent struct {
	Type   DeviceEventType
	Device *DeviceInfo
}

// DeviceInfo is a discovered device's advertisement snapshot.
type DeviceInfo struct {
	Name             string            `json:"name,omitempty"`
	Address          string            `json:"address"`
	RSSI             int               `json:"rssi"`
	Connectable      bool              `json:"connectable"`
	Services         []string          `json:"services,omitempty"`
	ManufacturerData []byte            `json:"manufacturer_data,omitempty"`
	ServiceData      map[string][]byte `json:"service_data,omitempty"`
	LastSeen         time.Time         `json:"last_seen"`

	mu sync.Mutex
}

// update refreshes mutable advertisement fields in place.
func (d *DeviceInfo) update(adv blelib.Advertisement) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if name := adv.LocalName(); name != "" {
		d.Name = name
	}
	d.RSSI = adv.RSSI()
	d.Connectable = adv.Connectable()
	d.LastSeen = time.Now()
}

func newDeviceInfo(adv blelib.Advertisement) *DeviceInfo {
	info := &DeviceInfo{
		Name:             adv.LocalName(),
		Address:          adv.Addr().String(),
		RSSI:             adv.RSSI(),
		Connectable:      adv.Connectable(),
		ManufacturerData: adv.ManufacturerData(),
		LastSeen:         time.Now(),
	}
	for _, uuid := range adv.Services() {
		info.Services = append(info.Services, bledb.NormalizeUUID(uuid.String()))
	}
	sort.Strings(info.Services)
	for _, sd := range adv.ServiceData() {
		if info.ServiceData == nil {
			info.ServiceData = make(map[string][]byte)
		}
		info.ServiceData[bledb.NormalizeUUID(sd.UUID.String())] = sd.Data
	}
	return info
}

// Scanner handles BLE device discovery
type Scanner struct {
	devices *hashmap.Map[string, *DeviceInfo]
	events  *ringchan.RingChannel[DeviceEvent]
	logger  *logrus.Logger

	scanOptions *ScanOptions
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration        time.Duration
	DuplicateFilter bool
	ServiceUUIDs    []string
	AllowList       []string
	BlockList       []string
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration:        10 * time.Second,
		DuplicateFilter: true,
	}
}

// NewScanner creates a new BLE scanner
func NewScanner(logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		events: ringchan.New[DeviceEvent](100),
		logger: logger,
	}
}

// Scan performs BLE discovery with the provided options and returns the
// discovered devices keyed by address.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) (map[string]*DeviceInfo, error) {
	s.devices = hashmap.New[string, *DeviceInfo]()

	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progressCallback == nil {
		progressCallback = func(string) {}
	}

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")
	progressCallback("Scanning")

	dev, err := goble.DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	blelib.SetDefaultDevice(dev)

	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	s.scanOptions = opts
	defer func() {
		s.scanOptions = nil
	}()
	err = dev.Scan(ctx, !opts.DuplicateFilter, s.handleAdvertisement)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")
	progressCallback("Processing results")

	devices := make(map[string]*DeviceInfo, s.devices.Len())
	s.devices.Range(func(key string, value *DeviceInfo) bool {
		devices[key] = value
		return true
	})
	return devices, nil
}

// handleAdvertisement updates an existing device or adds a new one
func (s *Scanner) handleAdvertisement(adv blelib.Advertisement) {
	deviceID := adv.Addr().String()

	dev, existing := s.devices.Get(deviceID)
	if !existing {
		if !shouldIncludeDevice(adv, s.scanOptions) {
			return
		}
		dev, existing = s.devices.GetOrInsert(deviceID, newDeviceInfo(adv))
	}

	event := DeviceEvent{Device: dev}
	if existing {
		dev.update(adv)
		event.Type = EventUpdated
	} else {
		s.logger.WithFields(logrus.Fields{
			"device":  dev.Name,
			"address": dev.Address,
			"rssi":    dev.RSSI,
		}).Info("Discovered new device")
		event.Type = EventNew
	}

	s.events.Send(event)
}

// shouldIncludeDevice applies the allow/block/service filters
func shouldIncludeDevice(adv blelib.Advertisement, opts *ScanOptions) bool {
	if opts == nil {
		return true
	}
	addr := adv.Addr().String()

	for _, blocked := range opts.BlockList {
		if addr == blocked {
			return false
		}
	}

	if len(opts.AllowList) > 0 {
		allowed := false
		for _, a := range opts.AllowList {
			if addr == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if len(opts.ServiceUUIDs) > 0 {
		required := bledb.NormalizeUUIDs(opts.ServiceUUIDs)
		hasRequired := false
		for _, req := range required {
			for _, advUUID := range adv.Services() {
				if bledb.NormalizeUUID(advUUID.String()) == req {
					hasRequired = true
					break
				}
			}
			if hasRequired {
				break
			}
		}
		if !hasRequired {
			return false
		}
	}

	return true
}

// Events returns a read-only channel of device events
func (s *Scanner) Events() <-chan DeviceEvent {
	return s.events.C()
}
