// Package goble implements gatt.Transport over github.com/go-ble/ble.
package goble

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
	"github.com/sirupsen/logrus"

	"github.com/srg/gattc/internal/gatt"
)

const (
	// DefaultConnectTimeout bounds the dial phase when the caller's context
	// carries no deadline of its own.
	DefaultConnectTimeout = 30 * time.Second
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
var DeviceFactory = func() (ble.Device, error) {
	dev, err := darwin.NewDevice()
	if err != nil {
		if strings.Contains(err.Error(), "central manager has invalid state") {
			return nil, fmt.Errorf("Bluetooth is not ready - %w", err)
		}
		return nil, err
	}
	return dev, nil
}

// Transport is a live go-ble connection exposed through the gatt.Transport
// boundary. Attribute handles come from go-ble's profile discovery; the
// handle maps built during Discover let WriteHandle and ReadHandle address
// attributes the way the session does.
//
// go-ble manages CCCD writes itself as part of its Subscribe/Unsubscribe
// calls, so a configuration write arriving by CCCD handle is translated into
// the corresponding Subscribe/Unsubscribe call instead of a raw descriptor
// write. That keeps go-ble's notification routing intact.
type Transport struct {
	client ble.Client
	logger *logrus.Logger

	mu    sync.Mutex
	sink  gatt.NotificationSink
	chars map[uint16]*ble.Characteristic // by value handle
	cccds map[uint16]*ble.Characteristic // owning characteristic by CCCD handle
	modes map[uint16]uint16              // active CCCD value by value handle
}

var _ gatt.Transport = (*Transport)(nil)

// Dial connects to the device at the given address and returns a transport
// ready for discovery. The returned transport has no notification sink yet;
// call SetSink with the session before subscribing.
func Dial(ctx context.Context, address string, logger *logrus.Logger) (*Transport, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("device address is not set")
	}

	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	ble.SetDefaultDevice(dev)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultConnectTimeout)
		defer cancel()
	}

	logger.WithField("address", address).Info("Connecting to BLE device...")
	client, err := ble.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device %q: %w", address, err)
	}

	return &Transport{
		client: client,
		logger: logger,
		chars:  make(map[uint16]*ble.Characteristic),
		cccds:  make(map[uint16]*ble.Characteristic),
		modes:  make(map[uint16]uint16),
	}, nil
}

// SetSink registers the session that receives notifications from this link.
func (t *Transport) SetSink(sink gatt.NotificationSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink = sink
}

// Discover runs go-ble profile discovery and builds a catalog snapshot.
// The handle maps used by WriteHandle/ReadHandle are rebuilt as a side
// effect, so a re-discovery also refreshes them.
func (t *Transport) Discover(_ context.Context) (*gatt.ServiceCatalog, error) {
	profile, err := t.client.DiscoverProfile(true)
	if err != nil {
		return nil, fmt.Errorf("failed to discover profile: %w", err)
	}

	catalog := gatt.NewServiceCatalog()
	chars := make(map[uint16]*ble.Characteristic)
	cccds := make(map[uint16]*ble.Characteristic)

	for _, bleSvc := range profile.Services {
		svcUUID, err := gatt.ParseUUID(bleSvc.UUID.String())
		if err != nil {
			t.logger.WithFields(logrus.Fields{
				"service_uuid": bleSvc.UUID.String(),
				"error":        err,
			}).Warn("Skipping service with unparsable UUID")
			continue
		}
		svc := catalog.AddService(svcUUID)

		for _, bleChar := range bleSvc.Characteristics {
			charUUID, err := gatt.ParseUUID(bleChar.UUID.String())
			if err != nil {
				t.logger.WithFields(logrus.Fields{
					"char_uuid": bleChar.UUID.String(),
					"error":     err,
				}).Warn("Skipping characteristic with unparsable UUID")
				continue
			}

			var cccdHandle uint16
			if bleChar.CCCD != nil {
				cccdHandle = bleChar.CCCD.Handle
				cccds[cccdHandle] = bleChar
			}
			svc.AddCharacteristic(&gatt.Characteristic{
				UUID:        charUUID,
				ValueHandle: bleChar.VHandle,
				CCCDHandle:  cccdHandle,
				Properties:  propsToString(bleChar.Property),
			})
			chars[bleChar.VHandle] = bleChar

			t.logger.WithFields(logrus.Fields{
				"service_uuid": svcUUID,
				"char_uuid":    charUUID,
				"value_handle": bleChar.VHandle,
			}).Debug("Found characteristic")
		}
	}

	t.mu.Lock()
	t.chars = chars
	t.cccds = cccds
	t.mu.Unlock()

	t.logger.WithField("services", catalog.Len()).Info("Service discovery completed")
	return catalog, nil
}

// WriteHandle writes to the attribute with the given handle.
// CCCD handles are translated into go-ble Subscribe/Unsubscribe calls;
// value handles become characteristic writes; anything else falls back to a
// raw write against a synthetic characteristic carrying just the handle.
func (t *Transport) WriteHandle(_ context.Context, handle uint16, value []byte, withResponse bool) error {
	t.mu.Lock()
	if owner, ok := t.cccds[handle]; ok {
		t.mu.Unlock()
		return t.writeCCCD(owner, value)
	}
	char, ok := t.chars[handle]
	t.mu.Unlock()

	if !ok {
		// Unknown handle: the session may address a descriptor directly,
		// e.g. with the value-handle+1 convention on backends whose
		// discovery did not report CCCDs.
		t.logger.WithField("handle", fmt.Sprintf("0x%x", handle)).Debug("Raw write to handle outside the discovered profile")
		char = &ble.Characteristic{VHandle: handle}
	}
	if err := t.client.WriteCharacteristic(char, value, !withResponse); err != nil {
		return fmt.Errorf("write to handle 0x%x failed: %w", handle, err)
	}
	return nil
}

// writeCCCD maps a configuration value onto go-ble's subscription calls.
func (t *Transport) writeCCCD(char *ble.Characteristic, value []byte) error {
	if len(value) != 2 {
		return fmt.Errorf("CCCD value must be 2 bytes, got %d", len(value))
	}
	desired := binary.LittleEndian.Uint16(value)

	t.mu.Lock()
	current := t.modes[char.VHandle]
	sink := t.sink
	t.mu.Unlock()

	if desired == current {
		return nil
	}

	// Tear down the previous mode before enabling a new one
	if current != 0 {
		if err := t.client.Unsubscribe(char, current == 0x0002); err != nil {
			return fmt.Errorf("unsubscribe failed: %w", err)
		}
	}

	if desired != 0 {
		if sink == nil {
			return fmt.Errorf("no notification sink registered")
		}
		valueHandle := char.VHandle
		handler := func(data []byte) {
			sink.HandleNotification(valueHandle, data)
		}
		if err := t.client.Subscribe(char, desired == 0x0002, handler); err != nil {
			return fmt.Errorf("subscribe failed: %w", err)
		}
	}

	t.mu.Lock()
	if desired == 0 {
		delete(t.modes, char.VHandle)
	} else {
		t.modes[char.VHandle] = desired
	}
	t.mu.Unlock()
	return nil
}

// ReadHandle reads the attribute with the given handle.
func (t *Transport) ReadHandle(_ context.Context, handle uint16) ([]byte, error) {
	t.mu.Lock()
	char, ok := t.chars[handle]
	t.mu.Unlock()

	if !ok {
		char = &ble.Characteristic{VHandle: handle}
	}
	data, err := t.client.ReadCharacteristic(char)
	if err != nil {
		return nil, fmt.Errorf("read from handle 0x%x failed: %w", handle, err)
	}
	return data, nil
}

// RSSI returns the current signal strength of the connection.
func (t *Transport) RSSI() int {
	return t.client.ReadRSSI()
}

// Close unsubscribes from all active notifications and drops the connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	active := make(map[uint16]uint16, len(t.modes))
	for vh, mode := range t.modes {
		active[vh] = mode
	}
	t.modes = make(map[uint16]uint16)
	chars := t.chars
	t.mu.Unlock()

	for vh, mode := range active {
		char, ok := chars[vh]
		if !ok {
			continue
		}
		if err := t.client.Unsubscribe(char, mode == 0x0002); err != nil {
			t.logger.WithFields(logrus.Fields{
				"value_handle": fmt.Sprintf("0x%x", vh),
				"error":        err,
			}).Warn("Failed to unsubscribe during disconnect")
		}
	}

	err := t.client.CancelConnection()
	if err != nil {
		t.logger.WithField("error", err).Warn("BLE device disconnected with errors")
	} else {
		t.logger.Info("BLE device disconnected")
	}
	return err
}

// propsToString renders a characteristic property bitmask as a compact
// human-readable list, e.g. "read|notify".
func propsToString(p ble.Property) string {
	var parts []string
	if p&ble.CharBroadcast != 0 {
		parts = append(parts, "broadcast")
	}
	if p&ble.CharRead != 0 {
		parts = append(parts, "read")
	}
	if p&ble.CharWriteNR != 0 {
		parts = append(parts, "write-without-response")
	}
	if p&ble.CharWrite != 0 {
		parts = append(parts, "write")
	}
	if p&ble.CharNotify != 0 {
		parts = append(parts, "notify")
	}
	if p&ble.CharIndicate != 0 {
		parts = append(parts, "indicate")
	}
	if p&ble.CharSignedWrite != 0 {
		parts = append(parts, "signed-write")
	}
	if p&ble.CharExtended != 0 {
		parts = append(parts, "extended")
	}
	return strings.Join(parts, "|")
}
