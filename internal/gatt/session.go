package gatt

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// SessionOptions configures optional session behavior.
type SessionOptions struct {
	// ConfigHandle locates the CCCD for a characteristic.
	// Defaults to NextHandleConfig (value handle + 1).
	ConfigHandle ConfigHandleFunc
}

// Session is a GATT client session on a connected device. It lets callers
// address characteristics by UUID instead of raw attribute handles, manages
// notification subscriptions and fans incoming notifications out to
// registered callbacks.
//
// A single mutex guards the catalog snapshot, the subscription table and the
// callback lists. Discovery I/O runs outside the lock: a cache miss refreshes
// into a local catalog and swaps it in under a short critical section, so a
// slow discovery round never blocks notification dispatch.
//
// All methods are safe for concurrent use. A Session must not be used after
// Close.
type Session struct {
	address      string
	transport    Transport
	logger       *logrus.Logger
	configHandle ConfigHandleFunc

	mu      sync.Mutex
	catalog *ServiceCatalog
	subs    map[uint16]*subscription
	closed  bool
}

// NewSession creates a session over an established transport.
// The catalog starts empty; the first UUID resolution triggers discovery.
func NewSession(address string, transport Transport, logger *logrus.Logger, opts *SessionOptions) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	configHandle := NextHandleConfig
	if opts != nil && opts.ConfigHandle != nil {
		configHandle = opts.ConfigHandle
	}
	return &Session{
		address:      address,
		transport:    transport,
		logger:       logger,
		configHandle: configHandle,
		catalog:      NewServiceCatalog(),
		subs:         make(map[uint16]*subscription),
	}
}

// Address returns the device address this session is bound to.
func (s *Session) Address() string {
	return s.address
}

// Catalog returns the current catalog snapshot. The returned catalog is
// read-only and may be replaced by a later resolution miss; callers must not
// retain it across session operations that can refresh.
func (s *Session) Catalog() *ServiceCatalog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog
}

// Refresh forces a discovery round and replaces the catalog snapshot.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	t := s.transport
	s.mu.Unlock()

	fresh, err := t.Discover(ctx)
	if err != nil {
		return fmt.Errorf("service discovery: %w", err)
	}

	s.mu.Lock()
	s.catalog = fresh
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"address":  s.address,
		"services": fresh.Len(),
	}).Debug("Service catalog refreshed")
	return nil
}

// ResolveHandle resolves a characteristic UUID, optionally scoped to a
// service UUID (empty string for unscoped), to its value handle.
//
// Resolution searches the current catalog snapshot first. On a miss it
// performs exactly one discovery refresh and searches again; the refreshed
// snapshot stays visible to subsequent calls. A second miss fails with a
// NotFoundError naming the requested UUID pair.
func (s *Session) ResolveHandle(ctx context.Context, charUUID, serviceUUID string) (uint16, error) {
	c, err := s.resolveCharacteristic(ctx, charUUID, serviceUUID)
	if err != nil {
		return 0, err
	}
	return c.ValueHandle, nil
}

func (s *Session) resolveCharacteristic(ctx context.Context, charUUID, serviceUUID string) (*Characteristic, error) {
	cu, err := ParseUUID(charUUID)
	if err != nil {
		return nil, err
	}
	var su UUID
	if serviceUUID != "" {
		if su, err = ParseUUID(serviceUUID); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if c, ok := s.catalog.Find(cu, su); ok {
		s.mu.Unlock()
		return c, nil
	}
	t := s.transport
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"char_uuid":    cu,
		"service_uuid": su,
	}).Debug("Characteristic not in catalog, refreshing")

	// One refresh per call. The discovery round runs outside the lock so it
	// cannot stall notification dispatch; the snapshot swap is all that
	// happens under the mutex.
	fresh, err := t.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("service discovery: %w", err)
	}

	s.mu.Lock()
	s.catalog = fresh
	c, ok := s.catalog.Find(cu, su)
	s.mu.Unlock()

	if !ok {
		uuids := []string{string(cu)}
		if su != "" {
			uuids = []string{string(su), string(cu)}
		}
		nf := &NotFoundError{Resource: "characteristic", UUIDs: uuids}
		s.logger.WithField("error", nf).Warn("Characteristic resolution failed")
		return nil, nf
	}
	return c, nil
}

// Subscribe enables notifications (or indications) for a characteristic and
// optionally registers a callback for incoming payloads.
//
// The configuration write is issued only when the desired value differs from
// what was last written for the handle, so repeated identical calls produce
// at most one wire write. Callbacks accumulate per handle and cannot be
// removed individually; Unsubscribe clears them all. Registrations are not
// deduplicated: the same callback registered twice is invoked twice per
// notification.
func (s *Session) Subscribe(ctx context.Context, charUUID, serviceUUID string, callback Callback, indication bool) error {
	c, err := s.resolveCharacteristic(ctx, charUUID, serviceUUID)
	if err != nil {
		return err
	}
	configHandle := s.configHandle(c)

	desired := cccdNotification
	if indication {
		desired = cccdIndication
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	rec, ok := s.subs[c.ValueHandle]
	if !ok {
		rec = &subscription{}
		s.subs[c.ValueHandle] = rec
	}
	if callback != nil {
		rec.callbacks = append(rec.callbacks, callback)
	}

	if rec.configured == desired {
		s.logger.WithField("char_uuid", c.UUID).Debug("Already subscribed")
		return nil
	}

	if err := s.transport.WriteHandle(ctx, configHandle, encodeCCCD(desired), false); err != nil {
		if rec.empty() {
			delete(s.subs, c.ValueHandle)
		}
		return fmt.Errorf("enable notifications for %q: %w", c.UUID, err)
	}
	rec.configured = desired

	s.logger.WithFields(logrus.Fields{
		"char_uuid":     c.UUID,
		"value_handle":  c.ValueHandle,
		"config_handle": configHandle,
		"indication":    indication,
	}).Info("Subscribed to characteristic")
	return nil
}

// Unsubscribe disables notifications for a characteristic and drops all
// callbacks registered for its value handle. Unsubscribing a characteristic
// that has no active subscription is a logged no-op.
func (s *Session) Unsubscribe(ctx context.Context, charUUID, serviceUUID string) error {
	c, err := s.resolveCharacteristic(ctx, charUUID, serviceUUID)
	if err != nil {
		return err
	}
	configHandle := s.configHandle(c)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if _, ok := s.subs[c.ValueHandle]; !ok {
		s.logger.WithField("char_uuid", c.UUID).Debug("Already unsubscribed")
		return nil
	}
	delete(s.subs, c.ValueHandle)

	if err := s.transport.WriteHandle(ctx, configHandle, encodeCCCD(cccdDisabled), false); err != nil {
		return fmt.Errorf("disable notifications for %q: %w", c.UUID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"char_uuid":    c.UUID,
		"value_handle": c.ValueHandle,
	}).Info("Unsubscribed from characteristic")
	return nil
}

// HandleNotification is the transport's delivery entry point. It invokes
// every callback registered for the handle with the payload, in registration
// order. Notifications for handles with no registered callbacks are expected
// and silently dropped.
//
// Callbacks run synchronously under the session lock; see Callback.
// A panicking callback is recovered and logged so it can neither corrupt the
// subscription table nor kill the transport's delivery goroutine.
func (s *Session) HandleNotification(handle uint16, payload []byte) {
	s.logger.WithFields(logrus.Fields{
		"handle": fmt.Sprintf("0x%x", handle),
		"value":  hex.EncodeToString(payload),
	}).Debug("Received notification")

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.subs[handle]
	if !ok {
		s.logger.WithField("handle", fmt.Sprintf("0x%x", handle)).Debug("No callbacks registered, dropping notification")
		return
	}
	for _, cb := range rec.callbacks {
		s.invoke(cb, handle, payload)
	}
}

func (s *Session) invoke(cb Callback, handle uint16, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{
				"handle": fmt.Sprintf("0x%x", handle),
				"panic":  r,
			}).Error("Notification callback panicked")
		}
	}()
	cb(handle, payload)
}

// CharWrite writes a value to a characteristic addressed by UUID.
func (s *Session) CharWrite(ctx context.Context, charUUID string, value []byte, serviceUUID string, withResponse bool) error {
	handle, err := s.ResolveHandle(ctx, charUUID, serviceUUID)
	if err != nil {
		return err
	}
	return s.CharWriteHandle(ctx, handle, value, withResponse)
}

// CharWriteHandle writes a value to an attribute addressed by handle. This
// can be used to write to a configuration descriptor directly.
func (s *Session) CharWriteHandle(ctx context.Context, handle uint16, value []byte, withResponse bool) error {
	if err := s.transport.WriteHandle(ctx, handle, value, withResponse); err != nil {
		return fmt.Errorf("write handle 0x%x: %w", handle, err)
	}
	return nil
}

// CharRead reads the value of a characteristic addressed by UUID.
func (s *Session) CharRead(ctx context.Context, charUUID, serviceUUID string) ([]byte, error) {
	handle, err := s.ResolveHandle(ctx, charUUID, serviceUUID)
	if err != nil {
		return nil, err
	}
	return s.CharReadHandle(ctx, handle)
}

// CharReadHandle reads the value of an attribute addressed by handle.
func (s *Session) CharReadHandle(ctx context.Context, handle uint16) ([]byte, error) {
	value, err := s.transport.ReadHandle(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("read handle 0x%x: %w", handle, err)
	}
	return value, nil
}

// RSSI returns the received signal strength reported by the transport.
func (s *Session) RSSI() int {
	return s.transport.RSSI()
}

// Close tears down the transport connection. The session cannot be used
// afterwards; create a new one to reconnect.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.subs = make(map[uint16]*subscription)
	t := s.transport
	s.mu.Unlock()

	s.logger.WithField("address", s.address).Info("Closing GATT session")
	return t.Close()
}
