package testutils

import (
	"context"
	"sync"

	"github.com/srg/gattc/internal/gatt"
)

// RecordedWrite captures one WriteHandle call made against a FakeTransport.
type RecordedWrite struct {
	Handle       uint16
	Value        []byte
	WithResponse bool
}

// FakeTransport is an in-memory gatt.Transport for tests. Discover returns
// the configured catalogs in order (the last one repeats); writes are
// recorded for assertion; notifications are injected via Notify.
type FakeTransport struct {
	Catalogs    []*gatt.ServiceCatalog
	DiscoverErr error
	WriteErr    error
	ReadValues  map[uint16][]byte
	ReadErr     error
	RSSIValue   int
	Sink        gatt.NotificationSink

	mu            sync.Mutex
	discoverCalls int
	writes        []RecordedWrite
	closed        bool
}

var _ gatt.Transport = (*FakeTransport)(nil)

func (t *FakeTransport) Discover(_ context.Context) (*gatt.ServiceCatalog, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.discoverCalls++
	if t.DiscoverErr != nil {
		return nil, t.DiscoverErr
	}
	if len(t.Catalogs) == 0 {
		return gatt.NewServiceCatalog(), nil
	}
	idx := t.discoverCalls - 1
	if idx >= len(t.Catalogs) {
		idx = len(t.Catalogs) - 1
	}
	return t.Catalogs[idx], nil
}

func (t *FakeTransport) WriteHandle(_ context.Context, handle uint16, value []byte, withResponse bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.WriteErr != nil {
		return t.WriteErr
	}
	// Copy: callers may reuse the slice
	buf := append([]byte(nil), value...)
	t.writes = append(t.writes, RecordedWrite{Handle: handle, Value: buf, WithResponse: withResponse})
	return nil
}

func (t *FakeTransport) ReadHandle(_ context.Context, handle uint16) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ReadErr != nil {
		return nil, t.ReadErr
	}
	return t.ReadValues[handle], nil
}

func (t *FakeTransport) RSSI() int {
	return t.RSSIValue
}

func (t *FakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Notify delivers a notification to the registered sink, simulating the
// transport's delivery goroutine.
func (t *FakeTransport) Notify(handle uint16, payload []byte) {
	if t.Sink != nil {
		t.Sink.HandleNotification(handle, payload)
	}
}

// DiscoverCalls returns how many discovery rounds were requested.
func (t *FakeTransport) DiscoverCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.discoverCalls
}

// Writes returns a copy of all recorded writes in call order.
func (t *FakeTransport) Writes() []RecordedWrite {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]RecordedWrite(nil), t.writes...)
}

// Closed reports whether Close was called.
func (t *FakeTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
