package gatt_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/srg/gattc/internal/gatt"
	"github.com/srg/gattc/internal/testutils"
)

const testAddress = "AA:BB:CC:DD:EE:FF"

type SessionSuite struct {
	suite.Suite

	ctx       context.Context
	transport *testutils.FakeTransport
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

func (s *SessionSuite) SetupTest() {
	s.ctx = context.Background()
	s.transport = &testutils.FakeTransport{}
}

// newSession builds a session whose transport serves the given catalogs in
// discovery order (the last one repeats).
func (s *SessionSuite) newSession(catalogs ...*gatt.ServiceCatalog) *gatt.Session {
	return s.newSessionWithOpts(nil, catalogs...)
}

func (s *SessionSuite) newSessionWithOpts(opts *gatt.SessionOptions, catalogs ...*gatt.ServiceCatalog) *gatt.Session {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	s.transport.Catalogs = catalogs
	session := gatt.NewSession(testAddress, s.transport, logger, opts)
	s.transport.Sink = session
	return session
}

// heartRateCatalog is the canonical fixture: Heart Rate service 180d with the
// Heart Rate Measurement characteristic 2a37 at value handle 10.
func heartRateCatalog() *gatt.ServiceCatalog {
	return testutils.NewCatalogBuilder().
		Service("180d").
		Char("2a37", 10).
		Char("2a38", 14).
		Build()
}

// ----------------------------
// Resolution
// ----------------------------

func (s *SessionSuite) TestResolveCachedHitDoesNotRefresh() {
	session := s.newSession(heartRateCatalog())
	s.Require().NoError(session.Refresh(s.ctx))
	s.Equal(1, s.transport.DiscoverCalls())

	handle, err := session.ResolveHandle(s.ctx, "2a37", "180d")
	s.Require().NoError(err)
	s.Equal(uint16(10), handle)
	s.Equal(1, s.transport.DiscoverCalls(), "cached hit must not trigger discovery")

	// Unscoped resolution hits the same cache
	handle, err = session.ResolveHandle(s.ctx, "2a38", "")
	s.Require().NoError(err)
	s.Equal(uint16(14), handle)
	s.Equal(1, s.transport.DiscoverCalls())
}

func (s *SessionSuite) TestResolveMissTriggersExactlyOneRefresh() {
	session := s.newSession(gatt.NewServiceCatalog(), heartRateCatalog())
	s.Require().NoError(session.Refresh(s.ctx)) // primes the empty snapshot

	handle, err := session.ResolveHandle(s.ctx, "2a37", "180d")
	s.Require().NoError(err)
	s.Equal(uint16(10), handle)
	s.Equal(2, s.transport.DiscoverCalls(), "miss must refresh exactly once")

	// The refreshed snapshot is visible to subsequent calls
	_, err = session.ResolveHandle(s.ctx, "2a38", "180d")
	s.Require().NoError(err)
	s.Equal(2, s.transport.DiscoverCalls())
}

func (s *SessionSuite) TestResolveNotFoundAfterSingleRefresh() {
	session := s.newSession(heartRateCatalog())

	_, err := session.ResolveHandle(s.ctx, "2a19", "180f")
	s.Require().Error(err)
	s.Equal(1, s.transport.DiscoverCalls(), "failed resolution must refresh exactly once, never loop")

	var nf *gatt.NotFoundError
	s.Require().True(errors.As(err, &nf))
	s.Equal([]string{"180f", "2a19"}, nf.UUIDs, "error names the requested UUID pair")
	s.Contains(err.Error(), "2a19")
	s.Contains(err.Error(), "180f")

	// Each call gets its own single refresh attempt
	_, err = session.ResolveHandle(s.ctx, "2a19", "180f")
	s.Require().Error(err)
	s.Equal(2, s.transport.DiscoverCalls())
}

func (s *SessionSuite) TestResolveInvalidUUIDFailsFast() {
	session := s.newSession(heartRateCatalog())

	_, err := session.ResolveHandle(s.ctx, "not-a-uuid", "")
	s.Require().Error(err)
	s.True(gatt.IsInvalidUUID(err))

	_, err = session.ResolveHandle(s.ctx, "2a37", "also bad")
	s.Require().Error(err)
	s.True(gatt.IsInvalidUUID(err))

	s.Equal(0, s.transport.DiscoverCalls(), "malformed UUIDs must never reach the catalog or transport")
}

func (s *SessionSuite) TestResolveDiscoveryErrorPropagates() {
	session := s.newSession()
	s.transport.DiscoverErr = errors.New("link supervision timeout")

	_, err := session.ResolveHandle(s.ctx, "2a37", "180d")
	s.Require().Error(err)
	s.ErrorContains(err, "link supervision timeout")
}

// ----------------------------
// Subscription
// ----------------------------

func (s *SessionSuite) TestSubscribeWritesConfigOnce() {
	session := s.newSession(heartRateCatalog())

	var got [][]byte
	cb := func(handle uint16, payload []byte) {
		got = append(got, append([]byte(nil), payload...))
	}

	s.Require().NoError(session.Subscribe(s.ctx, "2a37", "180d", cb, false))

	writes := s.transport.Writes()
	s.Require().Len(writes, 1)
	s.Equal(uint16(11), writes[0].Handle, "config descriptor assumed at value handle + 1")
	s.Equal([]byte{0x01, 0x00}, writes[0].Value)
	s.False(writes[0].WithResponse)

	// Second identical subscribe: no further wire write
	s.Require().NoError(session.Subscribe(s.ctx, "2a37", "180d", cb, false))
	s.Len(s.transport.Writes(), 1)

	// Delivery reaches both registered callbacks (same fn registered twice)
	s.transport.Notify(10, []byte{0x06, 0x48})
	s.Require().Len(got, 2)
	s.Equal([]byte{0x06, 0x48}, got[0])
}

func (s *SessionSuite) TestSubscribeIndication() {
	session := s.newSession(heartRateCatalog())

	s.Require().NoError(session.Subscribe(s.ctx, "2a37", "180d", nil, true))
	writes := s.transport.Writes()
	s.Require().Len(writes, 1)
	s.Equal([]byte{0x02, 0x00}, writes[0].Value)

	// Switching notification mode changes the configured value and rewrites
	s.Require().NoError(session.Subscribe(s.ctx, "2a37", "180d", nil, false))
	writes = s.transport.Writes()
	s.Require().Len(writes, 2)
	s.Equal([]byte{0x01, 0x00}, writes[1].Value)
}

func (s *SessionSuite) TestSubscribeWithoutCallback() {
	session := s.newSession(heartRateCatalog())

	s.Require().NoError(session.Subscribe(s.ctx, "2a37", "180d", nil, false))
	s.Len(s.transport.Writes(), 1)

	// Nothing registered for the handle: delivery is a silent drop
	s.NotPanics(func() { s.transport.Notify(10, []byte{0x01}) })
}

func (s *SessionSuite) TestSubscribeConfigWriteErrorPropagates() {
	session := s.newSession(heartRateCatalog())
	s.transport.WriteErr = errors.New("att write rejected")

	err := session.Subscribe(s.ctx, "2a37", "180d", nil, false)
	s.Require().Error(err)
	s.ErrorContains(err, "att write rejected")

	// The failed write must not be recorded as configured: a retry writes again
	s.transport.WriteErr = nil
	s.Require().NoError(session.Subscribe(s.ctx, "2a37", "180d", nil, false))
	s.Len(s.transport.Writes(), 1)
}

func (s *SessionSuite) TestUnsubscribeActiveSubscription() {
	session := s.newSession(heartRateCatalog())

	invoked := 0
	s.Require().NoError(session.Subscribe(s.ctx, "2a37", "180d", func(uint16, []byte) { invoked++ }, false))
	s.Require().NoError(session.Unsubscribe(s.ctx, "2a37", "180d"))

	writes := s.transport.Writes()
	s.Require().Len(writes, 2)
	s.Equal(uint16(11), writes[1].Handle)
	s.Equal([]byte{0x00, 0x00}, writes[1].Value)

	// Callback set was removed along with the record
	s.transport.Notify(10, []byte{0x06, 0x48})
	s.Equal(0, invoked)
}

func (s *SessionSuite) TestUnsubscribeWithoutSubscriptionIsNoop() {
	session := s.newSession(heartRateCatalog())

	s.Require().NoError(session.Unsubscribe(s.ctx, "2a37", "180d"))
	s.Empty(s.transport.Writes(), "unsubscribe of an unknown handle must not write")
}

func (s *SessionSuite) TestDiscoveredConfigHandleStrategy() {
	catalog := testutils.NewCatalogBuilder().
		Service("180d").
		CharWithCCCD("2a37", 10, 42).
		Char("2a38", 14).
		Build()
	session := s.newSessionWithOpts(&gatt.SessionOptions{ConfigHandle: gatt.DiscoveredConfig}, catalog)

	s.Require().NoError(session.Subscribe(s.ctx, "2a37", "180d", nil, false))
	writes := s.transport.Writes()
	s.Require().Len(writes, 1)
	s.Equal(uint16(42), writes[0].Handle, "discovered CCCD handle wins over the +1 convention")

	// No discovered CCCD handle: fall back to value handle + 1
	s.Require().NoError(session.Subscribe(s.ctx, "2a38", "180d", nil, false))
	writes = s.transport.Writes()
	s.Require().Len(writes, 2)
	s.Equal(uint16(15), writes[1].Handle)
}

// ----------------------------
// Dispatch
// ----------------------------

func (s *SessionSuite) TestDispatchFanOut() {
	session := s.newSession(heartRateCatalog())

	var a, b [][]byte
	s.Require().NoError(session.Subscribe(s.ctx, "2a37", "180d", func(_ uint16, p []byte) {
		a = append(a, append([]byte(nil), p...))
	}, false))
	s.Require().NoError(session.Subscribe(s.ctx, "2a37", "180d", func(_ uint16, p []byte) {
		b = append(b, append([]byte(nil), p...))
	}, false))

	payload := []byte{0x06, 0x48}
	s.transport.Notify(10, payload)

	s.Require().Len(a, 1)
	s.Require().Len(b, 1)
	s.Equal(payload, a[0])
	s.Equal(payload, b[0])

	// Unregistered handle: nobody is invoked
	s.transport.Notify(99, payload)
	s.Len(a, 1)
	s.Len(b, 1)
}

func (s *SessionSuite) TestDispatchRecoversCallbackPanic() {
	session := s.newSession(heartRateCatalog())

	invoked := 0
	s.Require().NoError(session.Subscribe(s.ctx, "2a37", "180d", func(uint16, []byte) {
		panic("boom")
	}, false))
	s.Require().NoError(session.Subscribe(s.ctx, "2a37", "180d", func(uint16, []byte) {
		invoked++
	}, false))

	s.NotPanics(func() { s.transport.Notify(10, []byte{0x01}) })
	s.Equal(1, invoked, "a panicking callback must not starve the others")

	// Table is intact: a later dispatch still works
	s.NotPanics(func() { s.transport.Notify(10, []byte{0x02}) })
	s.Equal(2, invoked)
}

func (s *SessionSuite) TestConcurrentSubscribeAndDispatch() {
	session := s.newSession(heartRateCatalog())

	var mu sync.Mutex
	delivered := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = session.Subscribe(s.ctx, "2a37", "180d", func(uint16, []byte) {
				mu.Lock()
				delivered++
				mu.Unlock()
			}, false)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.transport.Notify(10, []byte{0x06, 0x48})
		}()
	}
	wg.Wait()

	s.Len(s.transport.Writes(), 1, "concurrent subscribes still produce exactly one config write")

	// All callbacks registered by now: one more notification reaches all 8
	before := delivered
	s.transport.Notify(10, []byte{0x06, 0x48})
	s.Equal(before+8, delivered)
}

// ----------------------------
// Read/write wrappers and lifecycle
// ----------------------------

func (s *SessionSuite) TestCharWriteUnknownCharacteristic() {
	session := s.newSession(heartRateCatalog())

	err := session.CharWrite(s.ctx, "2a39", []byte{0x01}, "", true)
	s.Require().Error(err)
	s.True(gatt.IsNotFound(err))
	s.Empty(s.transport.Writes(), "unknown char must fail before writing")
}

func (s *SessionSuite) TestCharWriteKnownCharacteristic() {
	catalog := testutils.NewCatalogBuilder().
		Service("180d").
		Char("2a39", 16).
		Build()
	session := s.newSession(catalog)

	s.Require().NoError(session.CharWrite(s.ctx, "2a39", []byte{0x01}, "180d", true))

	writes := s.transport.Writes()
	s.Require().Len(writes, 1)
	s.Equal(uint16(16), writes[0].Handle)
	s.Equal([]byte{0x01}, writes[0].Value)
	s.True(writes[0].WithResponse)
}

func (s *SessionSuite) TestCharRead() {
	session := s.newSession(heartRateCatalog())
	s.transport.ReadValues = map[uint16][]byte{14: {0x01}}

	value, err := session.CharRead(s.ctx, "2a38", "180d")
	s.Require().NoError(err)
	s.Equal([]byte{0x01}, value)
}

func (s *SessionSuite) TestCloseRejectsFurtherOperations() {
	session := s.newSession(heartRateCatalog())

	s.Require().NoError(session.Close())
	s.True(s.transport.Closed())

	_, err := session.ResolveHandle(s.ctx, "2a37", "180d")
	s.ErrorIs(err, gatt.ErrClosed)
	s.ErrorIs(session.Subscribe(s.ctx, "2a37", "180d", nil, false), gatt.ErrClosed)

	s.NoError(session.Close(), "double close is a no-op")
}
