package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/gattc/internal/gatt"
	goble "github.com/srg/gattc/internal/gatt/go-ble"
	"github.com/srg/gattc/pkg/config"
)

// connectSession dials the device and wraps the connection in a GATT session
// wired for notification delivery. The caller owns the session and must call
// Close when done.
func connectSession(ctx context.Context, address string, cfg *config.Config, logger *logrus.Logger) (*gatt.Session, error) {
	dialCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	transport, err := goble.Dial(dialCtx, address, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	opts := &gatt.SessionOptions{}
	if cfg.UseDiscoveredCCCD {
		opts.ConfigHandle = gatt.DiscoveredConfig
	}

	session := gatt.NewSession(address, transport, logger, opts)
	transport.SetSink(session)
	return session, nil
}

// withSession runs op against a freshly connected session and tears the
// connection down afterwards. The progress callback, when non-nil, is advanced
// through the connect phases.
func withSession(ctx context.Context, address string, cfg *config.Config, logger *logrus.Logger,
	progress func(phase string), op func(ctx context.Context, s *gatt.Session) error) error {

	if progress != nil {
		progress("Connecting")
	}

	start := time.Now()
	session, err := connectSession(ctx, address, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.WithError(cerr).Debug("Failed to close session")
		}
	}()

	logger.WithFields(logrus.Fields{
		"address":  address,
		"duration": time.Since(start),
	}).Debug("Connected to device")

	return op(ctx, session)
}
