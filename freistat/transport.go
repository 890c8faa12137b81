package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/itohio/freistat/pkg/config"
	"github.com/itohio/freistat/pkg/device"
)

// openTransport connects the transport selected by the configuration.
func openTransport(cfg *config.Config, log *zap.Logger) (device.Transport, error) {
	opts := []device.Option{
		device.WithLogger(log),
		device.WithBufferSize(cfg.Execute.BufferSize),
	}

	var tr device.Transport
	switch cfg.Transport.Mode {
	case config.ModeSerial:
		tr = device.NewSerial(cfg.Transport.Serial, opts...)
	case config.ModeUDP:
		tr = device.NewUDP(cfg.Transport.UDP, opts...)
	case config.ModeMock:
		tr = device.NewMock(&cfg.Mock, opts...)
	default:
		return nil, fmt.Errorf("unknown transport mode %q", cfg.Transport.Mode)
	}

	if err := tr.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect (%s): %w", cfg.Transport.Mode, err)
	}
	log.Info("connected", zap.String("mode", cfg.Transport.Mode), zap.Stringer("link", tr.Link()))
	return tr, nil
}
