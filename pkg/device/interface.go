// Package device holds the transports that carry telegrams between the host
// and a FreiStat, including an in-process emulator of its firmware.
package device

import "errors"

var (
	ErrAlreadyConnected = errors.New("already connected")
	ErrNotConnected     = errors.New("not connected")
	ErrClosed           = errors.New("transport closed")
)

// Transport carries telegrams to and from a FreiStat (real or emulated).
// Telegrams delivers whole telegrams in arrival order. The channel is closed
// when the transport is closed or its reader fails; Err tells which.
type Transport interface {
	Connect() error
	Close() error
	Send(telegram []byte) error
	Telegrams() <-chan []byte
	Err() error
	IsConnected() bool
	Link() Link
}

// Ensure Serial implements Transport.
var _ Transport = (*Serial)(nil)

// Ensure UDP implements Transport.
var _ Transport = (*UDP)(nil)

// Ensure Mock implements Transport.
var _ Transport = (*Mock)(nil)

// Link identifies the physical channel. Timing limits of the instrument
// differ per link.
type Link int

const (
	LinkSerial Link = iota + 1
	LinkWLAN
)

func (l Link) String() string {
	switch l {
	case LinkSerial:
		return "serial"
	case LinkWLAN:
		return "wlan"
	}
	return "unknown"
}
