package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"github.com/itohio/freistat/pkg/config"
)

// DefaultBaudRate is the FreiStat firmware's UART speed.
const DefaultBaudRate = 230400

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
	USB         bool
	VID         string
	PID         string
}

// Serial is a brace-framed serial link to a FreiStat.
type Serial struct {
	cfg  config.SerialConfig
	opts options
	open func(name string, mode *serial.Mode) (serial.Port, error)

	conn      serial.Port
	telegrams chan []byte
	done      chan struct{}
	err       error
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
}

// NewSerial creates a serial transport. A closed transport cannot be
// reconnected.
func NewSerial(cfg config.SerialConfig, opts ...Option) *Serial {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultReadTimeout
	}
	o := newOptions(opts)

	ctx, cancel := context.WithCancel(context.Background())

	return &Serial{
		cfg:       cfg,
		opts:      o,
		open:      serial.Open,
		telegrams: make(chan []byte, o.bufSize),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		result := make([]Port, 0, len(details))
		for _, d := range details {
			desc := d.Product
			if desc == "" {
				desc = d.Name
			}
			result = append(result, Port{
				Name:        d.Name,
				Description: desc,
				USB:         d.IsUSB,
				VID:         d.VID,
				PID:         d.PID,
			})
		}
		return result, nil
	}

	// Detailed enumeration is not available on every OS.
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	result := make([]Port, 0, len(names))
	for _, name := range names {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// Connect opens the port, retrying for a while if the device is still
// enumerating, and starts reading telegrams.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return ErrAlreadyConnected
	}
	if d.ctx.Err() != nil {
		return ErrClosed
	}

	mode := &serial.Mode{
		BaudRate: d.cfg.BaudRate,
	}

	var port serial.Port
	err := retry(d.ctx, d.opts.openTimeout, d.opts.log, d.cfg.Port, func() error {
		p, err := d.open(d.cfg.Port, mode)
		if err != nil {
			return err
		}
		port = p
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.cfg.Port, err)
	}

	if err := port.SetReadTimeout(d.cfg.Timeout); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout on %s: %w", d.cfg.Port, err)
	}

	d.conn = port
	d.connected = true

	go d.read(port)

	return nil
}

// Close stops the reader, closes the port and waits for the telegrams
// channel to be closed.
func (d *Serial) Close() error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return nil
	}
	d.cancel()
	conn := d.conn
	d.conn = nil
	d.connected = false
	d.mu.Unlock()

	var err error
	if conn != nil {
		if err = conn.Close(); err != nil {
			d.opts.log.Warn("error closing serial port", zap.String("port", d.cfg.Port), zap.Error(err))
		}
	}
	<-d.done
	return err
}

// Send writes one telegram.
func (d *Serial) Send(telegram []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return ErrNotConnected
	}
	if _, err := d.conn.Write(telegram); err != nil {
		return fmt.Errorf("failed to send telegram: %w", err)
	}
	return nil
}

// Telegrams returns the channel of received telegrams.
func (d *Serial) Telegrams() <-chan []byte {
	return d.telegrams
}

// Err returns the error that stopped the reader, if any.
func (d *Serial) Err() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.err
}

// IsConnected returns whether the port is open.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// Link returns LinkSerial.
func (d *Serial) Link() Link { return LinkSerial }

func (d *Serial) fail(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

// read frames bytes from the port into telegrams. A read that times out
// returns no bytes and lets the loop observe cancellation.
func (d *Serial) read(conn io.Reader) {
	defer close(d.done)
	defer close(d.telegrams)
	defer func() {
		if r := recover(); r != nil {
			d.opts.log.Error("panic in serial reader", zap.Any("panic", r))
			d.fail(fmt.Errorf("serial reader panic: %v", r))
		}
	}()

	framer := NewFramer(d.opts.maxTelegram)
	buf := make([]byte, 512)
	for {
		select {
		case <-d.ctx.Done():
			return
		default:
		}

		n, err := conn.Read(buf)
		if err != nil {
			if d.ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				err = ErrClosed
			}
			d.opts.log.Error("error reading from serial port", zap.String("port", d.cfg.Port), zap.Error(err))
			d.fail(fmt.Errorf("serial read: %w", err))
			return
		}
		if n == 0 {
			continue
		}

		telegrams, err := framer.Feed(buf[:n])
		if err != nil {
			d.opts.log.Warn("dropping telegram", zap.Error(err))
		}
		for _, t := range telegrams {
			select {
			case d.telegrams <- t:
			case <-d.ctx.Done():
				return
			}
		}
	}
}
