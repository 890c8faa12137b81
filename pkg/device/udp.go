package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/itohio/freistat/pkg/config"
)

// maxDatagram is the largest telegram the WLAN firmware sends in one packet.
const maxDatagram = 2048

// UDP is the WLAN link to a FreiStat. Each datagram carries one telegram.
// The host binds the server address and sends to the client address.
type UDP struct {
	cfg  config.UDPConfig
	opts options

	conn      *net.UDPConn
	client    *net.UDPAddr
	telegrams chan []byte
	done      chan struct{}
	err       error
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
}

// NewUDP creates a UDP transport. A closed transport cannot be reconnected.
func NewUDP(cfg config.UDPConfig, opts ...Option) *UDP {
	o := newOptions(opts)
	ctx, cancel := context.WithCancel(context.Background())
	return &UDP{
		cfg:       cfg,
		opts:      o,
		telegrams: make(chan []byte, o.bufSize),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Connect binds the server address and starts reading datagrams.
func (u *UDP) Connect() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.connected {
		return ErrAlreadyConnected
	}
	if u.ctx.Err() != nil {
		return ErrClosed
	}

	server, err := net.ResolveUDPAddr("udp", u.cfg.Server)
	if err != nil {
		return fmt.Errorf("invalid server address %q: %w", u.cfg.Server, err)
	}
	client, err := net.ResolveUDPAddr("udp", u.cfg.Client)
	if err != nil {
		return fmt.Errorf("invalid client address %q: %w", u.cfg.Client, err)
	}

	var conn *net.UDPConn
	err = retry(u.ctx, u.opts.openTimeout, u.opts.log, u.cfg.Server, func() error {
		c, err := net.ListenUDP("udp", server)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", u.cfg.Server, err)
	}

	u.conn = conn
	u.client = client
	u.connected = true

	go u.read(conn)

	return nil
}

// LocalAddr returns the bound address, or nil before Connect.
func (u *UDP) LocalAddr() net.Addr {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

// Close stops the reader and closes the socket.
func (u *UDP) Close() error {
	u.mu.Lock()
	if !u.connected {
		u.mu.Unlock()
		return nil
	}
	u.cancel()
	conn := u.conn
	u.conn = nil
	u.connected = false
	u.mu.Unlock()

	err := conn.Close()
	<-u.done
	return err
}

// Send writes one telegram as a datagram to the client address.
func (u *UDP) Send(telegram []byte) error {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if !u.connected {
		return ErrNotConnected
	}
	if _, err := u.conn.WriteToUDP(telegram, u.client); err != nil {
		return fmt.Errorf("failed to send telegram: %w", err)
	}
	return nil
}

// Telegrams returns the channel of received telegrams.
func (u *UDP) Telegrams() <-chan []byte {
	return u.telegrams
}

// Err returns the error that stopped the reader, if any.
func (u *UDP) Err() error {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.err
}

// IsConnected returns whether the socket is bound.
func (u *UDP) IsConnected() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.connected
}

// Link returns LinkWLAN.
func (u *UDP) Link() Link { return LinkWLAN }

func (u *UDP) read(conn *net.UDPConn) {
	defer close(u.done)
	defer close(u.telegrams)

	buf := make([]byte, maxDatagram)
	for {
		select {
		case <-u.ctx.Done():
			return
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(u.opts.readTimeout)); err != nil && u.ctx.Err() == nil {
			u.opts.log.Warn("failed to set read deadline", zap.Error(err))
		}
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if u.ctx.Err() != nil {
				return
			}
			u.opts.log.Error("error reading from socket", zap.String("server", u.cfg.Server), zap.Error(err))
			u.mu.Lock()
			u.err = fmt.Errorf("udp read: %w", err)
			u.mu.Unlock()
			return
		}

		telegram := bytes.TrimSpace(buf[:n])
		if len(telegram) == 0 {
			continue
		}
		select {
		case u.telegrams <- append([]byte(nil), telegram...):
		case <-u.ctx.Done():
			return
		}
	}
}
