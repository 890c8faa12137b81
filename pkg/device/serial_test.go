package device

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/itohio/freistat/pkg/config"
)

// fakePort is an in-memory serial.Port. Reads return queued chunks or time
// out after the configured read timeout.
type fakePort struct {
	mu      sync.Mutex
	chunks  chan []byte
	written [][]byte
	timeout time.Duration
	closed  chan struct{}
	readErr error
}

func newFakePort() *fakePort {
	return &fakePort{
		chunks:  make(chan []byte, 16),
		timeout: 10 * time.Millisecond,
		closed:  make(chan struct{}),
	}
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	err := p.readErr
	p.mu.Unlock()
	if err != nil {
		return 0, err
	}
	select {
	case c := <-p.chunks:
		return copy(b, c), nil
	case <-p.closed:
		return 0, errors.New("port closed")
	case <-time.After(p.timeout):
		return 0, nil
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, append([]byte(nil), b...))
	return len(b), nil
}

func (p *fakePort) Close() error {
	close(p.closed)
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

func (p *fakePort) SetMode(*serial.Mode) error                          { return nil }
func (p *fakePort) Drain() error                                        { return nil }
func (p *fakePort) ResetInputBuffer() error                             { return nil }
func (p *fakePort) ResetOutputBuffer() error                            { return nil }
func (p *fakePort) SetDTR(bool) error                                   { return nil }
func (p *fakePort) SetRTS(bool) error                                   { return nil }
func (p *fakePort) GetModemStatusBits() (*serial.ModemStatusBits, error) { return &serial.ModemStatusBits{}, nil }
func (p *fakePort) Break(time.Duration) error                           { return nil }

func newTestSerial(port *fakePort, opts ...Option) *Serial {
	opts = append([]Option{WithOpenTimeout(50 * time.Millisecond)}, opts...)
	s := NewSerial(config.SerialConfig{Port: "fake", Timeout: 10 * time.Millisecond}, opts...)
	s.open = func(string, *serial.Mode) (serial.Port, error) { return port, nil }
	return s
}

func TestSerial_ReceivesTelegrams(t *testing.T) {
	port := newFakePort()
	s := newTestSerial(port)
	require.NoError(t, s.Connect())
	defer s.Close()

	assert.True(t, s.IsConnected())
	assert.Equal(t, LinkSerial, s.Link())
	assert.Equal(t, 10*time.Millisecond, port.timeout)

	port.chunks <- []byte(`{"A":1}{"R":1,"M":{"D":0,`)
	port.chunks <- []byte(`"V":1,"C":2,"T":3}}`)

	for _, want := range []string{`{"A":1}`, `{"R":1,"M":{"D":0,"V":1,"C":2,"T":3}}`} {
		select {
		case got := <-s.Telegrams():
			assert.Equal(t, want, string(got))
		case <-time.After(5 * time.Second):
			t.Fatal("telegram not received")
		}
	}
}

func TestSerial_Send(t *testing.T) {
	port := newFakePort()
	s := newTestSerial(port)

	assert.ErrorIs(t, s.Send([]byte(`{"C":3,"ExC":"Stop"}`)), ErrNotConnected)

	require.NoError(t, s.Connect())
	require.NoError(t, s.Send([]byte(`{"C":3,"ExC":"Stop"}`)))
	require.NoError(t, s.Close())

	require.Len(t, port.written, 1)
	assert.Equal(t, `{"C":3,"ExC":"Stop"}`, string(port.written[0]))
}

func TestSerial_ConnectTwice(t *testing.T) {
	s := newTestSerial(newFakePort())
	require.NoError(t, s.Connect())
	defer s.Close()
	assert.ErrorIs(t, s.Connect(), ErrAlreadyConnected)
}

func TestSerial_OpenRetries(t *testing.T) {
	port := newFakePort()
	s := newTestSerial(port, WithOpenTimeout(5*time.Second))
	attempts := 0
	s.open = func(string, *serial.Mode) (serial.Port, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("busy")
		}
		return port, nil
	}

	require.NoError(t, s.Connect())
	defer s.Close()
	assert.Equal(t, 3, attempts)
}

func TestSerial_OpenFails(t *testing.T) {
	s := newTestSerial(newFakePort())
	s.open = func(string, *serial.Mode) (serial.Port, error) {
		return nil, errors.New("no such port")
	}

	err := s.Connect()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such port")
	assert.False(t, s.IsConnected())
}

func TestSerial_ReadErrorClosesChannel(t *testing.T) {
	port := newFakePort()
	port.readErr = errors.New("device unplugged")
	s := newTestSerial(port)
	require.NoError(t, s.Connect())
	defer s.Close()

	select {
	case _, ok := <-s.Telegrams():
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("telegrams channel did not close")
	}
	require.Error(t, s.Err())
	assert.Contains(t, s.Err().Error(), "device unplugged")
}

// TestSerial_GracefulShutdown tests that Close stops the reader and closes
// the telegrams channel.
func TestSerial_GracefulShutdown(t *testing.T) {
	port := newFakePort()
	s := newTestSerial(port)
	require.NoError(t, s.Connect())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range s.Telegrams() {
		}
	}()

	port.chunks <- []byte(`{"A":1}`)
	require.NoError(t, s.Close())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("telegrams channel did not close within timeout")
	}
	assert.NoError(t, s.Err())
	assert.ErrorIs(t, s.Connect(), ErrClosed)
}
