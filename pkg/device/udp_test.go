package device

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/freistat/pkg/config"
)

func newPeer(t *testing.T) *net.UDPConn {
	t.Helper()
	peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { peer.Close() })
	return peer
}

func TestUDP_RoundTrip(t *testing.T) {
	peer := newPeer(t)
	u := NewUDP(config.UDPConfig{
		Server: "127.0.0.1:0",
		Client: peer.LocalAddr().String(),
	}, WithReadTimeout(20*time.Millisecond))
	require.NoError(t, u.Connect())
	defer u.Close()

	assert.Equal(t, LinkWLAN, u.Link())
	require.NotNil(t, u.LocalAddr())

	require.NoError(t, u.Send([]byte(`{"C":1,"ExT":"CV"}`)))
	buf := make([]byte, 256)
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, _, err := peer.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, `{"C":1,"ExT":"CV"}`, string(buf[:n]))

	local := u.LocalAddr().(*net.UDPAddr)
	_, err = peer.WriteToUDP([]byte("{\"A\":1}\r\n"), local)
	require.NoError(t, err)
	_, err = peer.WriteToUDP([]byte("  \n"), local)
	require.NoError(t, err)
	_, err = peer.WriteToUDP([]byte(`{"A":2}`), local)
	require.NoError(t, err)

	for _, want := range []string{`{"A":1}`, `{"A":2}`} {
		select {
		case got := <-u.Telegrams():
			assert.Equal(t, want, string(got))
		case <-time.After(5 * time.Second):
			t.Fatal("telegram not received")
		}
	}
}

func TestUDP_InvalidAddress(t *testing.T) {
	u := NewUDP(config.UDPConfig{Server: "not an address", Client: "127.0.0.1:1"})
	assert.Error(t, u.Connect())
	assert.False(t, u.IsConnected())
	assert.ErrorIs(t, u.Send([]byte(`{}`)), ErrNotConnected)
}

// TestUDP_GracefulShutdown tests that Close closes the telegrams channel.
func TestUDP_GracefulShutdown(t *testing.T) {
	u := NewUDP(config.UDPConfig{Server: "127.0.0.1:0", Client: "127.0.0.1:9"}, WithReadTimeout(20*time.Millisecond))
	require.NoError(t, u.Connect())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range u.Telegrams() {
		}
	}()

	require.NoError(t, u.Close())
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("telegrams channel did not close within timeout")
	}
	assert.NoError(t, u.Err())
}
