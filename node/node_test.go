package node

import (
	"context"
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/terassyi/dgtcp/config"
	"github.com/terassyi/dgtcp/proto/socket"
	"github.com/terassyi/dgtcp/proto/tcp"
	"github.com/terassyi/dgtcp/util"
)

func testConfig() *config.Config {
	c := config.Default()
	c.PollInterval = 5 * time.Millisecond
	c.BroadcastTimeout = 200 * time.Millisecond
	c.CommonTimeout = 200 * time.Millisecond
	c.HandshakeTimeout = 200 * time.Millisecond
	c.TimeWait = 50 * time.Millisecond
	c.SegmentSize = 8
	return c
}

type served struct {
	err error
}

func startServer(t *testing.T, ip string, port int, payload tcp.Payload, opts ...ServerOption) (*Server, <-chan served) {
	t.Helper()
	srv := NewServer(ip, port, payload, testConfig(), false, opts...)
	if err := srv.Listen(); err != nil {
		var opErr *socket.OpError
		if errors.As(err, &opErr) && port != 0 {
			t.Skipf("port %d unavailable: %v", port, err)
		}
		require.NoError(t, err)
	}
	ch := make(chan served, 1)
	go func() {
		ch <- served{err: srv.Serve(context.Background())}
	}()
	return srv, ch
}

func waitServer(t *testing.T, ch <-chan served) error {
	t.Helper()
	select {
	case s := <-ch:
		return s.err
	case <-time.After(10 * time.Second):
		t.Fatal("server did not finish")
	}
	return nil
}

func TestFileSession(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	srv, ch := startServer(t, "127.0.0.1", 0, tcp.Payload{Data: data, FileName: "out.txt"}, Once())
	addr := srv.Addr()

	dir := t.TempDir()
	client := NewClient("127.0.0.1", 0, addr, dir, testConfig(), false)
	d, err := client.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out.txt"), d.Path)
	assert.Equal(t, addr, d.Peer)
	assert.Greater(t, d.Stats.Accepted, uint64(0))

	got, err := os.ReadFile(d.Path)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, waitServer(t, ch))
	assert.Equal(t, 1, srv.Served())
	assert.Empty(t, srv.Peers())
}

func TestMessageSessionOnDefaultPort(t *testing.T) {
	srv, ch := startServer(t, "127.0.0.1", 9999, tcp.Payload{Data: []byte("hello")}, Once())
	assert.Equal(t, uint16(9999), srv.Addr().Port())

	client := NewClient("127.0.0.1", 0, netip.MustParseAddrPort("127.0.0.1:9999"), t.TempDir(), testConfig(), false,
		tcp.WithISN(func() uint32 { return 1000 }))
	d, err := client.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(d.Payload.Data))
	assert.False(t, d.Payload.IsFile())
	assert.Empty(t, d.Path)

	require.NoError(t, waitServer(t, ch))
}

func TestServerServesSeveralClients(t *testing.T) {
	srv := NewServer("127.0.0.1", 0, tcp.Payload{Data: []byte("again")}, testConfig(), false)
	require.NoError(t, srv.Listen())
	addr := srv.Addr()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	for i := 0; i < 2; i++ {
		client := NewClient("127.0.0.1", 0, addr, t.TempDir(), testConfig(), false)
		d, err := client.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "again", string(d.Payload.Data))
	}
	require.Eventually(t, func() bool { return srv.Served() == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestClientRejectsTraversal(t *testing.T) {
	srv, ch := startServer(t, "127.0.0.1", 0, tcp.Payload{Data: []byte("x"), FileName: "../escape.txt"}, Once())

	dir := t.TempDir()
	client := NewClient("127.0.0.1", 0, srv.Addr(), dir, testConfig(), false)
	_, err := client.Run(context.Background())
	assert.ErrorIs(t, err, util.ErrDirectoryTraversal)
	_, statErr := os.Stat(filepath.Join(filepath.Dir(dir), "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))

	require.NoError(t, waitServer(t, ch))
}

func TestClientNoServer(t *testing.T) {
	cfg := testConfig()
	cfg.BroadcastTimeout = 20 * time.Millisecond
	cfg.MaxRetries = 2

	// a bound socket that never answers
	silent, err := socket.Open("127.0.0.1", 0, cfg, nil)
	require.NoError(t, err)
	defer silent.Close()

	client := NewClient("127.0.0.1", 0, silent.LocalAddr(), t.TempDir(), cfg, false)
	_, err = client.Run(context.Background())
	assert.ErrorIs(t, err, ErrPhaseFailed)
	assert.Contains(t, err.Error(), "broadcast")
}

func TestInvalidConfigRejected(t *testing.T) {
	cfg := testConfig()
	cfg.SegmentSize = 0

	srv := NewServer("127.0.0.1", 0, tcp.Payload{Data: []byte("x")}, cfg, false)
	assert.ErrorIs(t, srv.Listen(), config.ErrInvalidConfig)
	assert.False(t, srv.Addr().IsValid())
	assert.ErrorIs(t, srv.Serve(context.Background()), config.ErrInvalidConfig)

	cfg = testConfig()
	cfg.PollInterval = 0
	client := NewClient("127.0.0.1", 0, netip.MustParseAddrPort("127.0.0.1:9999"), t.TempDir(), cfg, false)
	_, err := client.Run(context.Background())
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestServerAddrWhileServing(t *testing.T) {
	srv := NewServer("127.0.0.1", 0, tcp.Payload{Data: []byte("x")}, testConfig(), false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	// Serve binds on its own while Addr is polled concurrently
	go func() { done <- srv.Serve(ctx) }()
	require.Eventually(t, func() bool { return srv.Addr().IsValid() }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.False(t, srv.Addr().IsValid())
}

func TestClientBindError(t *testing.T) {
	client := NewClient("not an ip", 0, netip.MustParseAddrPort("127.0.0.1:9999"), t.TempDir(), testConfig(), false)
	_, err := client.Run(context.Background())
	var opErr *socket.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "bind", opErr.Op)
}
