package tcp

import (
	"math/rand"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/terassyi/dgtcp/config"
	"github.com/terassyi/dgtcp/logger"
	"github.com/terassyi/dgtcp/proto/socket"
)

func testConfig() *config.Config {
	c := config.Default()
	c.PollInterval = 5 * time.Millisecond
	c.BroadcastTimeout = 300 * time.Millisecond
	c.CommonTimeout = 300 * time.Millisecond
	c.HandshakeTimeout = 300 * time.Millisecond
	c.TimeWait = 50 * time.Millisecond
	c.SegmentSize = 4
	return c
}

func fixedISN(v uint32) Option {
	return WithISN(func() uint32 { return v })
}

func newConn(t *testing.T, cfg *config.Config, opts ...Option) *Conn {
	t.Helper()
	base, _ := test.NewNullLogger()
	sock, err := socket.Open("127.0.0.1", 0, cfg, logger.WithLogger(base, true, "udp"))
	require.NoError(t, err)
	sock.StartReceiving()
	t.Cleanup(func() { sock.Close() })
	return New(sock, logger.WithLogger(base, true, "tcp"), opts...)
}

type outcome struct {
	result ConnectionResult
	err    error
}

// async runs f on its own goroutine and delivers its outcome.
func async(f func() (ConnectionResult, error)) <-chan outcome {
	ch := make(chan outcome, 1)
	go func() {
		res, err := f()
		ch <- outcome{result: res, err: err}
	}()
	return ch
}

func wait(t *testing.T, ch <-chan outcome) outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(20 * time.Second):
		t.Fatal("peer did not finish")
	}
	return outcome{}
}

// lossyRelay forwards datagrams between one client and a server, dropping
// a share of them in both directions.
type lossyRelay struct {
	front   *net.UDPConn
	back    *net.UDPConn
	server  netip.AddrPort
	client  atomic.Value
	mutex   *sync.Mutex
	rnd     *rand.Rand
	rate    float64
	dropped atomic.Int64
}

func newLossyRelay(t *testing.T, server netip.AddrPort, rate float64, seed int64) *lossyRelay {
	t.Helper()
	front, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	back, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	r := &lossyRelay{
		front:  front,
		back:   back,
		server: server,
		mutex:  &sync.Mutex{},
		rnd:    rand.New(rand.NewSource(seed)),
		rate:   rate,
	}
	go r.forward(front, func(from netip.AddrPort) (netip.AddrPort, *net.UDPConn) {
		r.client.Store(from)
		return r.server, back
	})
	go r.forward(back, func(netip.AddrPort) (netip.AddrPort, *net.UDPConn) {
		to, _ := r.client.Load().(netip.AddrPort)
		return to, front
	})
	t.Cleanup(func() {
		front.Close()
		back.Close()
	})
	return r
}

func (r *lossyRelay) Addr() netip.AddrPort {
	return r.front.LocalAddr().(*net.UDPAddr).AddrPort()
}

func (r *lossyRelay) drop() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.rnd.Float64() < r.rate
}

func (r *lossyRelay) forward(in *net.UDPConn, route func(netip.AddrPort) (netip.AddrPort, *net.UDPConn)) {
	buf := make([]byte, 65535)
	for {
		n, from, err := in.ReadFromUDPAddrPort(buf)
		if err != nil {
			return
		}
		to, out := route(from)
		if !to.IsValid() {
			continue
		}
		if r.drop() {
			r.dropped.Add(1)
			continue
		}
		_, _ = out.WriteToUDPAddrPort(buf[:n], to)
	}
}
