package tcp

import (
	"net/netip"

	"github.com/terassyi/dgtcp/config"
	"github.com/terassyi/dgtcp/logger"
	"github.com/terassyi/dgtcp/proto/socket"
	"github.com/terassyi/dgtcp/util"
)

// ConnectionResult is the outcome of one connection phase. SeqNum is the
// next sequence number this side sends and AckNum the next one expected
// from the peer.
type ConnectionResult struct {
	Success bool
	Peer    netip.AddrPort
	SeqNum  uint32
	AckNum  uint32
	// Window is the peer's advertised window, zero when unknown.
	Window uint16
}

func failed(peer netip.AddrPort) ConnectionResult {
	return ConnectionResult{Success: false, Peer: peer}
}

// Conn drives the connection phases over one socket.
type Conn struct {
	sock   *socket.Socket
	cfg    *config.Config
	logger *logger.Logger
	isn    func() uint32
}

type Option func(*Conn)

// WithISN replaces the random initial sequence number generator.
func WithISN(f func() uint32) Option {
	return func(c *Conn) {
		c.isn = f
	}
}

func New(sock *socket.Socket, l *logger.Logger, opts ...Option) *Conn {
	if l == nil {
		l = logger.New(false, "tcp")
	}
	c := &Conn{
		sock:   sock,
		cfg:    sock.Config(),
		logger: l,
		isn:    randomISN,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func randomISN() uint32 {
	return util.RandomUint32(minISN, maxISN)
}

func (c *Conn) Socket() *socket.Socket {
	return c.sock
}

func (c *Conn) window() uint16 {
	return uint16(c.cfg.WindowSize)
}
