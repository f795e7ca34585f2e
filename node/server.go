package node

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"

	"github.com/terassyi/dgtcp/config"
	"github.com/terassyi/dgtcp/logger"
	"github.com/terassyi/dgtcp/packet/segment"
	"github.com/terassyi/dgtcp/proto"
	"github.com/terassyi/dgtcp/proto/port"
	"github.com/terassyi/dgtcp/proto/socket"
	"github.com/terassyi/dgtcp/proto/tcp"
)

// Server answers discovery requests on a fixed port and hands its payload
// to every client that connects, one session at a time.
type Server struct {
	ip      string
	port    int
	payload tcp.Payload
	cfg     *config.Config
	debug   bool
	once    bool
	logger  *logger.Logger
	opts    []tcp.Option
	table   *port.Table
	mutex   *sync.Mutex
	sock    *socket.Socket
	served  int
}

type ServerOption func(*Server)

// Once makes Serve return after the first session.
func Once() ServerOption {
	return func(s *Server) {
		s.once = true
	}
}

// WithConnOptions passes options to the connection of every session.
func WithConnOptions(opts ...tcp.Option) ServerOption {
	return func(s *Server) {
		s.opts = append(s.opts, opts...)
	}
}

func NewServer(ip string, bindPort int, payload tcp.Payload, cfg *config.Config, debug bool, opts ...ServerOption) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Server{
		ip:      ip,
		port:    bindPort,
		payload: payload,
		cfg:     cfg,
		debug:   debug,
		logger:  logger.New(debug, "tcp"),
		table:   port.New(),
		mutex:   &sync.Mutex{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen binds the server socket. Serve calls it when needed.
func (s *Server) Listen() error {
	_, err := s.listen()
	return err
}

func (s *Server) listen() (*socket.Socket, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.sock != nil {
		return s.sock, nil
	}
	sock, err := socket.Open(s.ip, s.port, s.cfg, logger.New(s.debug, "udp"))
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	s.sock = sock
	return sock, nil
}

// Addr returns the bound address, invalid before Listen.
func (s *Server) Addr() netip.AddrPort {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.sock == nil {
		return netip.AddrPort{}
	}
	return s.sock.LocalAddr()
}

// Peers lists the clients currently being served.
func (s *Server) Peers() []*port.Peer {
	return s.table.Peers()
}

func (s *Server) Served() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.served
}

// Serve runs sessions until ctx is done. A failed session is logged and the
// server goes back to listening, unless Once was given.
func (s *Server) Serve(ctx context.Context) error {
	sock, err := s.listen()
	if err != nil {
		return err
	}
	defer func() {
		sock.Close()
		s.mutex.Lock()
		s.sock = nil
		s.mutex.Unlock()
	}()
	sock.StartReceiving()
	conn := tcp.New(sock, s.logger, s.opts...)
	s.logger.Infof("serving %s on %s", s.payload, sock.LocalAddr())

	var last netip.AddrPort
	for {
		// leftovers of earlier sessions, keeping discovery requests of new clients
		stale := func(m proto.Message) bool {
			return m.Segment.Flags != segment.BROADCAST || m.Addr == last
		}
		if n := sock.Discard(stale); n > 0 {
			s.logger.Debugf("discarded %d stale segments", n)
		}
		peer, err := s.session(ctx, conn)
		last = peer
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if errors.Is(err, socket.ErrNotListening) {
				return err
			}
			s.logger.Errorf("session failed: %v", err)
		} else {
			s.mutex.Lock()
			s.served++
			s.mutex.Unlock()
		}
		if s.once {
			return err
		}
	}
}

// session serves one client and returns its address.
func (s *Server) session(ctx context.Context, conn *tcp.Conn) (netip.AddrPort, error) {
	res, err := conn.ListenBroadcast(ctx)
	if err := check("broadcast", res, err); err != nil {
		return netip.AddrPort{}, err
	}
	peer := res.Peer
	entry, err := s.table.Add(peer, int(conn.Socket().LocalAddr().Port()))
	if err != nil {
		return peer, err
	}
	defer s.table.Delete(entry)

	res, err = conn.RespondHandshake(ctx, peer)
	if err := check("handshake", res, err); err != nil {
		return peer, err
	}
	res, err = conn.SendBackN(ctx, peer, res, s.payload)
	if err := check("transfer", res, err); err != nil {
		return peer, err
	}
	res, err = conn.StartFin(ctx, peer, res.SeqNum, res.AckNum)
	if err := check("close", res, err); err != nil {
		return peer, err
	}
	s.logger.Infof("session with %s completed", peer)
	return peer, nil
}
