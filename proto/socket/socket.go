package socket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/terassyi/dgtcp/config"
	"github.com/terassyi/dgtcp/logger"
	"github.com/terassyi/dgtcp/packet/segment"
	"github.com/terassyi/dgtcp/proto"
)

const maxDatagramSize = 65535

// Stats counts datagrams seen by the receiving goroutine.
type Stats struct {
	Received  uint64
	Accepted  uint64
	Dropped   uint64
	Malformed uint64
}

// Socket is a UDP endpoint feeding decoded segments into a filtered buffer.
// One goroutine receives; any goroutine may Consume.
type Socket struct {
	conn      *net.UDPConn
	local     netip.AddrPort
	buffer    *proto.Buffer
	cfg       *config.Config
	logger    *logger.Logger
	mutex     *sync.Mutex
	state     proto.State
	broadcast bool
	running   atomic.Bool
	wg        *sync.WaitGroup

	received  atomic.Uint64
	accepted  atomic.Uint64
	dropped   atomic.Uint64
	malformed atomic.Uint64
}

// Open binds a UDP socket on ip:port. Port 0 picks an ephemeral port. A nil
// cfg means the defaults; an invalid one is rejected before binding.
func Open(ip string, port int, cfg *config.Config, l *logger.Logger) (*Socket, error) {
	bind := net.JoinHostPort(ip, fmt.Sprint(port))
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("open %s: %w", bind, err)
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return nil, &OpError{Op: "bind", Addr: bind, Err: err}
	}
	if port < 0 || port > 0xffff {
		return nil, &OpError{Op: "bind", Addr: bind, Err: fmt.Errorf("invalid port %d", port)}
	}
	network := "udp"
	if addr.Is4() {
		network = "udp4"
	}
	conn, err := net.ListenUDP(network, net.UDPAddrFromAddrPort(netip.AddrPortFrom(addr, uint16(port))))
	if err != nil {
		return nil, &OpError{Op: "bind", Addr: bind, Err: err}
	}
	if l == nil {
		l = logger.New(false, "udp")
	}
	s := &Socket{
		conn:   conn,
		local:  conn.LocalAddr().(*net.UDPAddr).AddrPort(),
		buffer: proto.NewBuffer(),
		cfg:    cfg,
		logger: l,
		mutex:  &sync.Mutex{},
		state:  proto.CLOSED,
		wg:     &sync.WaitGroup{},
	}
	s.logger.Debugf("bound %s", s.local)
	return s, nil
}

func (s *Socket) LocalAddr() netip.AddrPort {
	return s.local
}

func (s *Socket) Config() *config.Config {
	return s.cfg
}

// EnableBroadcast allows sending to broadcast addresses.
func (s *Socket) EnableBroadcast() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.broadcast {
		return nil
	}
	if err := setBroadcast(s.conn); err != nil {
		return &OpError{Op: "setsockopt", Addr: s.local.String(), Err: err}
	}
	s.broadcast = true
	return nil
}

func (s *Socket) SetState(state proto.State) {
	s.mutex.Lock()
	prev := s.state
	s.state = state
	s.mutex.Unlock()
	if prev != state {
		s.logger.Debugf("state %s -> %s", prev, state)
	}
}

func (s *Socket) State() proto.State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// SendSegment checksums seg and writes it as a single datagram to dst.
func (s *Socket) SendSegment(seg segment.Segment, dst netip.AddrPort) error {
	data, err := segment.Encode(segment.WithChecksum(seg))
	if err != nil {
		return &OpError{Op: "send", Addr: dst.String(), Err: err}
	}
	if _, err := s.conn.WriteToUDPAddrPort(data, dst); err != nil {
		return &OpError{Op: "send", Addr: dst.String(), Err: err}
	}
	s.logger.Debugf("send %s to %s", seg, dst)
	return nil
}

// StartReceiving launches the receiving goroutine. Calling it on a
// running socket does nothing.
func (s *Socket) StartReceiving() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.buffer.Reopen()
	s.wg.Add(1)
	go s.receive()
}

// StopReceiving stops and joins the receiving goroutine. Waiting consumers
// fail with ErrNotListening once nothing matches.
func (s *Socket) StopReceiving() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.wg.Wait()
	s.buffer.Close()
}

func (s *Socket) Receiving() bool {
	return s.running.Load()
}

func (s *Socket) receive() {
	defer s.wg.Done()
	buf := make([]byte, maxDatagramSize)
	for s.running.Load() {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PollInterval))
		n, addr, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warnf("read: %v", err)
			continue
		}
		if err := s.handle(buf[:n], addr); err != nil {
			s.logger.Debugf("drop datagram from %s: %v", addr, err)
		}
	}
}

func (s *Socket) handle(data []byte, addr netip.AddrPort) error {
	s.received.Add(1)
	seg, err := segment.Decode(data)
	if err != nil {
		s.malformed.Add(1)
		return err
	}
	if !segment.IsChecksumValid(seg) {
		s.dropped.Add(1)
		return ErrChecksumMismatch
	}
	s.accepted.Add(1)
	m := proto.Message{
		Addr:    netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port()),
		Segment: seg,
	}
	s.logger.Debugf("recv %s", m)
	s.buffer.Push(m)
	return nil
}

// Consume removes and returns the oldest buffered message matching f. It
// blocks until one arrives, timeout elapses (0 waits forever), ctx is done
// or the socket stops receiving.
func (s *Socket) Consume(ctx context.Context, f proto.Filter, timeout time.Duration) (proto.Message, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		wait := s.buffer.Wait()
		if m, ok := s.buffer.Take(f); ok {
			return m, nil
		}
		if !s.running.Load() {
			return proto.Message{}, ErrNotListening
		}
		poll := s.cfg.PollInterval
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return proto.Message{}, &TimeoutError{Filter: f, After: timeout}
			}
			if remaining < poll {
				poll = remaining
			}
		}
		timer := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return proto.Message{}, ctx.Err()
		case <-wait:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// Discard drops buffered messages for which match returns true.
func (s *Socket) Discard(match func(proto.Message) bool) int {
	return s.buffer.Discard(match)
}

// Pending returns the number of buffered messages.
func (s *Socket) Pending() int {
	return s.buffer.Len()
}

func (s *Socket) Stats() Stats {
	return Stats{
		Received:  s.received.Load(),
		Accepted:  s.accepted.Load(),
		Dropped:   s.dropped.Load(),
		Malformed: s.malformed.Load(),
	}
}

// Close stops receiving and releases the UDP socket.
func (s *Socket) Close() error {
	s.StopReceiving()
	s.SetState(proto.CLOSED)
	return s.conn.Close()
}
