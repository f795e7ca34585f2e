package tcp

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/terassyi/dgtcp/packet/segment"
	"github.com/terassyi/dgtcp/proto"
	"github.com/terassyi/dgtcp/proto/socket"
)

// ListenBroadcast waits without a deadline for a discovery request and
// answers it.
func (c *Conn) ListenBroadcast(ctx context.Context) (ConnectionResult, error) {
	c.sock.SetState(proto.LISTEN)
	c.logger.Infof("waiting for broadcast on %s", c.sock.LocalAddr())
	m, err := c.sock.Consume(ctx, proto.Filter{Flags: segment.BROADCAST}, 0)
	if err != nil {
		return failed(netip.AddrPort{}), err
	}
	if err := c.sock.SendSegment(segment.Broadcast(), m.Addr); err != nil {
		return failed(m.Addr), err
	}
	c.logger.Infof("answered broadcast from %s", m.Addr)
	return ConnectionResult{
		Success: true,
		Peer:    m.Addr,
		SeqNum:  m.Segment.SeqNum,
		AckNum:  m.Segment.AckNum,
	}, nil
}

// RespondHandshake performs the passive side of the three way handshake.
// A zero peer accepts a SYN from anyone.
func (c *Conn) RespondHandshake(ctx context.Context, peer netip.AddrPort) (ConnectionResult, error) {
	var (
		syn *proto.Message
		s   uint32
	)
	return c.retry(ctx, phaseHandshake, peer, func(int) (ConnectionResult, error) {
		if syn == nil {
			f := proto.From(peer)
			f.Flags = segment.SYN
			m, err := c.sock.Consume(ctx, f, c.cfg.HandshakeTimeout)
			if err != nil {
				return ConnectionResult{}, err
			}
			syn = &m
			s = c.isn()
		}
		from := syn.Addr
		ack := syn.Segment.SeqNum + 1
		if err := c.sock.SendSegment(segment.SynAck(s, ack).WithWindow(c.window()), from); err != nil {
			return ConnectionResult{}, err
		}
		c.transition(proto.SYN_RECEIVED, from, s, ack, "syn ack sent")

		f := proto.From(from)
		f.Ack = s + 1
		f.Flags = segment.ACK
		if _, err := c.sock.Consume(ctx, f, c.cfg.HandshakeTimeout); err != nil {
			return ConnectionResult{}, err
		}
		c.transition(proto.ESTABLISHED, from, s+1, ack, "handshake completed")
		return ConnectionResult{
			Success: true,
			Peer:    from,
			SeqNum:  s + 1,
			AckNum:  ack,
			Window:  syn.Segment.Window,
		}, nil
	})
}

// StartFin performs the active side of the four way close and lingers in
// TIME_WAIT to acknowledge a repeated FIN.
func (c *Conn) StartFin(ctx context.Context, peer netip.AddrPort, seq, ack uint32) (ConnectionResult, error) {
	return c.retry(ctx, phaseClose, peer, func(int) (ConnectionResult, error) {
		if err := c.sock.SendSegment(segment.Fin(seq, ack), peer); err != nil {
			return ConnectionResult{}, err
		}
		c.transition(proto.FIN_WAIT_1, peer, seq, ack, "fin sent")

		// the peer's FIN acknowledges ours as well
		isFin := func(s segment.Segment) bool {
			return s.Flags == segment.FIN && s.AckNum == seq+1
		}
		s, err := c.awaitFrom(ctx, peer, c.cfg.CommonTimeout, func(s segment.Segment) bool {
			return isFin(s) || (s.Flags == segment.ACK && s.AckNum == seq+1)
		}, nil)
		if err != nil {
			return ConnectionResult{}, err
		}
		if !isFin(s) {
			c.transition(proto.FIN_WAIT_2, peer, seq+1, ack, "fin acknowledged")
			s, err = c.awaitFrom(ctx, peer, c.cfg.CommonTimeout, isFin, nil)
			if err != nil {
				return ConnectionResult{}, err
			}
		}
		finAck := s.SeqNum + 1
		c.transition(proto.TIME_WAIT, peer, seq+1, finAck, "fin received")
		if err := c.ack(peer, seq+1, finAck); err != nil {
			return ConnectionResult{}, err
		}
		if err := c.linger(ctx, peer, seq+1, finAck, isFin); err != nil {
			return ConnectionResult{}, err
		}
		c.transition(proto.CLOSED, peer, seq+1, finAck, "connection closed")
		return ConnectionResult{
			Success: true,
			Peer:    peer,
			SeqNum:  seq + 1,
			AckNum:  finAck,
		}, nil
	})
}

// linger stays in TIME_WAIT for the configured period, acknowledging every
// repeated FIN from peer.
func (c *Conn) linger(ctx context.Context, peer netip.AddrPort, seq, ack uint32, isFin func(segment.Segment) bool) error {
	if c.cfg.TimeWait <= 0 {
		return nil
	}
	deadline := time.Now().Add(c.cfg.TimeWait)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		_, err := c.awaitFrom(ctx, peer, remaining, isFin, nil)
		switch {
		case err == nil:
			c.logger.Debug("repeated fin in TIME_WAIT")
			if err := c.ack(peer, seq, ack); err != nil {
				return err
			}
		case socket.IsTimeout(err):
			return nil
		case errors.Is(err, socket.ErrNotListening):
			return nil
		default:
			return err
		}
	}
}
