package tcp

import (
	"context"
	"net/netip"

	"github.com/terassyi/dgtcp/packet/segment"
	"github.com/terassyi/dgtcp/proto"
)

// FindBroadcast announces this host on broadcastAddr and waits for a server
// to answer. The result carries the responding server's address.
func (c *Conn) FindBroadcast(ctx context.Context, broadcastAddr netip.AddrPort) (ConnectionResult, error) {
	if err := c.sock.EnableBroadcast(); err != nil {
		return failed(netip.AddrPort{}), err
	}
	return c.retry(ctx, phaseBroadcast, netip.AddrPort{}, func(int) (ConnectionResult, error) {
		if err := c.sock.SendSegment(segment.Broadcast(), broadcastAddr); err != nil {
			return ConnectionResult{}, err
		}
		m, err := c.sock.Consume(ctx, proto.Filter{Flags: segment.BROADCAST}, c.cfg.BroadcastTimeout)
		if err != nil {
			return ConnectionResult{}, err
		}
		c.logger.Infof("found server %s", m.Addr)
		return ConnectionResult{
			Success: true,
			Peer:    m.Addr,
			SeqNum:  m.Segment.SeqNum,
			AckNum:  m.Segment.AckNum,
		}, nil
	})
}

// StartHandshake performs the active side of the three way handshake.
func (c *Conn) StartHandshake(ctx context.Context, peer netip.AddrPort) (ConnectionResult, error) {
	r := c.isn()
	return c.retry(ctx, phaseHandshake, peer, func(int) (ConnectionResult, error) {
		if err := c.sock.SendSegment(segment.Syn(r).WithWindow(c.window()), peer); err != nil {
			return ConnectionResult{}, err
		}
		c.transition(proto.SYN_SENT, peer, r, 0, "syn sent")

		f := proto.From(peer)
		f.Ack = r + 1
		f.Flags = segment.SYN_ACK
		m, err := c.sock.Consume(ctx, f, c.cfg.HandshakeTimeout)
		if err != nil {
			return ConnectionResult{}, err
		}
		seq, ack := r+1, m.Segment.SeqNum+1
		c.transition(proto.ESTABLISHED, peer, seq, ack, "syn ack received")
		if err := c.ack(peer, seq, ack); err != nil {
			return ConnectionResult{}, err
		}
		return ConnectionResult{
			Success: true,
			Peer:    peer,
			SeqNum:  seq,
			AckNum:  ack,
			Window:  m.Segment.Window,
		}, nil
	})
}

// RespondFin performs the passive side of the four way close. seq is this
// side's next sequence number and ack the next one expected from peer.
// Late transfer segments from peer are acknowledged again while waiting.
func (c *Conn) RespondFin(ctx context.Context, peer netip.AddrPort, seq, ack uint32) (ConnectionResult, error) {
	var fin *segment.Segment
	return c.retry(ctx, phaseClose, peer, func(int) (ConnectionResult, error) {
		if fin == nil {
			s, err := c.awaitFrom(ctx, peer, c.cfg.CommonTimeout,
				func(s segment.Segment) bool {
					return s.Flags == segment.FIN && s.AckNum == seq
				},
				func(s segment.Segment) error {
					if isData(s) {
						return c.ack(peer, seq, ack)
					}
					return nil
				})
			if err != nil {
				return ConnectionResult{}, err
			}
			fin = &s
			c.transition(proto.FIN_WAIT_1, peer, seq, fin.SeqNum, "fin received")
		}
		finAck := fin.SeqNum + 1
		if err := c.ack(peer, seq, finAck); err != nil {
			return ConnectionResult{}, err
		}
		c.transition(proto.FIN_WAIT_2, peer, seq, finAck, "fin acknowledged")
		if err := c.sock.SendSegment(segment.Fin(seq, finAck), peer); err != nil {
			return ConnectionResult{}, err
		}
		c.transition(proto.TIME_WAIT, peer, seq, finAck, "fin sent")

		f := proto.From(peer)
		f.Ack = seq + 1
		f.Flags = segment.ACK
		if _, err := c.sock.Consume(ctx, f, c.cfg.CommonTimeout); err != nil {
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
