package tcp

import (
	"context"
	"net/netip"

	"github.com/terassyi/dgtcp/packet/segment"
	"github.com/terassyi/dgtcp/proto"
	"github.com/terassyi/dgtcp/proto/socket"
	"github.com/terassyi/dgtcp/util"
)

// SendBackN transfers payload with a Go-Back-N sender starting at
// result.SeqNum. Up to the smaller of the local and the peer window
// segments are unacknowledged at a time. A timeout resends everything
// from the oldest unacknowledged segment.
func (c *Conn) SendBackN(ctx context.Context, peer netip.AddrPort, result ConnectionResult, payload Payload) (ConnectionResult, error) {
	first := result.SeqNum
	segs := payload.Segments(first, result.AckNum, c.cfg.SegmentSize)
	window := c.cfg.WindowSize
	if result.Window > 0 && int(result.Window) < window {
		window = int(result.Window)
	}
	c.logger.Infof("sending %s in %d segments, window %d", payload, len(segs), window)

	f := proto.From(peer)
	f.Flags = segment.ACK
	base, next, timeouts := 0, 0, 0
	for base < len(segs) {
		for ; next < len(segs) && next-base < window; next++ {
			if err := c.sock.SendSegment(segs[next], peer); err != nil {
				return failed(peer), err
			}
		}
		m, err := c.sock.Consume(ctx, f, c.cfg.CommonTimeout)
		if err != nil {
			if !socket.IsTimeout(err) {
				return failed(peer), err
			}
			timeouts++
			if timeouts >= c.cfg.MaxRetries {
				c.logger.Errorf("%s failed after %d timeouts at seq %d", phaseTransfer, timeouts, first+uint32(base))
				return failed(peer), nil
			}
			c.logger.Warnf("%s timeout %d/%d, resending from seq %d", phaseTransfer, timeouts, c.cfg.MaxRetries, first+uint32(base))
			next = base
			continue
		}
		// cumulative: ack n covers every segment below n
		ack := m.Segment.AckNum
		if !util.SeqInRange(ack, first+uint32(base), first+uint32(next)) {
			c.logger.Debugf("ignore ack %d outside (%d, %d]", ack, first+uint32(base), first+uint32(next))
			continue
		}
		base = int(ack - first)
		timeouts = 0
		c.logger.Debugf("acked up to %d, %d/%d segments", ack, base, len(segs))
	}
	seq := first + uint32(len(segs))
	c.logger.Transition(c.sock.State().String(), peer.String(), seq, result.AckNum, "transfer completed")
	return ConnectionResult{
		Success: true,
		Peer:    peer,
		SeqNum:  seq,
		AckNum:  result.AckNum,
		Window:  result.Window,
	}, nil
}

// ReceiveBackN is the Go-Back-N receiver. Only the next expected segment is
// accepted; anything else from peer is answered with the last
// acknowledgement. It returns the accepted segments once the terminal
// segment arrives.
func (c *Conn) ReceiveBackN(ctx context.Context, peer netip.AddrPort, result ConnectionResult) ([]segment.Segment, ConnectionResult, error) {
	seq, expected := result.SeqNum, result.AckNum
	segs := make([]segment.Segment, 0, 16)
	timeouts := 0
	f := proto.From(peer)
	for {
		m, err := c.sock.Consume(ctx, f, c.cfg.CommonTimeout)
		if err != nil {
			if !socket.IsTimeout(err) {
				return segs, failed(peer), err
			}
			timeouts++
			if timeouts >= c.cfg.MaxRetries {
				c.logger.Errorf("%s failed after %d timeouts waiting for seq %d", phaseTransfer, timeouts, expected)
				return segs, failed(peer), nil
			}
			c.logger.Warnf("%s timeout %d/%d waiting for seq %d", phaseTransfer, timeouts, c.cfg.MaxRetries, expected)
			// also repeats a lost handshake ACK while nothing was received
			if err := c.ack(peer, seq, expected); err != nil {
				return segs, failed(peer), err
			}
			continue
		}
		s := m.Segment
		if !isData(s) || s.SeqNum != expected {
			c.logger.Debugf("discard %s, expecting seq %d", s, expected)
			if err := c.ack(peer, seq, expected); err != nil {
				return segs, failed(peer), err
			}
			continue
		}
		segs = append(segs, s)
		expected++
		timeouts = 0
		if err := c.ack(peer, seq, expected); err != nil {
			return segs, failed(peer), err
		}
		if s.Flags == segment.ECE {
			c.logger.Transition(c.sock.State().String(), peer.String(), seq, expected, "transfer completed")
			return segs, ConnectionResult{
				Success: true,
				Peer:    peer,
				SeqNum:  seq,
				AckNum:  expected,
				Window:  result.Window,
			}, nil
		}
	}
}
