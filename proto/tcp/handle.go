package tcp

import (
	"context"
	"net/netip"
	"time"

	"github.com/terassyi/dgtcp/packet/segment"
	"github.com/terassyi/dgtcp/proto"
	"github.com/terassyi/dgtcp/proto/socket"
)

// awaitFrom consumes segments sent by peer until accept reports true or
// timeout elapses. Every other segment from peer is handed to stray.
func (c *Conn) awaitFrom(ctx context.Context, peer netip.AddrPort, timeout time.Duration, accept func(segment.Segment) bool, stray func(segment.Segment) error) (segment.Segment, error) {
	f := proto.From(peer)
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return segment.Segment{}, &socket.TimeoutError{Filter: f, After: timeout}
		}
		m, err := c.sock.Consume(ctx, f, remaining)
		if err != nil {
			return segment.Segment{}, err
		}
		if accept(m.Segment) {
			return m.Segment, nil
		}
		c.logger.Debugf("stray segment %s", m)
		if stray == nil {
			continue
		}
		if err := stray(m.Segment); err != nil {
			return segment.Segment{}, err
		}
	}
}

// isData reports whether s carries transfer content.
func isData(s segment.Segment) bool {
	return s.Flags == segment.PSH || s.Flags == segment.ECE
}

func (c *Conn) ack(peer netip.AddrPort, seq, ack uint32) error {
	return c.sock.SendSegment(segment.Ack(seq, ack), peer)
}
