package tcp

import (
	"context"
	"net/netip"

	"github.com/terassyi/dgtcp/proto"
	"github.com/terassyi/dgtcp/proto/socket"
)

// retry runs attempt until it succeeds, fails with something other than a
// timeout, or MaxRetries attempts timed out. Exhaustion is reported as an
// unsuccessful result, not as an error.
func (c *Conn) retry(ctx context.Context, phase string, peer netip.AddrPort, attempt func(n int) (ConnectionResult, error)) (ConnectionResult, error) {
	for n := 1; n <= c.cfg.MaxRetries; n++ {
		res, err := attempt(n)
		if err == nil {
			return res, nil
		}
		if !socket.IsTimeout(err) {
			return failed(peer), err
		}
		c.logger.Warnf("%s attempt %d/%d failed: %v", phase, n, c.cfg.MaxRetries, err)
		if ctx.Err() != nil {
			return failed(peer), ctx.Err()
		}
	}
	c.logger.Errorf("%s failed after %d attempts", phase, c.cfg.MaxRetries)
	return failed(peer), nil
}

func (c *Conn) transition(state proto.State, peer netip.AddrPort, seq, ack uint32, msg string) {
	c.sock.SetState(state)
	c.logger.Transition(state.String(), peer.String(), seq, ack, msg)
}
