package node

import (
	"errors"
	"fmt"

	"github.com/terassyi/dgtcp/proto/tcp"
)

// ErrPhaseFailed reports a connection phase that ran out of retries.
var ErrPhaseFailed = errors.New("retries exhausted")

func check(phase string, res tcp.ConnectionResult, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", phase, err)
	}
	if !res.Success {
		return fmt.Errorf("%s: %w", phase, ErrPhaseFailed)
	}
	return nil
}
