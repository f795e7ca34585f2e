package socket

import (
	"errors"
	"fmt"
	"time"

	"github.com/terassyi/dgtcp/proto"
)

var (
	ErrTimeout          = errors.New("timed out")
	ErrNotListening     = errors.New("socket is not receiving")
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// OpError reports a failed bind or send on the underlying UDP socket.
type OpError struct {
	Op   string
	Addr string
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// TimeoutError is returned by Consume when no matching message arrived in time.
type TimeoutError struct {
	Filter proto.Filter
	After  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no message matching %s within %s", e.Filter, e.After)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

func (e *TimeoutError) Timeout() bool {
	return true
}

// IsTimeout reports whether err comes from an expired Consume.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
