package tcp

import "math"

const (
	// initial sequence numbers are drawn from [minISN, maxISN) so that
	// ISN+1 is never zero, which filters treat as a wildcard.
	minISN uint32 = 10
	maxISN uint32 = math.MaxUint32
)

const (
	phaseBroadcast = "broadcast"
	phaseHandshake = "handshake"
	phaseTransfer  = "transfer"
	phaseClose     = "close"
)
