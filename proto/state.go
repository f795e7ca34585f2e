package proto

type State int

const (
	CLOSED       State = 0
	LISTEN       State = 1
	SYN_SENT     State = 2
	SYN_RECEIVED State = 3
	ESTABLISHED  State = 4
	FIN_WAIT_1   State = 5
	FIN_WAIT_2   State = 6
	TIME_WAIT    State = 7
)

func (s State) String() string {
	switch s {
	case CLOSED:
		return "CLOSED"
	case LISTEN:
		return "LISTEN"
	case SYN_SENT:
		return "SYN_SENT"
	case SYN_RECEIVED:
		return "SYN_RECEIVED"
	case ESTABLISHED:
		return "ESTABLISHED"
	case FIN_WAIT_1:
		return "FIN_WAIT_1"
	case FIN_WAIT_2:
		return "FIN_WAIT_2"
	case TIME_WAIT:
		return "TIME_WAIT"
	default:
		return "UNKNOWN"
	}
}
