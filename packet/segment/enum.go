package segment

const (
	FIN Flag = 0x01 // 00000001
	SYN Flag = 0x02 // 00000010
	RST Flag = 0x04 // 00000100
	PSH Flag = 0x08 // 00001000
	ACK Flag = 0x10 // 00010000
	URG Flag = 0x20 // 00100000
	ECE Flag = 0x40 // 01000000
	CWR Flag = 0x80 // 10000000

	SYN_ACK Flag = SYN | ACK
	FIN_ACK Flag = FIN | ACK

	// BROADCAST marks discovery requests and replies. No segment built from
	// the named bits ever carries every bit at once.
	BROADCAST Flag = 0xff
)

const (
	HeaderLength = 20
	headerWords  = HeaderLength / 4

	// MaxPayloadSize keeps an encoded segment inside one UDP datagram.
	MaxPayloadSize = 65507 - HeaderLength - 3
)
