package segment

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/terassyi/dgtcp/util"
)

/*
 0                   1                   2                   3
 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|                        Sequence Number                        |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|                    Acknowledgment Number                      |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|          Data Offset          |C|E|U|A|P|R|S|F|    Padding    |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|            Window             |           Checksum            |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|                           Reserved                            |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|                     Payload (+ Padding)                       |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
*/

// ErrFraming is wrapped by every decoding failure.
var ErrFraming = errors.New("malformed segment")

type FramingError struct {
	Length int
	Reason string
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("%v: %s (%d bytes)", ErrFraming, e.Reason, e.Length)
}

func (e *FramingError) Unwrap() error {
	return ErrFraming
}

type Flag uint8

type header struct {
	SeqNum     uint32
	AckNum     uint32
	DataOffset uint16 // in 32bit words, header included
	Flags      Flag
	Padding    uint8
	Window     uint16
	Checksum   uint16
	Reserved   uint32
}

type Segment struct {
	SeqNum     uint32
	AckNum     uint32
	Flags      Flag
	DataOffset uint16
	Window     uint16
	Checksum   uint16
	Payload    []byte
}

func (f Flag) String() string {
	if f == BROADCAST {
		return "broadcast"
	}
	var flags []string
	if f.Syn() {
		flags = append(flags, "syn")
	}
	if f.Ack() {
		flags = append(flags, "ack")
	}
	if f.Fin() {
		flags = append(flags, "fin")
	}
	if f.Rst() {
		flags = append(flags, "rst")
	}
	if f.Psh() {
		flags = append(flags, "psh")
	}
	if f.Urg() {
		flags = append(flags, "urg")
	}
	if f.Ece() {
		flags = append(flags, "ece")
	}
	if f.Cwr() {
		flags = append(flags, "cwr")
	}
	return strings.Join(flags, "|")
}

func (f Flag) Fin() bool { return FIN&f != 0 }
func (f Flag) Syn() bool { return SYN&f != 0 }
func (f Flag) Rst() bool { return RST&f != 0 }
func (f Flag) Psh() bool { return PSH&f != 0 }
func (f Flag) Ack() bool { return ACK&f != 0 }
func (f Flag) Urg() bool { return URG&f != 0 }
func (f Flag) Ece() bool { return ECE&f != 0 }
func (f Flag) Cwr() bool { return CWR&f != 0 }

func newSegment(seq, ack uint32, flags Flag, payload []byte) Segment {
	if len(payload) == 0 {
		payload = nil
	}
	return Segment{
		SeqNum:     seq,
		AckNum:     ack,
		Flags:      flags,
		DataOffset: dataOffset(len(payload)),
		Payload:    payload,
	}
}

func Syn(seq uint32) Segment {
	return newSegment(seq, 0, SYN, nil)
}

func Ack(seq, ack uint32) Segment {
	return newSegment(seq, ack, ACK, nil)
}

func SynAck(seq, ack uint32) Segment {
	return newSegment(seq, ack, SYN_ACK, nil)
}

func Fin(seq, ack uint32) Segment {
	return newSegment(seq, ack, FIN, nil)
}

func FinAck() Segment {
	return newSegment(0, 0, FIN_ACK, nil)
}

func Broadcast() Segment {
	return newSegment(0, 0, BROADCAST, nil)
}

// Data builds one chunk of a transfer.
func Data(seq, ack uint32, payload []byte) Segment {
	return newSegment(seq, ack, PSH, payload)
}

// End builds the segment closing a transfer. name is the file name the
// receiver stores the content under, empty when the content is a plain string.
func End(seq, ack uint32, name string) Segment {
	return newSegment(seq, ack, ECE, []byte(name))
}

// WithWindow returns a copy advertising window.
func (s Segment) WithWindow(window uint16) Segment {
	s.Window = window
	return s
}

func (s Segment) PayloadSize() int {
	return len(s.Payload)
}

func (s Segment) String() string {
	return fmt.Sprintf("[S=%d] [A=%d] [%s] len=%d", s.SeqNum, s.AckNum, s.Flags, len(s.Payload))
}

func dataOffset(payloadSize int) uint16 {
	return uint16(headerWords + (payloadSize+3)/4)
}

// marshal writes s.DataOffset as it is, falling back to the value derived
// from the payload when it is zero. The body is always sized by the payload.
func (s Segment) marshal() []byte {
	words := dataOffset(len(s.Payload))
	offset := s.DataOffset
	if offset == 0 {
		offset = words
	}
	h := header{
		SeqNum:     s.SeqNum,
		AckNum:     s.AckNum,
		DataOffset: offset,
		Flags:      s.Flags,
		Padding:    uint8(int(words)*4 - HeaderLength - len(s.Payload)),
		Window:     s.Window,
		Checksum:   s.Checksum,
	}
	buf := bytes.NewBuffer(make([]byte, 0, int(words)*4))
	// writes to a bytes.Buffer cannot fail
	_ = binary.Write(buf, binary.BigEndian, h)
	buf.Write(s.Payload)
	buf.Write(make([]byte, h.Padding))
	return buf.Bytes()
}

// Encode serializes s. The checksum field is written as it is; use
// WithChecksum first for a segment leaving the host. A zero DataOffset is
// filled in from the payload; any other value must match it.
func Encode(s Segment) ([]byte, error) {
	if len(s.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload of %d bytes exceeds %d", len(s.Payload), MaxPayloadSize)
	}
	if words := dataOffset(len(s.Payload)); s.DataOffset != 0 && s.DataOffset != words {
		return nil, &FramingError{Length: len(s.Payload), Reason: fmt.Sprintf("data offset %d does not match payload of %d words", s.DataOffset, words)}
	}
	return s.marshal(), nil
}

// Decode parses one datagram. The payload is copied out of data.
func Decode(data []byte) (Segment, error) {
	if len(data) < HeaderLength {
		return Segment{}, &FramingError{Length: len(data), Reason: "shorter than header"}
	}
	h := header{}
	if err := binary.Read(bytes.NewReader(data[:HeaderLength]), binary.BigEndian, &h); err != nil {
		return Segment{}, &FramingError{Length: len(data), Reason: err.Error()}
	}
	if h.DataOffset < headerWords {
		return Segment{}, &FramingError{Length: len(data), Reason: fmt.Sprintf("data offset %d below header size", h.DataOffset)}
	}
	if int(h.DataOffset)*4 != len(data) {
		return Segment{}, &FramingError{Length: len(data), Reason: fmt.Sprintf("data offset %d does not match length", h.DataOffset)}
	}
	if h.Reserved != 0 {
		return Segment{}, &FramingError{Length: len(data), Reason: "reserved bits set"}
	}
	body := int(h.DataOffset-headerWords) * 4
	if h.Padding > 3 || int(h.Padding) > body {
		return Segment{}, &FramingError{Length: len(data), Reason: fmt.Sprintf("invalid padding %d", h.Padding)}
	}
	for _, b := range data[len(data)-int(h.Padding):] {
		if b != 0 {
			return Segment{}, &FramingError{Length: len(data), Reason: "non zero padding"}
		}
	}
	s := Segment{
		SeqNum:     h.SeqNum,
		AckNum:     h.AckNum,
		Flags:      h.Flags,
		DataOffset: h.DataOffset,
		Window:     h.Window,
		Checksum:   h.Checksum,
	}
	if size := body - int(h.Padding); size > 0 {
		s.Payload = make([]byte, size)
		copy(s.Payload, data[HeaderLength:HeaderLength+size])
	}
	return s, nil
}

// Checksum computes the checksum of the encoded segment with its checksum
// field zeroed.
func Checksum(s Segment) uint16 {
	s.Checksum = 0
	return util.Checksum(s.marshal(), 0)
}

func WithChecksum(s Segment) Segment {
	s.Checksum = Checksum(s)
	return s
}

func IsChecksumValid(s Segment) bool {
	return Checksum(s) == s.Checksum
}
