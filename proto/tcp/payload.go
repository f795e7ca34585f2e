package tcp

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/terassyi/dgtcp/packet/segment"
)

var ErrIncompleteTransfer = errors.New("transfer has no terminal segment")

// Payload is the content of one transfer. A non empty FileName tells the
// receiver to store Data under that name.
type Payload struct {
	Data     []byte
	FileName string
}

func (p Payload) IsFile() bool {
	return p.FileName != ""
}

func (p Payload) String() string {
	if p.IsFile() {
		return fmt.Sprintf("file %s (%d bytes)", p.FileName, len(p.Data))
	}
	return fmt.Sprintf("message (%d bytes)", len(p.Data))
}

// Segments splits p into data segments of at most size bytes followed by
// the terminal segment, numbered from seq. A size out of range falls back
// to the largest payload a segment can carry.
func (p Payload) Segments(seq, ack uint32, size int) []segment.Segment {
	if size <= 0 || size > segment.MaxPayloadSize {
		size = segment.MaxPayloadSize
	}
	segs := make([]segment.Segment, 0, len(p.Data)/size+2)
	for off := 0; off < len(p.Data); off += size {
		end := off + size
		if end > len(p.Data) {
			end = len(p.Data)
		}
		segs = append(segs, segment.Data(seq, ack, p.Data[off:end]))
		seq++
	}
	return append(segs, segment.End(seq, ack, p.FileName))
}

// Assemble rebuilds a payload from segments received in order.
func Assemble(segs []segment.Segment) (Payload, error) {
	buf := &bytes.Buffer{}
	for i, s := range segs {
		switch s.Flags {
		case segment.PSH:
			buf.Write(s.Payload)
		case segment.ECE:
			if i != len(segs)-1 {
				return Payload{}, fmt.Errorf("terminal segment at %d of %d", i, len(segs))
			}
			return Payload{Data: buf.Bytes(), FileName: string(s.Payload)}, nil
		default:
			return Payload{}, fmt.Errorf("unexpected segment %s in transfer", s)
		}
	}
	return Payload{}, ErrIncompleteTransfer
}
