package proto

import (
	"fmt"
	"net/netip"
	"sync"

	"github.com/terassyi/dgtcp/packet/segment"
)

// Message is a received segment together with its source.
type Message struct {
	Addr    netip.AddrPort
	Segment segment.Segment
}

func (m Message) String() string {
	return fmt.Sprintf("%s %s", m.Addr, m.Segment)
}

// Filter selects buffered messages. Zero valued fields match anything.
type Filter struct {
	IP    netip.Addr
	Port  uint16
	Seq   uint32
	Ack   uint32
	Flags segment.Flag
}

// From returns a filter matching messages sent by addr.
func From(addr netip.AddrPort) Filter {
	return Filter{IP: addr.Addr(), Port: addr.Port()}
}

func (f Filter) Match(m Message) bool {
	if f.IP.IsValid() && m.Addr.Addr().Unmap() != f.IP.Unmap() {
		return false
	}
	if f.Port != 0 && m.Addr.Port() != f.Port {
		return false
	}
	if f.Seq != 0 && m.Segment.SeqNum != f.Seq {
		return false
	}
	if f.Ack != 0 && m.Segment.AckNum != f.Ack {
		return false
	}
	if f.Flags != 0 && m.Segment.Flags != f.Flags {
		return false
	}
	return true
}

func (f Filter) String() string {
	return fmt.Sprintf("ip=%v port=%d seq=%d ack=%d flags=%s", f.IP, f.Port, f.Seq, f.Ack, f.Flags)
}

// Buffer is the queue between the receiving goroutine and the connection
// phases. Messages keep arrival order; each is handed out at most once.
type Buffer struct {
	mutex    *sync.Mutex
	messages []Message
	signal   chan struct{}
	closed   bool
}

func NewBuffer() *Buffer {
	return &Buffer{
		mutex:    &sync.Mutex{},
		messages: make([]Message, 0, 128),
		signal:   make(chan struct{}),
	}
}

// Push appends m and wakes every waiting consumer.
func (b *Buffer) Push(m Message) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.messages = append(b.messages, m)
	close(b.signal)
	b.signal = make(chan struct{})
}

// Take removes and returns the oldest message matching f.
func (b *Buffer) Take(f Filter) (Message, bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	for i, m := range b.messages {
		if f.Match(m) {
			b.messages = append(b.messages[:i], b.messages[i+1:]...)
			return m, true
		}
	}
	return Message{}, false
}

// Discard removes every message for which match returns true.
func (b *Buffer) Discard(match func(Message) bool) int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	kept := b.messages[:0]
	for _, m := range b.messages {
		if !match(m) {
			kept = append(kept, m)
		}
	}
	n := len(b.messages) - len(kept)
	for i := len(kept); i < len(b.messages); i++ {
		b.messages[i] = Message{}
	}
	b.messages = kept
	return n
}

// Wait returns a channel closed by the next Push or by Close.
func (b *Buffer) Wait() <-chan struct{} {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.signal
}

// Close marks the buffer as no longer fed. Buffered messages stay takeable.
func (b *Buffer) Close() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.signal)
	b.signal = make(chan struct{})
}

// Reopen undoes Close for a restarted receiver.
func (b *Buffer) Reopen() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.closed = false
}

func (b *Buffer) Closed() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.closed
}

func (b *Buffer) Len() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.messages)
}
