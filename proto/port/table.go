package port

import (
	"fmt"
	"net/netip"
	"sync"
	"time"
)

// Table tracks the peers a node currently holds a session with.
type Table struct {
	Entry []*Peer
	mutex *sync.RWMutex
}

type Peer struct {
	PeerAddr netip.AddrPort
	Port     int
	Since    time.Time
}

func NewPeer(addr netip.AddrPort, port int) *Peer {
	return &Peer{
		PeerAddr: addr,
		Port:     port,
		Since:    time.Now(),
	}
}

func (p *Peer) String() string {
	return fmt.Sprintf("%s via :%d", p.PeerAddr, p.Port)
}

func New() *Table {
	return &Table{
		Entry: make([]*Peer, 0, 16),
		mutex: &sync.RWMutex{},
	}
}

// Add registers a session with addr over the local port.
func (t *Table) Add(addr netip.AddrPort, port int) (*Peer, error) {
	if !addr.IsValid() {
		return nil, fmt.Errorf("invalid peer address %s", addr)
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if _, ok := t.search(addr, port); ok {
		return nil, fmt.Errorf("peer %s is already connected on port %d", addr, port)
	}
	peer := NewPeer(addr, port)
	t.Entry = append(t.Entry, peer)
	return peer, nil
}

func (t *Table) Delete(peer *Peer) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	index, ok := t.search(peer.PeerAddr, peer.Port)
	if !ok {
		return fmt.Errorf("no such peer")
	}
	t.Entry = append(t.Entry[:index], t.Entry[index+1:]...)
	return nil
}

func (t *Table) search(addr netip.AddrPort, port int) (int, bool) {
	for index, p := range t.Entry {
		if p.PeerAddr == addr && p.Port == port {
			return index, true
		}
	}
	return -1, false
}

func (t *Table) Search(addr netip.AddrPort, port int) (*Peer, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	index, ok := t.search(addr, port)
	if !ok {
		return nil, false
	}
	return t.Entry[index], true
}

// Peers returns a snapshot of the current entries.
func (t *Table) Peers() []*Peer {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	peers := make([]*Peer, len(t.Entry))
	copy(peers, t.Entry)
	return peers
}

func (t *Table) Len() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return len(t.Entry)
}
