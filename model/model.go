package model

import "sync"

// Close reasons delivered to peers when their room is torn down.
const (
	CloseReasonExpired = "Room expired"
	CloseReasonClosed  = "Server closed this room"
)

type Room struct {
	ID    string
	Peers map[string]*Peer
}

func NewRoom(id string) *Room {
	return &Room{
		ID:    id,
		Peers: make(map[string]*Peer),
	}
}

// defaultSendBuffer bounds the per-peer outbound queue. Broadcasts enqueue
// without blocking, so the buffer preserves per-peer FIFO order while a peer
// that stops reading only loses its own messages.
const defaultSendBuffer = 256

// Peer is one connected endpoint admitted into a room. TX carries outbound
// payloads to the websocket writer. A peer closes at most once; the recorded
// reason ends up in the close frame sent to the client.
type Peer struct {
	ID string
	TX chan []byte

	once   sync.Once
	done   chan struct{}
	reason string
}

func NewPeer(id string) *Peer {
	return &Peer{
		ID:   id,
		TX:   make(chan []byte, defaultSendBuffer),
		done: make(chan struct{}),
	}
}

func (p *Peer) Close(reason string) {
	p.once.Do(func() {
		p.reason = reason
		close(p.done)
	})
}

func (p *Peer) Done() <-chan struct{} {
	return p.done
}

// CloseReason is only meaningful after Done is closed.
func (p *Peer) CloseReason() string {
	return p.reason
}

func (p *Peer) Open() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}
