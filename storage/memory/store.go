package memory

import (
	"errors"
	"sync"
	"time"

	"github.com/QdPieDrury/PrismA/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrRoomNotFound = errors.New("room is not found")
	ErrRoomExists   = errors.New("room id collision")
)

// entry pairs a room with its pending expiry timer. gen invalidates timer
// callbacks that were superseded by a reset or a teardown: a fired callback
// carrying a stale generation no-ops once it acquires the lock.
type entry struct {
	room  *model.Room
	timer *time.Timer
	gen   uint64
}

type MemStore struct {
	mx     *sync.Mutex
	db     map[string]*entry
	expiry time.Duration
	logger zerolog.Logger
}

func NewMemStore(expiry time.Duration, logger *zerolog.Logger) *MemStore {
	return &MemStore{
		mx:     &sync.Mutex{},
		db:     make(map[string]*entry),
		expiry: expiry,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// CreateRoom allocates an empty room with its expiry timer armed and returns
// the generated identifier. A room nobody ever joins lives until the timer
// fires.
func (ms *MemStore) CreateRoom() (string, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	roomID := uuid.NewString()
	if _, ok := ms.db[roomID]; ok {
		return "", ErrRoomExists
	}
	ent := &entry{room: model.NewRoom(roomID)}
	ms.db[roomID] = ent
	ms.armExpiry(roomID, ent)

	ms.logger.Debug().Str("roomID", roomID).Msg("room created")
	return roomID, nil
}

func (ms *MemStore) GetRoom(roomID string) (*model.Room, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	ent, ok := ms.db[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return ent.room, nil
}

// AddPeer admits a peer into a room and postpones the room's expiry.
func (ms *MemStore) AddPeer(roomID string, peer *model.Peer) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	ent, ok := ms.db[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	ent.room.Peers[peer.ID] = peer
	ms.armExpiry(roomID, ent)
	return nil
}

// RemovePeer drops a peer from a room. When the last peer leaves, the room
// is torn down right away instead of waiting for the idle timer.
func (ms *MemStore) RemovePeer(roomID, peerID string) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	ent, ok := ms.db[roomID]
	if !ok {
		return
	}
	delete(ent.room.Peers, peerID)
	if len(ent.room.Peers) == 0 {
		ms.teardown(roomID, ent)
		ms.logger.Debug().Str("roomID", roomID).Msg("room removed, last peer left")
	}
}

// CloseRoom force-disconnects every peer and removes the room. Eviction and
// removal happen under the registry lock, so no admission can interleave.
func (ms *MemStore) CloseRoom(roomID string) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	ent, ok := ms.db[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	for _, peer := range ent.room.Peers {
		peer.Close(model.CloseReasonClosed)
	}
	ms.teardown(roomID, ent)
	ms.logger.Debug().Str("roomID", roomID).Msg("room closed")
	return nil
}

// Touch postpones a room's expiry by a full window. Unknown ids no-op.
func (ms *MemStore) Touch(roomID string) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	if ent, ok := ms.db[roomID]; ok {
		ms.armExpiry(roomID, ent)
	}
}

// Peers returns a snapshot safe to iterate without holding the lock.
func (ms *MemStore) Peers(roomID string) ([]*model.Peer, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	ent, ok := ms.db[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	peers := make([]*model.Peer, 0, len(ent.room.Peers))
	for _, peer := range ent.room.Peers {
		peers = append(peers, peer)
	}
	return peers, nil
}

// armExpiry replaces the room's pending timer with a fresh one.
// Callers must hold ms.mx.
func (ms *MemStore) armExpiry(roomID string, ent *entry) {
	if ent.timer != nil {
		ent.timer.Stop()
	}
	ent.gen++
	gen := ent.gen
	ent.timer = time.AfterFunc(ms.expiry, func() {
		ms.expire(roomID, gen)
	})
}

// teardown stops the timer and deletes the entry. Bumping the generation
// suppresses a timer that fired concurrently and is waiting on the lock.
// Callers must hold ms.mx.
func (ms *MemStore) teardown(roomID string, ent *entry) {
	if ent.timer != nil {
		ent.timer.Stop()
	}
	ent.gen++
	delete(ms.db, roomID)
}

func (ms *MemStore) expire(roomID string, gen uint64) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	ent, ok := ms.db[roomID]
	if !ok || ent.gen != gen {
		return
	}
	for _, peer := range ent.room.Peers {
		peer.Close(model.CloseReasonExpired)
	}
	ms.teardown(roomID, ent)
	ms.logger.Debug().Str("roomID", roomID).Msg("room expired")
}
