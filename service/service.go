package service

import (
	"context"
	"errors"

	"github.com/QdPieDrury/PrismA/model"
	"github.com/QdPieDrury/PrismA/storage/memory"
	"github.com/rs/zerolog"
)

var (
	ErrCreate = errors.New("unable to create room")
	ErrClose  = errors.New("unable to close room")
	ErrJoin   = errors.New("unable to join room")
	ErrRelay  = errors.New("unable to relay message")

	// ErrRoomNotFound is re-exported so transports can match not-found
	// without depending on the storage implementation.
	ErrRoomNotFound = memory.ErrRoomNotFound
)

type (
	RoomStore interface {
		CreateRoom() (string, error)
		GetRoom(roomID string) (*model.Room, error)
		AddPeer(roomID string, peer *model.Peer) error
		RemovePeer(roomID, peerID string)
		CloseRoom(roomID string) error
	}

	Relay interface {
		Broadcast(ctx context.Context, roomID, senderID string, payload []byte) error
	}

	Service struct {
		store  RoomStore
		relay  Relay
		logger zerolog.Logger
	}

	Config struct {
		RoomStore RoomStore
		Relay     Relay
		Logger    *zerolog.Logger
	}
)

func NewService(cfg Config) *Service {
	return &Service{
		store:  cfg.RoomStore,
		relay:  cfg.Relay,
		logger: cfg.Logger.With().Str("component", "api").Logger(),
	}
}

func (svc *Service) CreateRoom() (string, error) {
	roomID, err := svc.store.CreateRoom()
	if err != nil {
		return "", errors.Join(ErrCreate, err)
	}
	svc.logger.Debug().
		Str("roomID", roomID).
		Msg("room created")
	return roomID, nil
}

func (svc *Service) CloseRoom(roomID string) error {
	if err := svc.store.CloseRoom(roomID); err != nil {
		return errors.Join(ErrClose, err)
	}
	svc.logger.Debug().
		Str("roomID", roomID).
		Msg("room closed")
	return nil
}

// HasRoom reports whether a room can accept connections. Admission calls it
// before the websocket upgrade so no channel is ever established for an
// unknown id.
func (svc *Service) HasRoom(roomID string) error {
	_, err := svc.store.GetRoom(roomID)
	return err
}

func (svc *Service) Join(roomID string, peer *model.Peer) error {
	if err := svc.store.AddPeer(roomID, peer); err != nil {
		return errors.Join(ErrJoin, err)
	}
	svc.logger.Debug().
		Str("roomID", roomID).
		Str("peerID", peer.ID).
		Msg("peer joined room")
	return nil
}

func (svc *Service) Leave(roomID, peerID string) {
	svc.store.RemovePeer(roomID, peerID)
	svc.logger.Debug().
		Str("roomID", roomID).
		Str("peerID", peerID).
		Msg("peer left room")
}

func (svc *Service) Relay(ctx context.Context, roomID, senderID string, payload []byte) error {
	if err := svc.relay.Broadcast(ctx, roomID, senderID, payload); err != nil {
		return errors.Join(ErrRelay, err)
	}
	return nil
}
