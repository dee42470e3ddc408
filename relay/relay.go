package relay

import (
	"context"

	"github.com/QdPieDrury/PrismA/model"
	"github.com/rs/zerolog"
)

// PeerSource is the registry view the relay needs: a peer snapshot plus an
// activity ping for the room's expiry timer.
type PeerSource interface {
	Peers(roomID string) ([]*model.Peer, error)
	Touch(roomID string)
}

type Relay struct {
	logger zerolog.Logger
	peers  PeerSource
}

func NewRelay(peers PeerSource, logger *zerolog.Logger) *Relay {
	return &Relay{
		logger: logger.With().Str("component", "relay").Logger(),
		peers:  peers,
	}
}

// Broadcast delivers payload unmodified to every open peer in the room
// except the sender. Enqueueing is non-blocking: each peer gets the sender's
// messages in FIFO order through its buffered TX channel, and a slow or dead
// peer overflows its own buffer without holding up delivery to the others.
func (rl *Relay) Broadcast(ctx context.Context, roomID, senderID string, payload []byte) error {
	rl.peers.Touch(roomID)

	peers, err := rl.peers.Peers(roomID)
	if err != nil {
		return err
	}

	var sent int
	for _, peer := range peers {
		if peer.ID == senderID || !peer.Open() {
			continue
		}
		select {
		case peer.TX <- payload:
			sent++
			rl.logger.Trace().
				Str("roomID", roomID).
				Str("dst", peer.ID).
				Msg("payload relayed")
		case <-peer.Done():
			// peer is disconnecting, drop silently
		default:
			rl.logger.Error().
				Str("roomID", roomID).
				Str("dst", peer.ID).
				Msg("send buffer full, payload dropped")
		}
	}
	if sent == 0 {
		rl.logger.Debug().
			Str("roomID", roomID).
			Str("src", senderID).
			Msg("broadcast did not reach anyone")
	}
	return nil
}
