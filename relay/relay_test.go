package relay

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/QdPieDrury/PrismA/model"
	"github.com/rs/zerolog"
)

type fakeSource struct {
	peers   []*model.Peer
	err     error
	touched int
}

func (f *fakeSource) Peers(string) ([]*model.Peer, error) { return f.peers, f.err }

func (f *fakeSource) Touch(string) { f.touched++ }

func newTestRelay(src *fakeSource) *Relay {
	logger := zerolog.Nop()
	return NewRelay(src, &logger)
}

func recv(t *testing.T, peer *model.Peer, deadline time.Duration) []byte {
	t.Helper()
	select {
	case b := <-peer.TX:
		return b
	case <-time.After(deadline):
		t.Fatalf("peer %s received nothing within %v", peer.ID, deadline)
		return nil
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	a, b, c := model.NewPeer("a"), model.NewPeer("b"), model.NewPeer("c")
	src := &fakeSource{peers: []*model.Peer{a, b, c}}
	rl := newTestRelay(src)

	if err := rl.Broadcast(context.Background(), "r1", "a", []byte("hello")); err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}

	for _, peer := range []*model.Peer{b, c} {
		if got := string(recv(t, peer, 2*time.Second)); got != "hello" {
			t.Fatalf("peer %s: got %q, want %q", peer.ID, got, "hello")
		}
	}
	select {
	case payload := <-a.TX:
		t.Fatalf("sender received its own broadcast: %q", payload)
	default:
	}
	if src.touched != 1 {
		t.Fatalf("expiry touch count: got %d, want 1", src.touched)
	}
}

func TestBroadcastSkipsClosedPeer(t *testing.T) {
	a, b, c := model.NewPeer("a"), model.NewPeer("b"), model.NewPeer("c")
	b.Close("gone")
	rl := newTestRelay(&fakeSource{peers: []*model.Peer{a, b, c}})

	if err := rl.Broadcast(context.Background(), "r1", "a", []byte("msg")); err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}

	if got := string(recv(t, c, 2*time.Second)); got != "msg" {
		t.Fatalf("open peer: got %q, want %q", got, "msg")
	}
	select {
	case payload := <-b.TX:
		t.Fatalf("closed peer received payload: %q", payload)
	default:
	}
}

func TestPerPeerOrderingPreserved(t *testing.T) {
	a, b := model.NewPeer("a"), model.NewPeer("b")
	rl := newTestRelay(&fakeSource{peers: []*model.Peer{a, b}})

	const n = 200
	for i := 0; i < n; i++ {
		payload := []byte(strconv.Itoa(i))
		if err := rl.Broadcast(context.Background(), "r1", "a", payload); err != nil {
			t.Fatalf("Broadcast %d failed: %v", i, err)
		}
	}

	for i := 0; i < n; i++ {
		if got := string(recv(t, b, 2*time.Second)); got != strconv.Itoa(i) {
			t.Fatalf("per-peer ordering broken: position %d got %q", i, got)
		}
	}
}

func TestDeadPeerDoesNotBlockOthers(t *testing.T) {
	a, b, c := model.NewPeer("a"), model.NewPeer("b"), model.NewPeer("c")
	// b never reads its TX channel
	rl := newTestRelay(&fakeSource{peers: []*model.Peer{a, b, c}})

	const n = 100
	start := time.Now()
	for i := 0; i < n; i++ {
		payload := []byte(strconv.Itoa(i))
		if err := rl.Broadcast(context.Background(), "r1", "a", payload); err != nil {
			t.Fatalf("Broadcast %d failed: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("broadcasts stalled behind dead peer: %v", elapsed)
	}

	for i := 0; i < n; i++ {
		if got := string(recv(t, c, 2*time.Second)); got != strconv.Itoa(i) {
			t.Fatalf("open peer: position %d got %q", i, got)
		}
	}
}

func TestBroadcastUnknownRoom(t *testing.T) {
	wantErr := errors.New("room is not found")
	rl := newTestRelay(&fakeSource{err: wantErr})

	if err := rl.Broadcast(context.Background(), "nope", "a", []byte("x")); !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
}
