package model

import "testing"

func TestPeerCloseIsOneShot(t *testing.T) {
	peer := NewPeer("p1")
	if !peer.Open() {
		t.Fatal("fresh peer must be open")
	}

	peer.Close(CloseReasonExpired)
	peer.Close(CloseReasonClosed) // no-op, first reason sticks

	if peer.Open() {
		t.Fatal("peer still open after Close")
	}
	select {
	case <-peer.Done():
	default:
		t.Fatal("done channel not closed")
	}
	if got := peer.CloseReason(); got != CloseReasonExpired {
		t.Fatalf("close reason: got %q, want %q", got, CloseReasonExpired)
	}
}
