package directory

import (
	"context"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
)

// Static is an in-memory Directory whose membership is set by the caller.
type Static struct {
	self peer.ID

	mu    sync.RWMutex
	peers []Peer
}

var _ Directory = (*Static)(nil)

func NewStatic(self peer.ID, peers ...Peer) *Static {
	return &Static{self: self, peers: append([]Peer(nil), peers...)}
}

// Set replaces the membership.
func (s *Static) Set(peers ...Peer) {
	s.mu.Lock()
	s.peers = append([]Peer(nil), peers...)
	s.mu.Unlock()
}

func (s *Static) ListPeers(ctx context.Context) ([]Peer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Peer(nil), s.peers...), nil
}

func (s *Static) MyIdentity() peer.ID { return s.self }

func (s *Static) IsRegistered(ctx context.Context, id peer.ID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := Lookup(s.peers, id)
	return ok, nil
}
