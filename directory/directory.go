// Package directory answers who is on the network and where to reach them.
package directory

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
)

var (
	ErrNoAddress  = errors.New("directory: peer has no dialable address")
	ErrNotNetwork = errors.New("directory: wrong subnet")
	// ErrNotRegistered means the local identity is absent from the directory.
	ErrNotRegistered = errors.New("directory: identity is not registered")
)

type Role string

const (
	RoleMiner     Role = "miner"
	RoleValidator Role = "validator"
)

// Peer is one directory entry.
type Peer struct {
	ID   peer.ID
	Addr ma.Multiaddr
	Role Role
}

// IsMiner reports whether p serves storage. Entries without a role are
// treated as miners.
func (p Peer) IsMiner() bool { return p.Role == "" || p.Role == RoleMiner }

// Target returns the host:port gRPC should dial.
func (p Peer) Target() (string, error) {
	if p.Addr == nil {
		return "", ErrNoAddress
	}
	if a, err := manet.ToNetAddr(p.Addr); err == nil {
		return a.String(), nil
	}
	port, err := p.Addr.ValueForProtocol(ma.P_TCP)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNoAddress, p.Addr)
	}
	for _, code := range []int{ma.P_DNS, ma.P_DNS4, ma.P_DNS6} {
		if host, err := p.Addr.ValueForProtocol(code); err == nil {
			return net.JoinHostPort(host, port), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoAddress, p.Addr)
}

func (p Peer) String() string {
	if p.Addr == nil {
		return p.ID.String()
	}
	return fmt.Sprintf("%s@%s", p.ID, p.Addr)
}

// Directory is the registry of network participants.
type Directory interface {
	// ListPeers returns the latest snapshot of all registered peers.
	ListPeers(ctx context.Context) ([]Peer, error)
	// MyIdentity is the peer ID of the local node.
	MyIdentity() peer.ID
	IsRegistered(ctx context.Context, id peer.ID) (bool, error)
}

// Refresher is implemented by directories whose snapshot is pulled from an
// external source and can be reloaded.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RequireRegistered fails with ErrNotRegistered unless the local identity
// of d is listed.
func RequireRegistered(ctx context.Context, d Directory) error {
	ok, err := d.IsRegistered(ctx, d.MyIdentity())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, d.MyIdentity())
	}
	return nil
}

// Miners filters peers down to storage providers, excluding self. A peer
// listed more than once keeps its first entry.
func Miners(peers []Peer, self peer.ID) []Peer {
	out := make([]Peer, 0, len(peers))
	seen := make(map[peer.ID]struct{}, len(peers))
	for _, p := range peers {
		if !p.IsMiner() || p.ID == self {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

// IDs returns the peer IDs of peers in order.
func IDs(peers []Peer) []peer.ID {
	out := make([]peer.ID, len(peers))
	for i, p := range peers {
		out[i] = p.ID
	}
	return out
}

// Lookup returns the entry for id.
func Lookup(peers []Peer, id peer.ID) (Peer, bool) {
	for _, p := range peers {
		if p.ID == id {
			return p, true
		}
	}
	return Peer{}, false
}
