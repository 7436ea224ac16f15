package directory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"gopkg.in/yaml.v3"
)

// fileFormat is the on-disk layout:
//
//	netuid: 1
//	peers:
//	  - id: 12D3KooW...
//	    address: /ip4/10.0.0.7/tcp/7001
//	    role: miner
//	  - address: /dns4/miner-2.example/tcp/7001/p2p/12D3KooW...
type fileFormat struct {
	NetUID uint16      `yaml:"netuid"`
	Peers  []fileEntry `yaml:"peers"`
}

type fileEntry struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
	Role    string `yaml:"role"`
}

// File is a Directory backed by a YAML file that is re-read on Refresh.
// A failed refresh keeps the previous snapshot.
type File struct {
	path   string
	netuid uint16
	self   peer.ID

	mu    sync.RWMutex
	peers []Peer
}

var (
	_ Directory = (*File)(nil)
	_ Refresher = (*File)(nil)
)

// OpenFile loads the directory at path for subnet netuid.
func OpenFile(ctx context.Context, path string, netuid uint16, self peer.ID) (*File, error) {
	f := &File{path: path, netuid: netuid, self: self}
	if err := f.Refresh(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := os.ReadFile(f.path)
	if err != nil {
		return err
	}
	peers, err := parseFile(b, f.netuid)
	if err != nil {
		return fmt.Errorf("directory %s: %w", f.path, err)
	}
	f.mu.Lock()
	f.peers = peers
	f.mu.Unlock()
	return nil
}

func (f *File) ListPeers(ctx context.Context) ([]Peer, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]Peer(nil), f.peers...), nil
}

func (f *File) MyIdentity() peer.ID { return f.self }

func (f *File) IsRegistered(ctx context.Context, id peer.ID) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := Lookup(f.peers, id)
	return ok, nil
}

func parseFile(b []byte, netuid uint16) ([]Peer, error) {
	var doc fileFormat
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	if doc.NetUID != netuid {
		return nil, fmt.Errorf("%w: file is for netuid %d, want %d", ErrNotNetwork, doc.NetUID, netuid)
	}
	out := make([]Peer, 0, len(doc.Peers))
	seen := make(map[peer.ID]struct{}, len(doc.Peers))
	for i, e := range doc.Peers {
		p, err := parseEntry(e)
		if err != nil {
			return nil, fmt.Errorf("peer %d: %w", i, err)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("peer %d: duplicate id %s", i, p.ID)
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

func parseEntry(e fileEntry) (Peer, error) {
	var p Peer
	switch Role(e.Role) {
	case "", RoleMiner, RoleValidator:
		p.Role = Role(e.Role)
	default:
		return p, fmt.Errorf("unknown role %q", e.Role)
	}

	if e.Address != "" {
		addr, err := ma.NewMultiaddr(e.Address)
		if err != nil {
			return p, err
		}
		// A trailing /p2p/<id> both names the peer and is stripped from the dial address.
		if info, err := peer.AddrInfoFromP2pAddr(addr); err == nil {
			p.ID = info.ID
			if len(info.Addrs) > 0 {
				addr = info.Addrs[0]
			} else {
				addr = nil
			}
		}
		p.Addr = addr
	}

	if e.ID != "" {
		id, err := peer.Decode(e.ID)
		if err != nil {
			return p, err
		}
		if p.ID != "" && p.ID != id {
			return p, fmt.Errorf("id %s does not match address %s", id, e.Address)
		}
		p.ID = id
	}
	if p.ID == "" {
		return p, fmt.Errorf("missing id")
	}
	return p, nil
}
