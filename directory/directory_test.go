package directory

import (
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newID(t *testing.T) peer.ID {
	t.Helper()
	sk, _, err := crypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)
	id, err := peer.IDFromPrivateKey(sk)
	require.NoError(t, err)
	return id
}

func writeDir(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "peers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestPeer_Target(t *testing.T) {
	cases := map[string]string{
		"/ip4/127.0.0.1/tcp/7001":      "127.0.0.1:7001",
		"/ip6/::1/tcp/7002":            "[::1]:7002",
		"/dns4/miner.example/tcp/7003": "miner.example:7003",
		"/dns/miner.example/tcp/7004":  "miner.example:7004",
	}
	for in, want := range cases {
		got, err := Peer{Addr: ma.StringCast(in)}.Target()
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := Peer{}.Target()
	assert.ErrorIs(t, err, ErrNoAddress)
	_, err = Peer{Addr: ma.StringCast("/ip4/127.0.0.1/udp/7001")}.Target()
	assert.ErrorIs(t, err, ErrNoAddress)
}

func TestFile_LoadAndRefresh(t *testing.T) {
	self, m1, m2 := newID(t), newID(t), newID(t)
	path := writeDir(t, `
netuid: 1
peers:
  - id: `+self.String()+`
    address: /ip4/127.0.0.1/tcp/7000
    role: validator
  - id: `+m1.String()+`
    address: /ip4/127.0.0.1/tcp/7001
    role: miner
  - address: /ip4/127.0.0.1/tcp/7002/p2p/`+m2.String()+`
`)
	ctx := context.Background()
	dir, err := OpenFile(ctx, path, 1, self)
	require.NoError(t, err)
	assert.Equal(t, self, dir.MyIdentity())

	peers, err := dir.ListPeers(ctx)
	require.NoError(t, err)
	require.Len(t, peers, 3)
	assert.Equal(t, m2, peers[2].ID)
	assert.Equal(t, "/ip4/127.0.0.1/tcp/7002", peers[2].Addr.String())

	miners := Miners(peers, self)
	assert.Equal(t, []peer.ID{m1, m2}, IDs(miners))

	ok, err := dir.IsRegistered(ctx, self)
	require.NoError(t, err)
	assert.True(t, ok)

	// Drop m2, then break the file: the last good snapshot survives.
	require.NoError(t, os.WriteFile(path, []byte("netuid: 1\npeers:\n  - id: "+self.String()+"\n"), 0o600))
	require.NoError(t, dir.Refresh(ctx))
	ok, _ = dir.IsRegistered(ctx, m2)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte("netuid: [oops"), 0o600))
	assert.Error(t, dir.Refresh(ctx))
	peers, _ = dir.ListPeers(ctx)
	assert.Len(t, peers, 1)
}

func TestFile_Errors(t *testing.T) {
	ctx := context.Background()
	a, b := newID(t), newID(t)

	_, err := OpenFile(ctx, writeDir(t, "netuid: 2\npeers: []\n"), 1, a)
	assert.ErrorIs(t, err, ErrNotNetwork)

	_, err = OpenFile(ctx, writeDir(t, "netuid: 1\npeers:\n  - address: /ip4/127.0.0.1/tcp/1\n"), 1, a)
	assert.ErrorContains(t, err, "missing id")

	_, err = OpenFile(ctx, writeDir(t, "netuid: 1\npeers:\n  - id: "+a.String()+"\n  - id: "+a.String()+"\n"), 1, a)
	assert.ErrorContains(t, err, "duplicate")

	_, err = OpenFile(ctx, writeDir(t, "netuid: 1\npeers:\n  - id: "+a.String()+"\n    role: farmer\n"), 1, a)
	assert.ErrorContains(t, err, "unknown role")

	_, err = OpenFile(ctx, writeDir(t, "netuid: 1\npeers:\n  - id: "+a.String()+"\n    address: /ip4/127.0.0.1/tcp/1/p2p/"+b.String()+"\n"), 1, a)
	assert.ErrorContains(t, err, "does not match")

	_, err = OpenFile(ctx, filepath.Join(t.TempDir(), "missing.yaml"), 1, a)
	assert.Error(t, err)
}

func TestStatic(t *testing.T) {
	ctx := context.Background()
	self, m := newID(t), newID(t)
	s := NewStatic(self)
	ok, _ := s.IsRegistered(ctx, self)
	assert.False(t, ok)

	s.Set(Peer{ID: self, Role: RoleValidator}, Peer{ID: m})
	ok, _ = s.IsRegistered(ctx, self)
	assert.True(t, ok)
	peers, _ := s.ListPeers(ctx)
	assert.Equal(t, []peer.ID{m}, IDs(Miners(peers, self)))
}

func TestRequireRegistered(t *testing.T) {
	ctx := context.Background()
	self := newID(t)
	s := NewStatic(self)
	assert.ErrorIs(t, RequireRegistered(ctx, s), ErrNotRegistered)
	s.Set(Peer{ID: self})
	assert.NoError(t, RequireRegistered(ctx, s))
}

func TestMiners_DropsDuplicateIDs(t *testing.T) {
	a, b, self := peer.ID("a"), peer.ID("b"), peer.ID("self")
	peers := []Peer{
		{ID: a, Role: RoleMiner},
		{ID: self},
		{ID: b},
		{ID: a, Role: RoleMiner},
		{ID: b, Role: RoleValidator},
	}
	assert.Equal(t, []peer.ID{a, b}, IDs(Miners(peers, self)))
}
