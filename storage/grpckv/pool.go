package grpckv

import (
	"context"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"

	"xdao.co/storagenet/directory"
)

// Pool keeps one Client per peer and routes calls by directory entry.
// A client is replaced when the peer's address changes.
type Pool struct {
	opts DialOptions

	mu      sync.Mutex
	clients map[peer.ID]pooled
}

type pooled struct {
	target string
	client *Client
}

func NewPool(opts DialOptions) *Pool {
	return &Pool{opts: opts, clients: make(map[peer.ID]pooled)}
}

func (p *Pool) client(pr directory.Peer) (*Client, error) {
	target, err := pr.Target()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[pr.ID]; ok {
		if c.target == target {
			return c.client, nil
		}
		_ = c.client.Close()
		delete(p.clients, pr.ID)
	}
	c, err := Dial(target, p.opts)
	if err != nil {
		return nil, err
	}
	p.clients[pr.ID] = pooled{target: target, client: c}
	return c, nil
}

// Store calls Store on pr. The caller's context bounds the call.
func (p *Pool) Store(ctx context.Context, pr directory.Peer, key, data []byte) ([]byte, error) {
	c, err := p.client(pr)
	if err != nil {
		return nil, err
	}
	return c.Store(ctx, key, data)
}

// Retrieve calls Retrieve on pr. The caller's context bounds the call.
func (p *Pool) Retrieve(ctx context.Context, pr directory.Peer, key []byte) ([]byte, error) {
	c, err := p.client(pr)
	if err != nil {
		return nil, err
	}
	return c.Retrieve(ctx, key)
}

// Prune closes clients for peers not in keep.
func (p *Pool) Prune(keep []directory.Peer) {
	live := make(map[peer.ID]struct{}, len(keep))
	for _, k := range keep {
		live[k.ID] = struct{}{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, c := range p.clients {
		if _, ok := live[id]; !ok {
			_ = c.client.Close()
			delete(p.clients, id)
		}
	}
}

// Len returns the number of open clients.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for id, c := range p.clients {
		if err := c.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.clients, id)
	}
	return firstErr
}
