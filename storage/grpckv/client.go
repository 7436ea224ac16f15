package grpckv

import (
	"bytes"
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/storagenet/storage"
)

// Client calls the Storage service of one miner.
type Client struct {
	cc     *grpc.ClientConn
	client StorageClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

type DialOptions struct {
	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int

	// Extra is appended to the dial options (tests use it for bufconn).
	Extra []grpc.DialOption
}

// Dial creates a client for target. The connection is established lazily
// on the first call, so Dial does not fail for unreachable peers.
func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}
	dialOpts = append(dialOpts, opts.Extra...)

	cc, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, client: NewStorageClient(cc)}, nil
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

// Store asks the miner to keep data under key and returns its acknowledgment,
// which an honest miner echoes back unchanged.
func (c *Client) Store(ctx context.Context, key, data []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, storage.ErrEmptyKey
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, KeyMetadata, string(key))

	reply, err := c.client.Store(ctx, wrapperspb.Bytes(data))
	if err != nil {
		return nil, mapRPC(err)
	}
	return reply.GetValue(), nil
}

// Retrieve fetches the value the miner holds for key.
func (c *Client) Retrieve(ctx context.Context, key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, storage.ErrEmptyKey
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Retrieve(ctx, wrapperspb.Bytes(key))
	if err != nil {
		return nil, mapRPC(err)
	}
	return reply.GetValue(), nil
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}

// RemoteKV adapts a Client to storage.KV for operator tooling.
type RemoteKV struct {
	Client *Client
}

var _ storage.KV = RemoteKV{}

func (r RemoteKV) Put(key, value []byte) error {
	ack, err := r.Client.Store(context.Background(), key, value)
	if err != nil {
		return err
	}
	if !bytes.Equal(ack, value) {
		return ErrBadAck
	}
	return nil
}

func (r RemoteKV) Get(key []byte) ([]byte, error) {
	return r.Client.Retrieve(context.Background(), key)
}

func (r RemoteKV) Has(key []byte) bool {
	_, err := r.Get(key)
	return err == nil
}
