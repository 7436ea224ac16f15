package grpckv

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/storagenet/storage"
)

// Server exposes a storage.KV as the miner's Storage service.
//
// Store is unconditional: the miner does not validate what it is asked to
// keep. Concurrent calls rely on the KV's own per-key atomicity.
type Server struct {
	UnimplementedStorageServer
	KV storage.KV
}

func (s *Server) Store(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.KV == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing KV")
	}
	key, err := keyFromIncoming(ctx)
	if err != nil {
		return nil, err
	}
	data := in.GetValue()
	if err := s.KV.Put(key, data); err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bytes(data), nil
}

func (s *Server) Retrieve(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	_ = ctx
	if s == nil || s.KV == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing KV")
	}
	b, err := s.KV.Get(in.GetValue())
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bytes(b), nil
}

func keyFromIncoming(ctx context.Context) ([]byte, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	vals := md.Get(KeyMetadata)
	if len(vals) != 1 || vals[0] == "" {
		return nil, status.Error(codes.InvalidArgument, storage.ErrEmptyKey.Error())
	}
	return []byte(vals[0]), nil
}
