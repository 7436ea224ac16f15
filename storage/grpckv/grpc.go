package grpckv

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	serviceName = "storagenet.storage.v1.Storage"

	StoreMethod    = "/" + serviceName + "/Store"
	RetrieveMethod = "/" + serviceName + "/Retrieve"

	// KeyMetadata carries the key of a Store call. The "-bin" suffix makes
	// gRPC base64 the value on the wire, so keys may be arbitrary bytes.
	KeyMetadata = "storage-key-bin"
)

// StorageServer is the server API for the Storage gRPC service.
//
// We intentionally use protobuf well-known wrapper types so this package does
// not require a protoc/codegen toolchain. Store carries the data as the
// message and the key in KeyMetadata; Retrieve carries the key as the message.
type StorageServer interface {
	Store(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Retrieve(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

// UnimplementedStorageServer can be embedded to have forward compatible implementations.
type UnimplementedStorageServer struct{}

func (UnimplementedStorageServer) Store(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Store not implemented")
}
func (UnimplementedStorageServer) Retrieve(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Retrieve not implemented")
}

// RegisterStorageServer registers the Storage service on a gRPC server.
func RegisterStorageServer(s grpc.ServiceRegistrar, srv StorageServer) {
	s.RegisterService(&Storage_ServiceDesc, srv)
}

// StorageClient is the client API for the Storage gRPC service.
type StorageClient interface {
	Store(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Retrieve(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
}

type storageClient struct{ cc grpc.ClientConnInterface }

func NewStorageClient(cc grpc.ClientConnInterface) StorageClient { return &storageClient{cc: cc} }

func (c *storageClient) Store(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	err := c.cc.Invoke(ctx, StoreMethod, in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *storageClient) Retrieve(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	err := c.cc.Invoke(ctx, RetrieveMethod, in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func _Storage_Store_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StorageServer).Store(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: StoreMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StorageServer).Store(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Storage_Retrieve_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StorageServer).Retrieve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RetrieveMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StorageServer).Retrieve(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Storage_ServiceDesc is the grpc.ServiceDesc for Storage service.
var Storage_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*StorageServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Store", Handler: _Storage_Store_Handler},
		{MethodName: "Retrieve", Handler: _Storage_Retrieve_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storage.proto",
}
