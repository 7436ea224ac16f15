package grpckv

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/storagenet/storage"
)

var (
	// ErrTransient wraps failures to reach a peer: timeouts, refused or
	// dropped connections, cancelled calls.
	ErrTransient = errors.New("grpckv: transient network failure")
	// ErrBadAck is returned by Store when the acknowledgment differs from the
	// stored data.
	ErrBadAck = errors.New("grpckv: store acknowledgment mismatch")
)

func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.NotFound:
		return storage.ErrNotFound
	case codes.InvalidArgument:
		// Server uses InvalidArgument for missing or empty keys.
		return storage.ErrEmptyKey
	case codes.DeadlineExceeded, codes.Unavailable, codes.Canceled:
		return fmt.Errorf("%w: %s", ErrTransient, st.Message())
	default:
		// Best-effort: if the server sent a known storage error message, preserve it.
		switch st.Message() {
		case storage.ErrNotFound.Error():
			return storage.ErrNotFound
		case storage.ErrEmptyKey.Error():
			return storage.ErrEmptyKey
		default:
			return err
		}
	}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, storage.ErrNotFound.Error())
	case errors.Is(err, storage.ErrEmptyKey):
		return status.Error(codes.InvalidArgument, storage.ErrEmptyKey.Error())
	case errors.Is(err, storage.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
