package server

import (
	"context"
	"errors"

	"LendLedger/internal/core"
	"LendLedger/internal/ingestion"
	"LendLedger/internal/query"
	"LendLedger/internal/state"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus converts a service error into a gRPC status error. Errors that
// already carry a status pass through.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codeOf(err), err.Error())
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, core.ErrRunnerStopped), errors.Is(err, query.ErrUnavailable):
		return codes.Unavailable
	case errors.Is(err, ingestion.ErrInvalidPayload), errors.Is(err, ingestion.ErrUnknownSubject):
		return codes.InvalidArgument
	}

	switch state.Classify(err) {
	case state.ClassInvalidArgument:
		return codes.InvalidArgument
	case state.ClassFailedPrecondition:
		return codes.FailedPrecondition
	case state.ClassNotFound:
		return codes.NotFound
	case state.ClassPermissionDenied:
		return codes.PermissionDenied
	case state.ClassUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
