package api

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"deepwell-rpc/deepwell"
)

// ErrorDomain tags the ErrorInfo detail of every domain error.
const ErrorDomain = "deepwell"

// Code returns the gRPC code for a domain error kind.
func Code(kind deepwell.Kind) codes.Code {
	switch kind {
	case deepwell.KindAuthenticationFailed, deepwell.KindInvalidSession:
		return codes.Unauthenticated
	case deepwell.KindUserNotFound:
		return codes.NotFound
	case deepwell.KindNameExists, deepwell.KindEmailExists:
		return codes.AlreadyExists
	case deepwell.KindInvalidArgument, deepwell.KindPasswordRejected:
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

// ToStatus converts err into a gRPC status error. Domain errors keep their kind
// in an ErrorInfo detail so FromStatus can rebuild them.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if derr, ok := deepwell.AsError(err); ok {
		return domainStatus(derr)
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	if st, ok := status.FromError(err); ok {
		return st.Err()
	}
	return domainStatus(deepwell.Internal(err))
}

// Unavailable reports that the core could not take or finish the call.
func Unavailable(err error) error {
	return status.Error(codes.Unavailable, err.Error())
}

func domainStatus(derr *deepwell.Error) error {
	code := Code(derr.Kind)
	st, err := status.New(code, derr.Message).WithDetails(&errdetails.ErrorInfo{
		Reason: string(derr.Kind),
		Domain: ErrorDomain,
	})
	if err != nil {
		return status.New(code, derr.Message).Err()
	}
	return st.Err()
}

// FromStatus turns a status error carrying a deepwell ErrorInfo back into a
// *deepwell.Error. Any other error is returned unchanged.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, detail := range st.Details() {
		info, ok := detail.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != ErrorDomain {
			continue
		}
		return deepwell.NewError(deepwell.Kind(info.GetReason()), st.Message())
	}
	return err
}
