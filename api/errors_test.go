package api

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"deepwell-rpc/deepwell"
)

func TestToStatus_Codes(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
	}{
		{deepwell.ErrAuthenticationFailed, codes.Unauthenticated},
		{deepwell.ErrInvalidSession, codes.Unauthenticated},
		{deepwell.ErrUserNotFound, codes.NotFound},
		{deepwell.ErrNameExists, codes.AlreadyExists},
		{deepwell.ErrEmailExists, codes.AlreadyExists},
		{deepwell.InvalidArgument("bad"), codes.InvalidArgument},
		{deepwell.ErrPasswordRejected, codes.InvalidArgument},
		{deepwell.Internal(errors.New("disk")), codes.Internal},
		{errors.New("plain"), codes.Internal},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{fmt.Errorf("wait: %w", context.Canceled), codes.Canceled},
		{Unavailable(errors.New("stopped")), codes.Unavailable},
	}
	for _, tc := range cases {
		got := status.Code(ToStatus(tc.err))
		if got != tc.code {
			t.Fatalf("ToStatus(%v) code = %s, want %s", tc.err, got, tc.code)
		}
	}
	if ToStatus(nil) != nil {
		t.Fatalf("nil must map to nil")
	}
}

func TestFromStatus_RestoresDomainError(t *testing.T) {
	wire := ToStatus(fmt.Errorf("login: %w", deepwell.ErrAuthenticationFailed))

	err := FromStatus(wire)
	if !errors.Is(err, deepwell.ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
	if deepwell.KindOf(err) != deepwell.KindAuthenticationFailed {
		t.Fatalf("unexpected kind %s", deepwell.KindOf(err))
	}
}

func TestFromStatus_InternalHidesCause(t *testing.T) {
	wire := ToStatus(deepwell.Internal(errors.New("password=hunter2")))
	err := FromStatus(wire)
	if deepwell.KindOf(err) != deepwell.KindInternal {
		t.Fatalf("expected internal kind, got %v", err)
	}
	if got := err.Error(); got != "internal server error" {
		t.Fatalf("cause leaked over the wire: %q", got)
	}
}

func TestFromStatus_PassesThroughOtherErrors(t *testing.T) {
	wire := Unavailable(errors.New("core stopped"))
	if got := FromStatus(wire); status.Code(got) != codes.Unavailable {
		t.Fatalf("expected unavailable status to pass through, got %v", got)
	}
	plain := errors.New("plain")
	if got := FromStatus(plain); got != plain {
		t.Fatalf("non-status errors must be returned unchanged")
	}
}

func TestJSONCodec(t *testing.T) {
	codec := jsonCodec{}
	if codec.Name() != CodecName {
		t.Fatalf("unexpected codec name %q", codec.Name())
	}

	name := "alicia"
	in := &EditUserRequest{UserID: 4, Changes: deepwell.UserMetadata{Name: &name}}
	data, err := codec.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal err: %v", err)
	}
	if string(data) != `{"user_id":4,"changes":{"name":"alicia"}}` {
		t.Fatalf("unexpected encoding %s", data)
	}

	var out EditUserRequest
	if err := codec.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal err: %v", err)
	}
	if out.UserID != 4 || out.Changes.Name == nil || *out.Changes.Name != "alicia" || out.Changes.Email != nil {
		t.Fatalf("unexpected decode %+v", out)
	}
}
