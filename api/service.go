package api

import (
	"context"

	"google.golang.org/grpc"
)

// DeepwellServer is implemented by the RPC server.
type DeepwellServer interface {
	Protocol(context.Context, *Empty) (*ProtocolResponse, error)
	Ping(context.Context, *Empty) (*PingResponse, error)
	Time(context.Context, *Empty) (*TimeResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	Logout(context.Context, *SessionRequest) (*Empty, error)
	LogoutOthers(context.Context, *SessionRequest) (*LogoutOthersResponse, error)
	CheckSession(context.Context, *SessionRequest) (*Empty, error)
	CreateUser(context.Context, *CreateUserRequest) (*CreateUserResponse, error)
	EditUser(context.Context, *EditUserRequest) (*Empty, error)
	GetUserFromID(context.Context, *GetUserFromIDRequest) (*UserResponse, error)
	GetUsersFromIDs(context.Context, *GetUsersFromIDsRequest) (*UsersResponse, error)
	GetUserFromName(context.Context, *GetUserFromNameRequest) (*UserResponse, error)
	GetUserFromEmail(context.Context, *GetUserFromEmailRequest) (*UserResponse, error)
}

// FullMethod returns the gRPC path of a method, e.g. "/deepwell.v0.Deepwell/Ping".
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req, Resp any](name string, call func(DeepwellServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(DeepwellServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(DeepwellServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the Deepwell service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DeepwellServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Protocol", DeepwellServer.Protocol),
		unary("Ping", DeepwellServer.Ping),
		unary("Time", DeepwellServer.Time),
		unary("Login", DeepwellServer.Login),
		unary("Logout", DeepwellServer.Logout),
		unary("LogoutOthers", DeepwellServer.LogoutOthers),
		unary("CheckSession", DeepwellServer.CheckSession),
		unary("CreateUser", DeepwellServer.CreateUser),
		unary("EditUser", DeepwellServer.EditUser),
		unary("GetUserFromID", DeepwellServer.GetUserFromID),
		unary("GetUsersFromIDs", DeepwellServer.GetUsersFromIDs),
		unary("GetUserFromName", DeepwellServer.GetUserFromName),
		unary("GetUserFromEmail", DeepwellServer.GetUserFromEmail),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "deepwell/v0",
}

func RegisterDeepwellServer(s grpc.ServiceRegistrar, srv DeepwellServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// DeepwellClient is the low-level stub. Errors are gRPC status errors; use
// FromStatus to recover domain errors.
type DeepwellClient struct {
	cc grpc.ClientConnInterface
}

func NewDeepwellClient(cc grpc.ClientConnInterface) *DeepwellClient {
	return &DeepwellClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DeepwellClient) Protocol(ctx context.Context, opts ...grpc.CallOption) (*ProtocolResponse, error) {
	return invoke[ProtocolResponse](ctx, c.cc, "Protocol", &Empty{}, opts)
}

func (c *DeepwellClient) Ping(ctx context.Context, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, "Ping", &Empty{}, opts)
}

func (c *DeepwellClient) Time(ctx context.Context, opts ...grpc.CallOption) (*TimeResponse, error) {
	return invoke[TimeResponse](ctx, c.cc, "Time", &Empty{}, opts)
}

func (c *DeepwellClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	return invoke[LoginResponse](ctx, c.cc, "Login", in, opts)
}

func (c *DeepwellClient) Logout(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "Logout", in, opts)
}

func (c *DeepwellClient) LogoutOthers(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (*LogoutOthersResponse, error) {
	return invoke[LogoutOthersResponse](ctx, c.cc, "LogoutOthers", in, opts)
}

func (c *DeepwellClient) CheckSession(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "CheckSession", in, opts)
}

func (c *DeepwellClient) CreateUser(ctx context.Context, in *CreateUserRequest, opts ...grpc.CallOption) (*CreateUserResponse, error) {
	return invoke[CreateUserResponse](ctx, c.cc, "CreateUser", in, opts)
}

func (c *DeepwellClient) EditUser(ctx context.Context, in *EditUserRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, "EditUser", in, opts)
}

func (c *DeepwellClient) GetUserFromID(ctx context.Context, in *GetUserFromIDRequest, opts ...grpc.CallOption) (*UserResponse, error) {
	return invoke[UserResponse](ctx, c.cc, "GetUserFromID", in, opts)
}

func (c *DeepwellClient) GetUsersFromIDs(ctx context.Context, in *GetUsersFromIDsRequest, opts ...grpc.CallOption) (*UsersResponse, error) {
	return invoke[UsersResponse](ctx, c.cc, "GetUsersFromIDs", in, opts)
}

func (c *DeepwellClient) GetUserFromName(ctx context.Context, in *GetUserFromNameRequest, opts ...grpc.CallOption) (*UserResponse, error) {
	return invoke[UserResponse](ctx, c.cc, "GetUserFromName", in, opts)
}

func (c *DeepwellClient) GetUserFromEmail(ctx context.Context, in *GetUserFromEmailRequest, opts ...grpc.CallOption) (*UserResponse, error) {
	return invoke[UserResponse](ctx, c.cc, "GetUserFromEmail", in, opts)
}
