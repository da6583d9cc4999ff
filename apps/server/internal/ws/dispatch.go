package ws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gorilla/websocket"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"deepwell-rpc/api"
	"deepwell-rpc/deepwell"
)

// Error kinds for failures that never reached the core.
const (
	KindUnavailable = "UNAVAILABLE"
	KindTimeout     = "TIMEOUT"
)

type request struct {
	remote string
	params []byte
}

type route func(ctx context.Context, srv api.DeepwellServer, req request) (any, error)

func bind[Req, Resp any](call func(api.DeepwellServer, context.Context, *Req) (*Resp, error)) route {
	return func(ctx context.Context, srv api.DeepwellServer, req request) (any, error) {
		in := new(Req)
		if err := decodeParams(req.params, in); err != nil {
			return nil, err
		}
		return call(srv, ctx, in)
	}
}

func login(ctx context.Context, srv api.DeepwellServer, req request) (any, error) {
	in := new(api.LoginRequest)
	if err := decodeParams(req.params, in); err != nil {
		return nil, err
	}
	if in.RemoteAddress == "" {
		in.RemoteAddress = req.remote
	}
	return srv.Login(ctx, in)
}

var routes = map[string]route{
	api.MethodProtocol:         bind(api.DeepwellServer.Protocol),
	api.MethodPing:             bind(api.DeepwellServer.Ping),
	api.MethodTime:             bind(api.DeepwellServer.Time),
	api.MethodLogin:            login,
	api.MethodLogout:           bind(api.DeepwellServer.Logout),
	api.MethodLogoutOthers:     bind(api.DeepwellServer.LogoutOthers),
	api.MethodCheckSession:     bind(api.DeepwellServer.CheckSession),
	api.MethodCreateUser:       bind(api.DeepwellServer.CreateUser),
	api.MethodEditUser:         bind(api.DeepwellServer.EditUser),
	api.MethodGetUserFromID:    bind(api.DeepwellServer.GetUserFromID),
	api.MethodGetUsersFromIDs:  bind(api.DeepwellServer.GetUsersFromIDs),
	api.MethodGetUserFromName:  bind(api.DeepwellServer.GetUserFromName),
	api.MethodGetUserFromEmail: bind(api.DeepwellServer.GetUserFromEmail),
}

func decodeParams(params []byte, into any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, into); err != nil {
		return deepwell.InvalidArgument("malformed params: %v", err)
	}
	return nil
}

// handle answers one request frame. Replies use the frame type of the request.
func (c *conn) handle(messageType int, data []byte) {
	id, reply := c.process(messageType, data)
	reply.Fields["id"] = id

	out, err := encodeFrame(messageType, reply)
	if err != nil {
		c.gw.log.Error().Err(err).Str("conn", c.id.String()).Msg("encode reply failed")
		return
	}
	c.enqueue(messageType, out)
}

func (c *conn) process(messageType int, data []byte) (*structpb.Value, *structpb.Struct) {
	frame, err := decodeFrame(messageType, data)
	if err != nil {
		return structpb.NewNullValue(), errorFrame(deepwell.InvalidArgument("malformed frame: %v", err))
	}

	id := frame.GetFields()["id"]
	if id == nil {
		id = structpb.NewNullValue()
	}
	method := frame.GetFields()["method"].GetStringValue()
	call, ok := routes[method]
	if !ok {
		return id, errorFrame(deepwell.InvalidArgument("unknown method %q", method))
	}

	req := request{remote: c.remote}
	if params := frame.GetFields()["params"]; params != nil {
		if req.params, err = protojson.Marshal(params); err != nil {
			return id, errorFrame(deepwell.InvalidArgument("malformed params: %v", err))
		}
	}

	resp, err := call(c.ctx, c.gw.srv, req)
	if err != nil {
		return id, errorFrame(err)
	}
	result, err := toValue(resp)
	if err != nil {
		return id, errorFrame(deepwell.Internal(err))
	}
	return id, &structpb.Struct{Fields: map[string]*structpb.Value{"result": result}}
}

func decodeFrame(messageType int, data []byte) (*structpb.Struct, error) {
	frame := &structpb.Struct{}
	var err error
	if messageType == websocket.BinaryMessage {
		err = proto.Unmarshal(data, frame)
	} else {
		err = protojson.Unmarshal(data, frame)
	}
	return frame, err
}

func encodeFrame(messageType int, frame *structpb.Struct) ([]byte, error) {
	if messageType == websocket.BinaryMessage {
		return proto.Marshal(frame)
	}
	return protojson.Marshal(frame)
}

// toValue converts a response message through its JSON form so the field names
// match the gRPC JSON codec.
func toValue(resp any) (*structpb.Value, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	v := &structpb.Value{}
	if err := protojson.Unmarshal(data, v); err != nil {
		return nil, err
	}
	return v, nil
}

func errorFrame(err error) *structpb.Struct {
	kind, message := describe(err)
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"error": structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"kind":    structpb.NewStringValue(kind),
			"message": structpb.NewStringValue(message),
		}}),
	}}
}

func describe(err error) (kind, message string) {
	if derr, ok := deepwell.AsError(api.FromStatus(err)); ok {
		return string(derr.Kind), derr.Message
	}
	st, ok := status.FromError(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			return KindTimeout, err.Error()
		}
		return string(deepwell.KindInternal), deepwell.Internal(err).Message
	}
	switch st.Code() {
	case codes.Unavailable, codes.Canceled:
		return KindUnavailable, st.Message()
	case codes.DeadlineExceeded:
		return KindTimeout, st.Message()
	default:
		return string(deepwell.KindInternal), st.Message()
	}
}
