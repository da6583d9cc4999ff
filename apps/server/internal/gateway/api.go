package gateway

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"deepwell-rpc/deepwell"
)

// MaxUserIDs caps a single GetUsersFromIDs call.
const MaxUserIDs = 100

const tracerName = "deepwell-rpc/gateway"

// API exposes one method per remote call. Each method builds a command, queues it
// for the owner and waits for the reply.
//
// Errors are returned as follows: domain failures as *deepwell.Error, a call the
// owner never answered as ErrUnavailable, a rejected submission as ErrQueueClosed,
// and an expired caller context as ctx.Err().
type API struct {
	handle Handle
	tracer trace.Tracer
}

func NewAPI(h Handle) *API {
	return &API{handle: h, tracer: otel.Tracer(tracerName)}
}

func call[R any](ctx context.Context, a *API, cmd Command, r replyTo[R]) (R, error) {
	ctx, span := a.tracer.Start(ctx, "gateway."+cmd.Kind(), trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	cmd.meta().stamp(ctx)
	span.SetAttributes(
		attribute.String("deepwell.command", cmd.Kind()),
		attribute.String("deepwell.request_id", cmd.meta().id.String()),
	)

	var zero R
	if err := a.handle.Submit(ctx, cmd); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return zero, err
	}
	value, err := r.reply.wait(ctx, a.handle.Done())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return zero, err
	}
	return value, nil
}

func (a *API) Protocol(ctx context.Context) (string, error) {
	cmd := &protocolCmd{replyTo: newReplyTo[string]()}
	return call(ctx, a, cmd, cmd.replyTo)
}

func (a *API) Ping(ctx context.Context) (string, error) {
	cmd := &pingCmd{replyTo: newReplyTo[string]()}
	return call(ctx, a, cmd, cmd.replyTo)
}

// Time returns the server clock in unix seconds.
func (a *API) Time(ctx context.Context) (float64, error) {
	cmd := &timeCmd{replyTo: newReplyTo[float64]()}
	return call(ctx, a, cmd, cmd.replyTo)
}

// Login opens a session. remoteAddress may be empty.
func (a *API) Login(ctx context.Context, usernameOrEmail, password, remoteAddress string) (deepwell.Session, error) {
	cmd := &loginCmd{
		replyTo:         newReplyTo[deepwell.Session](),
		usernameOrEmail: usernameOrEmail,
		password:        password,
		remoteAddress:   remoteAddress,
	}
	return call(ctx, a, cmd, cmd.replyTo)
}

func (a *API) Logout(ctx context.Context, sessionID deepwell.SessionID, userID deepwell.UserID) error {
	cmd := &logoutCmd{replyTo: newReplyTo[struct{}](), sessionID: sessionID, userID: userID}
	_, err := call(ctx, a, cmd, cmd.replyTo)
	return err
}

// LogoutOthers ends every other session of the user and returns them.
func (a *API) LogoutOthers(ctx context.Context, sessionID deepwell.SessionID, userID deepwell.UserID) ([]deepwell.Session, error) {
	cmd := &logoutOthersCmd{replyTo: newReplyTo[[]deepwell.Session](), sessionID: sessionID, userID: userID}
	return call(ctx, a, cmd, cmd.replyTo)
}

func (a *API) CheckSession(ctx context.Context, sessionID deepwell.SessionID, userID deepwell.UserID) error {
	cmd := &checkSessionCmd{replyTo: newReplyTo[struct{}](), sessionID: sessionID, userID: userID}
	_, err := call(ctx, a, cmd, cmd.replyTo)
	return err
}

func (a *API) CreateUser(ctx context.Context, name, email, password string) (deepwell.UserID, error) {
	cmd := &createUserCmd{
		replyTo:  newReplyTo[deepwell.UserID](),
		name:     name,
		email:    email,
		password: password,
	}
	return call(ctx, a, cmd, cmd.replyTo)
}

func (a *API) EditUser(ctx context.Context, userID deepwell.UserID, changes deepwell.UserMetadata) error {
	cmd := &editUserCmd{replyTo: newReplyTo[struct{}](), userID: userID, changes: changes}
	_, err := call(ctx, a, cmd, cmd.replyTo)
	return err
}

func (a *API) GetUserFromID(ctx context.Context, userID deepwell.UserID) (*deepwell.User, error) {
	cmd := &getUserFromIDCmd{replyTo: newReplyTo[*deepwell.User](), userID: userID}
	return call(ctx, a, cmd, cmd.replyTo)
}

// GetUsersFromIDs returns one entry per id, in order, nil where no user exists.
// At most MaxUserIDs ids are accepted.
func (a *API) GetUsersFromIDs(ctx context.Context, userIDs []deepwell.UserID) ([]*deepwell.User, error) {
	if len(userIDs) > MaxUserIDs {
		return nil, deepwell.InvalidArgument("too many user ids: %d (max %d)", len(userIDs), MaxUserIDs)
	}
	ids := append([]deepwell.UserID(nil), userIDs...)
	cmd := &getUsersFromIDsCmd{replyTo: newReplyTo[[]*deepwell.User](), userIDs: ids}
	return call(ctx, a, cmd, cmd.replyTo)
}

func (a *API) GetUserFromName(ctx context.Context, name string) (*deepwell.User, error) {
	cmd := &getUserFromNameCmd{replyTo: newReplyTo[*deepwell.User](), name: name}
	return call(ctx, a, cmd, cmd.replyTo)
}

func (a *API) GetUserFromEmail(ctx context.Context, email string) (*deepwell.User, error) {
	cmd := &getUserFromEmailCmd{replyTo: newReplyTo[*deepwell.User](), email: email}
	return call(ctx, a, cmd, cmd.replyTo)
}
