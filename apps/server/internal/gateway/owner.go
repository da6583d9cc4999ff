package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"deepwell-rpc/deepwell"
)

// Core is the domain object served by the owner. Implementations need not be safe
// for concurrent use.
type Core interface {
	Protocol() string
	Ping(ctx context.Context) (string, error)
	Time() float64

	TryLogin(ctx context.Context, usernameOrEmail, password, remoteAddress string) (deepwell.Session, error)
	CheckSession(ctx context.Context, sessionID deepwell.SessionID, userID deepwell.UserID) error
	EndSession(ctx context.Context, sessionID deepwell.SessionID, userID deepwell.UserID) error
	EndOtherSessions(ctx context.Context, sessionID deepwell.SessionID, userID deepwell.UserID) ([]deepwell.Session, error)

	CreateUser(ctx context.Context, name, email, password string) (deepwell.UserID, error)
	EditUser(ctx context.Context, userID deepwell.UserID, changes deepwell.UserMetadata) error
	GetUserFromID(ctx context.Context, userID deepwell.UserID) (*deepwell.User, error)
	GetUsersFromIDs(ctx context.Context, userIDs []deepwell.UserID) ([]*deepwell.User, error)
	GetUserFromName(ctx context.Context, name string) (*deepwell.User, error)
	GetUserFromEmail(ctx context.Context, email string) (*deepwell.User, error)
}

var _ Core = (*deepwell.Server)(nil)

type State int32

const (
	StateRunning State = iota
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type ShutdownMode int

const (
	// ShutdownGraceful runs every queued command before stopping.
	ShutdownGraceful ShutdownMode = iota
	// ShutdownImmediate fails queued commands with ErrShuttingDown.
	ShutdownImmediate
)

func ParseShutdownMode(s string) (ShutdownMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "graceful":
		return ShutdownGraceful, nil
	case "immediate":
		return ShutdownImmediate, nil
	default:
		return 0, fmt.Errorf("unknown shutdown mode %q", s)
	}
}

func (m ShutdownMode) String() string {
	if m == ShutdownImmediate {
		return "immediate"
	}
	return "graceful"
}

type Options struct {
	// QueueCapacity bounds the command queue. Zero means unbounded.
	QueueCapacity int
	Logger        zerolog.Logger
	Metrics       *Metrics
}

// Owner is the only goroutine that touches the core. Commands are executed one at
// a time in the order they were queued.
type Owner struct {
	core    Core
	queue   *Queue
	log     zerolog.Logger
	metrics *Metrics

	state     atomic.Int32
	immediate atomic.Bool
	done      chan struct{}
}

// Start launches the owner loop for core.
func Start(core Core, opts Options) *Owner {
	o := &Owner{
		core:    core,
		queue:   NewQueue(opts.QueueCapacity),
		log:     opts.Logger.With().Str("component", "gateway").Logger(),
		metrics: opts.Metrics,
		done:    make(chan struct{}),
	}
	o.setState(StateRunning)
	go o.run()

	o.log.Info().Int("queue_capacity", opts.QueueCapacity).Msg("core owner started")
	return o
}

func (o *Owner) Handle() Handle {
	return Handle{queue: o.queue, done: o.done, metrics: o.metrics}
}

func (o *Owner) State() State {
	return State(o.state.Load())
}

// Done is closed once the owner has stopped.
func (o *Owner) Done() <-chan struct{} {
	return o.done
}

// Shutdown stops accepting commands and waits for the owner to stop. The command
// in flight always finishes. If ctx ends during a graceful drain the rest of the
// queue is failed as in an immediate shutdown and ctx.Err() is returned.
func (o *Owner) Shutdown(ctx context.Context, mode ShutdownMode) error {
	if o.state.CompareAndSwap(int32(StateRunning), int32(StateDraining)) {
		o.metrics.state(StateDraining)
		o.log.Info().Str("mode", mode.String()).Int("queued", o.queue.Len()).Msg("core owner shutting down")
	}
	if mode == ShutdownImmediate {
		o.immediate.Store(true)
	}
	o.queue.Close()

	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
	}

	o.log.Warn().Int("queued", o.queue.Len()).Msg("drain deadline passed, failing remaining commands")
	o.immediate.Store(true)
	<-o.done
	return ctx.Err()
}

func (o *Owner) setState(s State) {
	o.state.Store(int32(s))
	o.metrics.state(s)
}

func (o *Owner) run() {
	defer close(o.done)

	for {
		cmd, err := o.queue.Pop(context.Background())
		if err != nil {
			break
		}
		o.metrics.dequeued()

		if o.immediate.Load() {
			o.reject(cmd)
			continue
		}
		o.dispatch(cmd)
	}

	o.setState(StateStopped)
	o.log.Info().Msg("core owner stopped")
}

func (o *Owner) reject(cmd Command) {
	delivered := cmd.fail(ErrShuttingDown)
	o.metrics.handled(cmd.Kind(), "rejected", cmd.meta().enqueued, delivered)
}

func (o *Owner) dispatch(cmd Command) {
	meta := cmd.meta()
	o.log.Debug().
		Str("request_id", meta.id.String()).
		Str("command", cmd.Kind()).
		Msg("command received")

	res := o.execute(cmd)

	outcome := "ok"
	if res.err != nil {
		outcome = strings.ToLower(string(deepwell.KindOf(res.err)))
	}
	if !res.delivered {
		o.log.Warn().
			Str("request_id", meta.id.String()).
			Str("command", cmd.Kind()).
			Msg("reply receiver gone")
	}
	o.metrics.handled(cmd.Kind(), outcome, meta.enqueued, res.delivered)
}

type result struct {
	err       error
	delivered bool
}

func complete[R any](r replyTo[R], value R, err error) result {
	err = deepwell.Normalize(err)
	if err != nil {
		var zero R
		value = zero
	}
	return result{err: err, delivered: r.reply.send(value, err)}
}

func ack(r replyTo[struct{}], err error) result {
	return complete(r, struct{}{}, err)
}

// execute runs cmd against the core and replies. A panic in the core is turned
// into an internal error reply.
func (o *Owner) execute(cmd Command) (res result) {
	defer func() {
		if rec := recover(); rec != nil {
			err := deepwell.Internal(fmt.Errorf("panic in %s: %v", cmd.Kind(), rec))
			o.log.Error().
				Str("request_id", cmd.meta().id.String()).
				Str("command", cmd.Kind()).
				Interface("panic", rec).
				Msg("core panicked")
			res = result{err: err, delivered: cmd.fail(err)}
		}
	}()

	ctx := cmd.meta().detached()

	switch c := cmd.(type) {
	case *protocolCmd:
		return complete(c.replyTo, o.core.Protocol(), nil)
	case *pingCmd:
		pong, err := o.core.Ping(ctx)
		return complete(c.replyTo, pong, err)
	case *timeCmd:
		return complete(c.replyTo, o.core.Time(), nil)
	case *loginCmd:
		session, err := o.core.TryLogin(ctx, c.usernameOrEmail, c.password, c.remoteAddress)
		return complete(c.replyTo, session, err)
	case *logoutCmd:
		return ack(c.replyTo, o.core.EndSession(ctx, c.sessionID, c.userID))
	case *logoutOthersCmd:
		sessions, err := o.core.EndOtherSessions(ctx, c.sessionID, c.userID)
		return complete(c.replyTo, sessions, err)
	case *checkSessionCmd:
		return ack(c.replyTo, o.core.CheckSession(ctx, c.sessionID, c.userID))
	case *createUserCmd:
		id, err := o.core.CreateUser(ctx, c.name, c.email, c.password)
		return complete(c.replyTo, id, err)
	case *editUserCmd:
		return ack(c.replyTo, o.core.EditUser(ctx, c.userID, c.changes))
	case *getUserFromIDCmd:
		user, err := o.core.GetUserFromID(ctx, c.userID)
		return complete(c.replyTo, user, err)
	case *getUsersFromIDsCmd:
		users, err := o.core.GetUsersFromIDs(ctx, c.userIDs)
		return complete(c.replyTo, users, err)
	case *getUserFromNameCmd:
		user, err := o.core.GetUserFromName(ctx, c.name)
		return complete(c.replyTo, user, err)
	case *getUserFromEmailCmd:
		user, err := o.core.GetUserFromEmail(ctx, c.email)
		return complete(c.replyTo, user, err)
	default:
		err := deepwell.Internal(fmt.Errorf("%w: %s", ErrUnhandledCommand, cmd.Kind()))
		return result{err: err, delivered: cmd.fail(err)}
	}
}
