package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"deepwell-rpc/deepwell"
)

// testCore wraps a real server. Ping parks on release so tests can hold the owner
// busy, and every wrapped call checks that no other call is running.
type testCore struct {
	*deepwell.Server

	active  atomic.Int32
	overlap atomic.Bool
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	mu         sync.Mutex
	names      []string
	batchCalls int
}

func (c *testCore) enter() {
	if c.active.Add(1) > 1 {
		c.overlap.Store(true)
	}
}

func (c *testCore) leave() {
	c.active.Add(-1)
}

func (c *testCore) unblock() {
	c.once.Do(func() { close(c.release) })
}

func (c *testCore) Ping(ctx context.Context) (string, error) {
	c.enter()
	defer c.leave()
	select {
	case c.entered <- struct{}{}:
	default:
	}
	<-c.release
	return c.Server.Ping(ctx)
}

func (c *testCore) GetUserFromName(ctx context.Context, name string) (*deepwell.User, error) {
	c.enter()
	defer c.leave()
	if name == "boom" {
		panic("boom")
	}
	c.mu.Lock()
	c.names = append(c.names, name)
	c.mu.Unlock()
	time.Sleep(time.Millisecond)
	return c.Server.GetUserFromName(ctx, name)
}

func (c *testCore) GetUsersFromIDs(ctx context.Context, ids []deepwell.UserID) ([]*deepwell.User, error) {
	c.enter()
	defer c.leave()
	c.mu.Lock()
	c.batchCalls++
	c.mu.Unlock()
	return c.Server.GetUsersFromIDs(ctx, ids)
}

func (c *testCore) seenNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.names...)
}

type fixture struct {
	owner *Owner
	api   *API
	core  *testCore
}

func newFixture(t *testing.T, held bool, opts Options) *fixture {
	t.Helper()

	srv, err := deepwell.NewServer(deepwell.Config{
		Store:      deepwell.NewMemoryStore(),
		BcryptCost: bcrypt.MinCost,
	})
	if err != nil {
		t.Fatalf("NewServer err: %v", err)
	}
	core := &testCore{
		Server:  srv,
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
	if !held {
		core.unblock()
	}
	opts.Logger = zerolog.Nop()
	owner := Start(core, opts)
	t.Cleanup(func() {
		core.unblock()
		_ = owner.Shutdown(context.Background(), ShutdownImmediate)
	})
	return &fixture{owner: owner, api: NewAPI(owner.Handle()), core: core}
}

// holdOwner starts a Ping and returns once the owner is parked inside it.
func (f *fixture) holdOwner(t *testing.T) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() {
		_, err := f.api.Ping(context.Background())
		errCh <- err
	}()
	select {
	case <-f.core.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("owner never picked up the blocking ping")
	}
	return errCh
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func recvErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("call did not return")
		return nil
	}
}
