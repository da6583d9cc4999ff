// Package ws serves the deepwell API over WebSocket. Each frame is a
// google.protobuf.Struct: binary frames carry the protobuf encoding, text
// frames carry protojson.
package ws

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"deepwell-rpc/api"
	"deepwell-rpc/apps/server/internal/logging"
)

const (
	maxFrameSize = 65536
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
	writeWait    = 10 * time.Second
	sendBuffer   = 256

	// maxInFlight caps the frames one connection may have dispatched at once.
	// The read pump stops reading until a slot frees up.
	maxInFlight = 32
)

// Gateway upgrades HTTP requests to WebSocket connections and dispatches their
// request frames to srv.
type Gateway struct {
	srv      api.DeepwellServer
	log      zerolog.Logger
	upgrader websocket.Upgrader
	inFlight int64

	mu     sync.Mutex
	conns  map[uuid.UUID]*conn
	closed bool
	wg     sync.WaitGroup
}

func New(srv api.DeepwellServer, log zerolog.Logger) *Gateway {
	return &Gateway{
		srv: srv,
		log: logging.Component(log, "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		inFlight: maxInFlight,
		conns:    make(map[uuid.UUID]*conn),
	}
}

// Len returns the number of open connections.
func (g *Gateway) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn().Err(err).Msg("upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		id:       uuid.New(),
		gw:       g,
		ws:       ws,
		remote:   remoteHost(r.RemoteAddr),
		send:     make(chan outbound, sendBuffer),
		inflight: semaphore.NewWeighted(g.inFlight),
		ctx:      ctx,
		cancel:   cancel,
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		cancel()
		_ = ws.Close()
		return
	}
	g.conns[c.id] = c
	total := len(g.conns)
	g.wg.Add(2)
	g.mu.Unlock()

	g.log.Info().Str("conn", c.id.String()).Str("remote", c.remote).Int("total", total).Msg("client connected")

	go c.readPump()
	go c.writePump()
}

// Close disconnects every client and waits for their pumps to exit. Calls that
// are still running see their context cancelled.
func (g *Gateway) Close() {
	g.mu.Lock()
	g.closed = true
	conns := make([]*conn, 0, len(g.conns))
	for _, c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	for _, c := range conns {
		c.cancel()
	}
	g.wg.Wait()
}

func (g *Gateway) remove(c *conn) {
	g.mu.Lock()
	delete(g.conns, c.id)
	total := len(g.conns)
	g.mu.Unlock()
	g.log.Info().Str("conn", c.id.String()).Int("total", total).Msg("client disconnected")
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
