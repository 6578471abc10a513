// Package bridge mirrors the controller's output channel to websocket
// clients and feeds their lines back into the controller input.
package bridge

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"gorbl/protocol"
)

// ClientIDHeader carries the id assigned to a websocket client in the
// upgrade response
const ClientIDHeader = "X-Client-Id"

const (
	sendQueue   = 256
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = 30 * time.Second
	maxReadSize = protocol.LineMax + 2
)

// Bridge serves /ws. Every frame written to the transport reaches every
// client as one text message.
type Bridge struct {
	log      logrus.FieldLogger
	input    io.Writer
	upgrader websocket.Upgrader
	e        *echo.Echo
	untap    func()

	inMu    sync.Mutex
	mu      sync.RWMutex
	clients map[string]*wsClient
}

// New creates a bridge tapping out and writing client input to in
func New(log logrus.FieldLogger, out *protocol.Transport, in io.Writer) *Bridge {
	b := &Bridge{
		log:   log,
		input: in,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		clients: make(map[string]*wsClient),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/ws", b.handleWebSocket)
	e.GET("/health", b.handleHealth)
	api := e.Group("/api")
	api.GET("/clients", b.handleClients)
	api.POST("/line", b.handleLine)
	b.e = e

	b.untap = out.Tap(b.broadcast)
	return b
}

// Handler returns the HTTP handler
func (b *Bridge) Handler() http.Handler {
	return b.e
}

// Start serves on addr until Shutdown
func (b *Bridge) Start(addr string) error {
	b.log.WithField("addr", addr).Info("bridge listening")
	if err := b.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, detaches from the transport and drops every
// client
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.untap()
	b.mu.Lock()
	for id, c := range b.clients {
		c.close()
		delete(b.clients, id)
	}
	b.mu.Unlock()
	return b.e.Shutdown(ctx)
}

// broadcast runs on the transport writer with the channel held; it only
// queues
func (b *Bridge) broadcast(frame []byte) {
	msg := append([]byte(nil), frame...)
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, c := range b.clients {
		c.send(msg)
	}
}

// inject writes client input as if it came from the serial link. A line
// gets its terminator; a single realtime byte is passed as-is.
func (b *Bridge) inject(p []byte) error {
	if !(len(p) == 1 && protocol.IsRealtime(p[0])) {
		if n := len(p); n == 0 || (p[n-1] != '\n' && p[n-1] != '\r') {
			p = append(p, '\n')
		}
	}
	b.inMu.Lock()
	defer b.inMu.Unlock()
	_, err := b.input.Write(p)
	return err
}

func (b *Bridge) add(c *wsClient) {
	b.mu.Lock()
	b.clients[c.id] = c
	b.mu.Unlock()
}

func (b *Bridge) remove(c *wsClient) {
	b.mu.Lock()
	delete(b.clients, c.id)
	b.mu.Unlock()
}

// ClientIDs returns the connected client ids, sorted
func (b *Bridge) ClientIDs() []string {
	b.mu.RLock()
	ids := make([]string, 0, len(b.clients))
	for id := range b.clients {
		ids = append(ids, id)
	}
	b.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (b *Bridge) handleWebSocket(c echo.Context) error {
	id := uuid.NewString()
	conn, err := b.upgrader.Upgrade(c.Response(), c.Request(), http.Header{ClientIDHeader: []string{id}})
	if err != nil {
		return err
	}

	client := newClient(id, conn, b)
	b.add(client)
	b.log.WithField("client", id).Info("websocket client connected")

	go client.writePump()
	client.readPump()
	return nil
}

func (b *Bridge) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": len(b.ClientIDs()),
	})
}

func (b *Bridge) handleClients(c echo.Context) error {
	return c.JSON(http.StatusOK, b.ClientIDs())
}

type lineRequest struct {
	Line string `json:"line"`
}

func (b *Bridge) handleLine(c echo.Context) error {
	var req lineRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Line == "" || len(req.Line) > protocol.LineMax {
		return echo.NewHTTPError(http.StatusBadRequest, "line must be 1 to 256 characters")
	}
	if err := b.inject([]byte(req.Line)); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}
