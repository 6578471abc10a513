package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorbl/protocol"
	"gorbl/settings"
	"gorbl/standalone"
	"gorbl/standalone/config"
)

type sink struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *sink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

type fixture struct {
	m   *standalone.Machine
	b   *Bridge
	srv *httptest.Server
	out *sink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	cfg := config.Default()
	rcfg := cfg.ReportConfig()
	rcfg.Sleep = func(time.Duration) {}

	out := &sink{}
	m, err := standalone.NewMachine(log, cfg, out, settings.NewMemoryBackend(), &rcfg)
	require.NoError(t, err)
	require.NoError(t, m.Start())

	b := New(log, m.Transport, m.NewInput())
	srv := httptest.NewServer(b.Handler())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		srv.Close()
		_ = b.Shutdown(context.Background())
		cancel()
		<-done
	})
	return &fixture{m: m, b: b, srv: srv, out: out}
}

func (f *fixture) dial(t *testing.T) (*websocket.Conn, string) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	id := resp.Header.Get(ClientIDHeader)
	require.Eventually(t, func() bool {
		for _, c := range f.b.ClientIDs() {
			if c == id {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	return conn, id
}

// readUntil collects messages until one equals want
func readUntil(t *testing.T, conn *websocket.Conn, want string) []string {
	t.Helper()
	var got []string
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err, "got %q", got)
		got = append(got, string(msg))
		if string(msg) == want {
			return got
		}
	}
}

func TestBridgeMirrorsFramesAndInjectsLines(t *testing.T) {
	f := newFixture(t)
	conn, id := f.dial(t)
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("$C")))
	got := readUntil(t, conn, "ok\r\n")
	assert.Equal(t, []string{"[MSG:Enabled]\r\n", "ok\r\n"}, got)

	// the serial side sees the same frames
	assert.Contains(t, f.out.String(), "[MSG:Enabled]\r\nok\r\n")
}

func TestBridgeRealtimeByte(t *testing.T) {
	f := newFixture(t)
	conn, _ := f.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte{protocol.CmdStatusReport}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(msg), "<Idle|"), string(msg))
}

func TestBridgeFansOutToEveryClient(t *testing.T) {
	f := newFixture(t)
	a, idA := f.dial(t)
	b, idB := f.dial(t)
	assert.NotEqual(t, idA, idB)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("G91")))
	readUntil(t, a, "ok\r\n")
	readUntil(t, b, "ok\r\n")
}

func TestBridgeLinesDoNotJoinPartialSerialLine(t *testing.T) {
	f := newFixture(t)
	conn, _ := f.dial(t)

	_, err := f.m.Write([]byte("G9"))
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("G90")))
	readUntil(t, conn, "ok\r\n")

	_, err = f.m.Write([]byte("1\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.Count(f.out.String(), "ok\r\n") == 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.NotContains(t, f.out.String(), "error:")
	assert.True(t, f.m.Interpreter.ModalState().Incremental, "serial G91 ran after the bridge G90")
}

func TestBridgeHTTP(t *testing.T) {
	f := newFixture(t)
	_, id := f.dial(t)

	resp, err := http.Get(f.srv.URL + "/api/clients")
	require.NoError(t, err)
	var ids []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ids))
	resp.Body.Close()
	assert.Equal(t, []string{id}, ids)

	resp, err = http.Post(f.srv.URL+"/api/line", "application/json", strings.NewReader(`{"line":"G91"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Eventually(t, func() bool {
		return f.m.Interpreter.ModalState().Incremental
	}, time.Second, 5*time.Millisecond)

	resp, err = http.Post(f.srv.URL+"/api/line", "application/json", strings.NewReader(`{"line":""}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(f.srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
