package wsgate

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/park285/reversi-server/internal/lobby"
	"github.com/park285/reversi-server/internal/session"
)

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
	buf  []string
}

func dial(t *testing.T, srvURL string) *wsClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srvURL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(websocket.StatusNormalClosure, "") })
	return &wsClient{t: t, conn: c}
}

func (c *wsClient) send(line string) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(c.t, c.conn.Write(ctx, websocket.MessageText, []byte(line+"\n")))
}

// sendFrame writes text as a single message without a trailing newline,
// the way browser clients send.
func (c *wsClient) sendFrame(text string) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(c.t, c.conn.Write(ctx, websocket.MessageText, []byte(text)))
}

// next returns the next line; one frame may carry several.
func (c *wsClient) next() string {
	c.t.Helper()
	for len(c.buf) == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		typ, data, err := c.conn.Read(ctx)
		cancel()
		require.NoError(c.t, err)
		require.Equal(c.t, websocket.MessageText, typ)
		for _, l := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
			c.buf = append(c.buf, l)
		}
	}
	line := c.buf[0]
	c.buf = c.buf[1:]
	return line
}

func (c *wsClient) expect(want ...string) {
	c.t.Helper()
	for _, w := range want {
		require.Equal(c.t, w, c.next())
	}
}

func newServer(t *testing.T, a Admitter) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(NewRouter(ctx, a, Options{}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv
}

func TestHealthz(t *testing.T) {
	srv := newServer(t, nil)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocketPlayersPairAndPlay(t *testing.T) {
	l := lobby.New(lobby.Config{
		NameTimeout: time.Second,
		Session:     session.Config{TurnTimeout: 5 * time.Second},
	}, nil, nil)
	srv := newServer(t, l)

	ana := dial(t, srv.URL)
	ana.send("Ana")
	ana.expect("B")

	bruno := dial(t, srv.URL)
	bruno.send("Bruno")
	bruno.expect("W", "NOME_ADVERSARIO Ana")
	ana.expect("NOME_ADVERSARIO Bruno", "COMEÇAR", "SUA_VEZ", "TEMPO 5")
	bruno.expect("COMEÇAR")

	ana.send("JOGADA 2 3")
	ana.expect("JOGADA 2 3 B", "JOGADA_CONFIRMADA")
	bruno.expect("JOGADA 2 3 B", "SUA_VEZ", "TEMPO 5")

	bruno.send("SAIR")
	ana.expect("SAIU")
}

type recordingAdmitter struct {
	got chan net.Conn
}

func (r *recordingAdmitter) Admit(_ context.Context, c net.Conn) error {
	r.got <- c
	return nil
}

func TestConnReportsHTTPPeer(t *testing.T) {
	rec := &recordingAdmitter{got: make(chan net.Conn, 1)}
	srv := newServer(t, rec)
	cl := dial(t, srv.URL)

	var c net.Conn
	select {
	case c = <-rec.got:
	case <-time.After(3 * time.Second):
		t.Fatal("no connection admitted")
	}
	require.Equal(t, "websocket", c.RemoteAddr().Network())
	require.Contains(t, c.RemoteAddr().String(), "127.0.0.1")

	_, err := c.Write([]byte("SUA_VEZ\n"))
	require.NoError(t, err)
	cl.expect("SUA_VEZ")
	require.NoError(t, c.Close())
}

func TestFramesWithoutNewlineAreLines(t *testing.T) {
	l := lobby.New(lobby.Config{
		NameTimeout: time.Second,
		Session:     session.Config{TurnTimeout: 5 * time.Second},
	}, nil, nil)
	srv := newServer(t, l)

	ana := dial(t, srv.URL)
	ana.sendFrame("Ana")
	ana.expect("B")

	bruno := dial(t, srv.URL)
	bruno.sendFrame("Bruno")
	bruno.expect("W", "NOME_ADVERSARIO Ana")
	ana.expect("NOME_ADVERSARIO Bruno", "COMEÇAR", "SUA_VEZ", "TEMPO 5")
	bruno.expect("COMEÇAR")

	ana.sendFrame("JOGADA 2 3")
	ana.expect("JOGADA 2 3 B", "JOGADA_CONFIRMADA")
	bruno.expect("JOGADA 2 3 B", "SUA_VEZ", "TEMPO 5")
}

func TestConnSplitsMessagesIntoLines(t *testing.T) {
	rec := &recordingAdmitter{got: make(chan net.Conn, 1)}
	srv := newServer(t, rec)
	cl := dial(t, srv.URL)

	var c net.Conn
	select {
	case c = <-rec.got:
	case <-time.After(3 * time.Second):
		t.Fatal("no connection admitted")
	}
	defer c.Close()

	cl.sendFrame("Ana")
	cl.sendFrame("")
	cl.sendFrame("JOGADA 2 3\nCHAT oi")
	cl.send("SAIR")

	sc := bufio.NewScanner(c)
	var got []string
	for len(got) < 4 && sc.Scan() {
		got = append(got, sc.Text())
	}
	require.Equal(t, []string{"Ana", "JOGADA 2 3", "CHAT oi", "SAIR"}, got)
}
