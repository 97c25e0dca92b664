package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"nhooyr.io/websocket"

	"github.com/park285/reversi-server/internal/msgcat"
	"github.com/park285/reversi-server/internal/protocol"
)

// reversi-check connects as one player, prints every server line for a
// short window and optionally dumps the admin /stats document.
func main() {
	addr := envOr("REVERSI_CHECK_ADDR", "127.0.0.1:2025")
	wsURL := os.Getenv("REVERSI_CHECK_WS_URL")
	adminURL := os.Getenv("REVERSI_CHECK_ADMIN_URL")
	name := envOr("REVERSI_CHECK_NAME", "Verificador")
	window := 10 * time.Second
	if v := os.Getenv("REVERSI_CHECK_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			window = d
		}
	}

	cat := msgcat.Default()

	if adminURL != "" {
		status, body, err := fasthttp.GetTimeout(nil, strings.TrimRight(adminURL, "/")+"/stats", 5*time.Second)
		if err != nil {
			log.Printf("/stats error: %v", err)
		} else {
			log.Printf("/stats %d: %s", status, body)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), window)
	defer cancel()

	conn, where, err := dial(ctx, addr, wsURL)
	if err != nil {
		log.Fatalf("connect error: %v", err)
	}
	defer conn.Close()
	fmt.Println(cat.RenderOr(msgcat.KeyCheckConnect, map[string]any{"Addr": where, "Name": name}, where))

	if _, err := io.WriteString(conn, name+"\n"); err != nil {
		log.Fatalf("write error: %v", err)
	}
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				fmt.Println(cat.RenderOr(msgcat.KeyCheckClosed, nil, "closed"))
				return
			}
			fmt.Println(cat.RenderOr(msgcat.KeyCheckReceived, map[string]any{"Line": line}, line))
		case <-ctx.Done():
			_ = protocol.WriteLine(conn, protocol.Quit())
			fmt.Println(cat.RenderOr(msgcat.KeyCheckSent, map[string]any{"Line": protocol.Encode(protocol.Quit())}, "SAIR"))
			return
		}
	}
}

func dial(ctx context.Context, addr, wsURL string) (net.Conn, string, error) {
	if wsURL != "" {
		c, _, err := websocket.Dial(ctx, wsURL, nil)
		if err != nil {
			return nil, "", err
		}
		return websocket.NetConn(context.Background(), c, websocket.MessageText), wsURL, nil
	}
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, "", err
	}
	return c, addr, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
