package server

import (
	"bufio"
	_ "embed"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/traintastic/traintastic-go/internal/version"
)

//go:embed assets/index.html
var indexHTML []byte

//go:embed assets/throttle.html
var throttleHTML []byte

//go:embed assets/favicon.ico
var faviconICO []byte

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The desktop client and the web throttle connect from arbitrary
	// origins on the local network.
	CheckOrigin: func(*http.Request) bool { return true },
}

// serveHTTP handles a connection whose first bytes look like an HTTP
// request line: the tiny index, /version, the embedded icon, the web
// throttle page, and the /client and /throttle WebSocket upgrade paths
// that switch to the same framed protocol as raw TCP.
func (s *Server) serveHTTP(conn net.Conn, br *bufio.Reader) {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(indexHTML)
	})

	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(version.String()))
	})

	mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/x-icon")
		_, _ = w.Write(faviconICO)
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/client", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		newConnection(s, &wsFrameConn{c: ws})
	})

	mux.HandleFunc("/throttle", func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			ws, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			newConnection(s, &wsFrameConn{c: ws})
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(throttleHTML)
	})

	srv := &http.Server{Handler: mux}
	_ = srv.Serve(newSingleConnListener(bufferedConn{Conn: conn, br: br}))
}

// bufferedConn replays the sniffed bytes before reading from the socket.
type bufferedConn struct {
	net.Conn
	br *bufio.Reader
}

func (b bufferedConn) Read(p []byte) (int, error) { return b.br.Read(p) }

// singleConnListener feeds exactly one already-accepted connection to
// http.Serve. The second Accept fails immediately so Serve returns while
// the connection's own serve goroutine keeps handling keep-alive requests
// until the socket closes.
type singleConnListener struct {
	conn net.Conn
	mu   sync.Mutex
	used bool
}

func newSingleConnListener(c net.Conn) *singleConnListener {
	return &singleConnListener{conn: c}
}

func (l *singleConnListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.used {
		return nil, net.ErrClosed
	}
	l.used = true
	return l.conn, nil
}

func (l *singleConnListener) Close() error { return nil }

func (l *singleConnListener) Addr() net.Addr { return l.conn.LocalAddr() }
