package server

import (
	"bufio"
	"net"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/traintastic/traintastic-go/internal/errs"
	"github.com/traintastic/traintastic-go/internal/session"
	"github.com/traintastic/traintastic-go/internal/wire"
)

// frameConn abstracts one client transport: raw TCP carries frames as a
// length-prefixed byte stream, WebSocket carries one frame per binary
// message. Both speak the identical 12-byte-header protocol.
type frameConn interface {
	ReadFrame() (wire.Header, []byte, error)
	WriteFrame(frame []byte) error
	Close() error
	RemoteAddr() string
}

type tcpFrameConn struct {
	c  net.Conn
	br *bufio.Reader
}

func (t *tcpFrameConn) ReadFrame() (wire.Header, []byte, error) {
	return wire.ReadFrame(t.br)
}

func (t *tcpFrameConn) WriteFrame(frame []byte) error {
	_, err := t.c.Write(frame)
	return err
}

func (t *tcpFrameConn) Close() error       { return t.c.Close() }
func (t *tcpFrameConn) RemoteAddr() string { return t.c.RemoteAddr().String() }

type wsFrameConn struct {
	c *websocket.Conn
}

func (w *wsFrameConn) ReadFrame() (wire.Header, []byte, error) {
	for {
		mt, data, err := w.c.ReadMessage()
		if err != nil {
			return wire.Header{}, nil, err
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		h, err := wire.DecodeHeader(data)
		if err != nil {
			return wire.Header{}, nil, err
		}
		if int(h.DataSize)+wire.HeaderSize != len(data) {
			return wire.Header{}, nil, errs.New(errs.InvalidCommand, "frame size mismatch: header says %d, message has %d", h.DataSize, len(data)-wire.HeaderSize)
		}
		return h, data[wire.HeaderSize:], nil
	}
}

func (w *wsFrameConn) WriteFrame(frame []byte) error {
	return w.c.WriteMessage(websocket.BinaryMessage, frame)
}

func (w *wsFrameConn) Close() error       { return w.c.Close() }
func (w *wsFrameConn) RemoteAddr() string { return w.c.RemoteAddr().String() }

// writeQueueDepth bounds each connection's outbound FIFO. When the client
// cannot drain fast enough the oldest frame is dropped and a warning is
// logged, so one stalled client never blocks the event loop.
const writeQueueDepth = 256

// connection owns one client socket: a read pump that posts request
// dispatch onto the event loop, and a strictly ordered write queue drained
// by a single writer goroutine.
type connection struct {
	srv  *Server
	fc   frameConn
	sess *session.Session

	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newConnection(srv *Server, fc frameConn) *connection {
	c := &connection{
		srv:    srv,
		fc:     fc,
		out:    make(chan []byte, writeQueueDepth),
		closed: make(chan struct{}),
	}
	c.sess = session.New(srv.root, srv.logger, c.enqueue)
	srv.addConn(c)
	go c.writePump()
	go c.readPump()
	return c
}

// enqueue appends a pre-encoded frame to the write queue. Called from the
// event loop; never blocks. On overflow the oldest queued frame is dropped
// so the queue keeps moving.
func (c *connection) enqueue(frame []byte) {
	select {
	case c.out <- frame:
		return
	default:
	}
	select {
	case <-c.out:
		c.srv.logger.Log("", msgWriteQueueDrop, c.fc.RemoteAddr())
	default:
	}
	select {
	case c.out <- frame:
	default:
	}
}

func (c *connection) readPump() {
	for {
		h, payload, err := c.fc.ReadFrame()
		if err != nil {
			c.close()
			return
		}
		c.srv.loop.Post(func() { c.sess.Dispatch(h, payload) })
	}
}

func (c *connection) writePump() {
	for {
		select {
		case frame := <-c.out:
			if err := c.fc.WriteFrame(frame); err != nil {
				c.close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *connection) close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.fc.Close()
		c.srv.loop.Post(func() { c.sess.Close() })
		c.srv.removeConn(c)
	})
}
