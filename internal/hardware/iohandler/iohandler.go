// Package iohandler implements the concrete transports a protocol Kernel
// can inject.
// Each handler satisfies kernel.IOHandler; the kernel never branches on
// which concrete transport it was given.
package iohandler

import (
	"context"
	"net"
	"sync"

	"go.bug.st/serial"

	"github.com/brutella/can"
)

// FrameFunc receives one decoded inbound frame's raw bytes; protocol
// packages pass their own frame parser here and do their own decoding on
// top of the raw payload delivered to Kernel.Receive.
type FrameFunc func(data []byte)

// TCP is a plain TCP client transport.
type TCP struct {
	Addr    string
	OnFrame FrameFunc
	OnError func(error)

	mu   sync.Mutex
	conn net.Conn
	done chan struct{}
}

func (t *TCP) Start(ctx context.Context) error {
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", t.Addr)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.conn = conn
	t.done = make(chan struct{})
	t.mu.Unlock()

	go t.readLoop()
	return nil
}

func (t *TCP) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := t.conn.Read(buf)
		if err != nil {
			if t.OnError != nil {
				select {
				case <-t.done:
				default:
					t.OnError(err)
				}
			}
			return
		}
		if n > 0 && t.OnFrame != nil {
			frame := append([]byte(nil), buf[:n]...)
			t.OnFrame(frame)
		}
	}
}

func (t *TCP) Write(data []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return net.ErrClosed
	}
	_, err := conn.Write(data)
	return err
}

func (t *TCP) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done != nil {
		close(t.done)
	}
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

// UDP is a connectionless UDP transport.
type UDP struct {
	LocalAddr  string
	RemoteAddr string
	OnFrame    FrameFunc
	OnError    func(error)

	mu   sync.Mutex
	conn *net.UDPConn
	done chan struct{}
}

func (u *UDP) Start(ctx context.Context) error {
	local, err := net.ResolveUDPAddr("udp", u.LocalAddr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return err
	}
	u.mu.Lock()
	u.conn = conn
	u.done = make(chan struct{})
	u.mu.Unlock()
	go u.readLoop()
	return nil
}

func (u *UDP) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, _, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			if u.OnError != nil {
				select {
				case <-u.done:
				default:
					u.OnError(err)
				}
			}
			return
		}
		if n > 0 && u.OnFrame != nil {
			frame := append([]byte(nil), buf[:n]...)
			u.OnFrame(frame)
		}
	}
}

func (u *UDP) Write(data []byte) error {
	u.mu.Lock()
	conn := u.conn
	u.mu.Unlock()
	if conn == nil {
		return net.ErrClosed
	}
	remote, err := net.ResolveUDPAddr("udp", u.RemoteAddr)
	if err != nil {
		return err
	}
	_, err = conn.WriteToUDP(data, remote)
	return err
}

func (u *UDP) Stop() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done != nil {
		close(u.done)
	}
	if u.conn != nil {
		return u.conn.Close()
	}
	return nil
}

// Serial is a serial-port transport over go.bug.st/serial.
type Serial struct {
	PortName string
	Mode     *serial.Mode
	OnFrame  FrameFunc
	OnError  func(error)

	mu   sync.Mutex
	port serial.Port
	done chan struct{}
}

func (s *Serial) Start(ctx context.Context) error {
	mode := s.Mode
	if mode == nil {
		mode = &serial.Mode{BaudRate: 115200}
	}
	port, err := serial.Open(s.PortName, mode)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.port = port
	s.done = make(chan struct{})
	s.mu.Unlock()
	go s.readLoop()
	return nil
}

func (s *Serial) readLoop() {
	buf := make([]byte, 256)
	for {
		n, err := s.port.Read(buf)
		if err != nil {
			if s.OnError != nil {
				select {
				case <-s.done:
				default:
					s.OnError(err)
				}
			}
			return
		}
		if n > 0 && s.OnFrame != nil {
			frame := append([]byte(nil), buf[:n]...)
			s.OnFrame(frame)
		}
	}
}

func (s *Serial) Write(data []byte) error {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == nil {
		return net.ErrClosed
	}
	_, err := port.Write(data)
	return err
}

func (s *Serial) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		close(s.done)
	}
	if s.port != nil {
		return s.port.Close()
	}
	return nil
}

// Ports lists the serial ports currently present on the system, backing
// the serial-port OS plumbing for handlers that need to
// validate a configured port name exists.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

// SocketCAN is a Linux SocketCAN transport over github.com/brutella/can.
type SocketCAN struct {
	Interface string
	OnFrame   func(can.Frame)
	OnError   func(error)

	bus  *can.Bus
	done chan struct{}
}

func (c *SocketCAN) Start(ctx context.Context) error {
	bus, err := can.NewBusForInterfaceWithName(c.Interface)
	if err != nil {
		return err
	}
	c.bus = bus
	c.done = make(chan struct{})
	bus.SubscribeFunc(func(frame can.Frame) {
		if c.OnFrame != nil {
			c.OnFrame(frame)
		}
	})
	go func() {
		if err := bus.ConnectAndPublish(); err != nil && c.OnError != nil {
			select {
			case <-c.done:
			default:
				c.OnError(err)
			}
		}
	}()
	return nil
}

func (c *SocketCAN) Write(data []byte) error {
	if c.bus == nil {
		return net.ErrClosed
	}
	var frame can.Frame
	frame.Length = uint8(len(data))
	copy(frame.Data[:], data)
	return c.bus.Publish(frame)
}

func (c *SocketCAN) Stop() error {
	if c.done != nil {
		close(c.done)
	}
	if c.bus != nil {
		return c.bus.Disconnect()
	}
	return nil
}

// Simulation is an in-process loopback transport for "Simulation
// mode": a synthetic peer (the Respond callback) observes every Write and
// may push frames back through OnFrame on the same path a real device's
// replies would take, so simulateInputChange can reuse the live receive()
// code path.
type Simulation struct {
	OnFrame FrameFunc
	Respond func(written []byte, push func([]byte))

	closed chan struct{}
}

func (s *Simulation) Start(ctx context.Context) error {
	s.closed = make(chan struct{})
	return nil
}

func (s *Simulation) Write(data []byte) error {
	if s.Respond != nil {
		s.Respond(data, func(frame []byte) {
			select {
			case <-s.closed:
				return
			default:
			}
			if s.OnFrame != nil {
				s.OnFrame(frame)
			}
		})
	}
	return nil
}

// Push delivers a frame directly, as if received from the wire (used by
// simulateInputChange).
func (s *Simulation) Push(frame []byte) {
	select {
	case <-s.closed:
		return
	default:
	}
	if s.OnFrame != nil {
		s.OnFrame(frame)
	}
}

func (s *Simulation) Stop() error {
	if s.closed != nil {
		close(s.closed)
	}
	return nil
}
