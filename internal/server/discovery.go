package server

import (
	"net"
	"os"

	"github.com/traintastic/traintastic-go/internal/log"
	"github.com/traintastic/traintastic-go/internal/version"
	"github.com/traintastic/traintastic-go/internal/wire"
)

// discoveryResponder answers single-datagram Discover requests on the
// well-known UDP port: the host name, length-prefixed,
// followed by the three version integers. The response always fits a
// single IPv4 datagram since host names are capped well below an MTU.
type discoveryResponder struct {
	pc     *net.UDPConn
	logger *log.Registry
}

func newDiscoveryResponder(port int, logger *log.Registry) (*discoveryResponder, error) {
	pc, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, err
	}
	return &discoveryResponder{pc: pc, logger: logger}, nil
}

func (d *discoveryResponder) run() {
	buf := make([]byte, 1500)
	for {
		n, addr, err := d.pc.ReadFromUDP(buf)
		if err != nil {
			return
		}
		h, err := wire.DecodeHeader(buf[:n])
		if err != nil || h.Command != wire.CommandDiscover || h.Type != wire.Request {
			continue
		}
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "traintastic"
		}
		w := wire.NewWriter()
		w.WriteString(hostname)
		w.WriteUint16(version.Major)
		w.WriteUint16(version.Minor)
		w.WriteUint16(version.Patch)
		_, _ = d.pc.WriteToUDP(wire.EncodeFrame(wire.CommandDiscover, wire.Response, h.RequestID, w.Bytes()), addr)
	}
}

func (d *discoveryResponder) stop() {
	_ = d.pc.Close()
}
