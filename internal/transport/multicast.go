// Package transport provides the UDP multicast receive and send sockets
// used by both pipelines. The handlers only see the Receiver and Sender
// interfaces; tests substitute in-memory fakes.
package transport

import (
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"
)

// ErrTimeout is returned by ReadPacket when the poll window elapses with
// no data. It is the run loop's normal idle path, not a failure.
var ErrTimeout = errors.New("transport: read timeout")

// Receiver reads one datagram per call with a bounded wait.
type Receiver interface {
	ReadPacket(buf []byte, timeout time.Duration) (int, error)
	Close() error
}

// Sender writes one datagram per call.
type Sender interface {
	Send(b []byte) error
	Close() error
}

// MulticastReceiver joins a group and reads datagrams with a deadline.
type MulticastReceiver struct {
	conn  net.PacketConn
	pconn *ipv4.PacketConn
	group net.IP
}

// NewReceiver binds the port, joins the group on the interface holding
// ifaceAddr ("0.0.0.0" lets the kernel choose), and sets the receive
// buffer.
func NewReceiver(group string, port int, ifaceAddr string, bufferSize int) (*MulticastReceiver, error) {
	gip := net.ParseIP(group)
	if gip == nil || !gip.IsMulticast() {
		return nil, fmt.Errorf("transport: invalid multicast group %q", group)
	}

	conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("transport: bind port %d: %w", port, err)
	}

	pconn := ipv4.NewPacketConn(conn)
	ifi, err := interfaceForAddr(ifaceAddr)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := pconn.JoinGroup(ifi, &net.UDPAddr{IP: gip}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: join group %s: %w", group, err)
	}
	if bufferSize > 0 {
		if uc, ok := conn.(*net.UDPConn); ok {
			uc.SetReadBuffer(bufferSize)
		}
	}
	return &MulticastReceiver{conn: conn, pconn: pconn, group: gip}, nil
}

// ReadPacket reads one datagram, waiting at most timeout.
func (r *MulticastReceiver) ReadPacket(buf []byte, timeout time.Duration) (int, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}
	n, _, err := r.conn.ReadFrom(buf)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return 0, ErrTimeout
		}
		return 0, err
	}
	return n, nil
}

// Close leaves the group and closes the socket.
func (r *MulticastReceiver) Close() error {
	if r.pconn != nil {
		r.pconn.LeaveGroup(nil, &net.UDPAddr{IP: r.group})
	}
	return r.conn.Close()
}

// MulticastSender writes datagrams to a group.
type MulticastSender struct {
	conn  *net.UDPConn
	pconn *ipv4.PacketConn
}

// NewSender dials the group and applies TTL and the outbound interface.
func NewSender(group string, port int, ifaceAddr string, ttl int) (*MulticastSender, error) {
	gip := net.ParseIP(group)
	if gip == nil || !gip.IsMulticast() {
		return nil, fmt.Errorf("transport: invalid multicast group %q", group)
	}

	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: gip, Port: port})
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s:%d: %w", group, port, err)
	}

	pconn := ipv4.NewPacketConn(conn)
	if ttl > 0 {
		if err := pconn.SetMulticastTTL(ttl); err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: set ttl: %w", err)
		}
	}
	if ifi, err := interfaceForAddr(ifaceAddr); err == nil && ifi != nil {
		pconn.SetMulticastInterface(ifi)
	}
	return &MulticastSender{conn: conn, pconn: pconn}, nil
}

// Send writes one datagram.
func (s *MulticastSender) Send(b []byte) error {
	_, err := s.conn.Write(b)
	return err
}

func (s *MulticastSender) Close() error {
	return s.conn.Close()
}

// interfaceForAddr resolves the interface holding addr; the zero address
// returns nil so the kernel chooses.
func interfaceForAddr(addr string) (*net.Interface, error) {
	if addr == "" || addr == "0.0.0.0" {
		return nil, nil
	}
	want := net.ParseIP(addr)
	if want == nil {
		return nil, fmt.Errorf("transport: invalid interface address %q", addr)
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("transport: list interfaces: %w", err)
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipn, ok := a.(*net.IPNet); ok && ipn.IP.Equal(want) {
				return &ifaces[i], nil
			}
		}
	}
	return nil, fmt.Errorf("transport: no interface holds %s", addr)
}
