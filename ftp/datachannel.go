package ftp

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrDataChannel is returned when the passive data channel cannot be opened
// or no data connection arrives.
var ErrDataChannel = errors.New("data channel error")

const drainWindow = 5 * time.Millisecond

var errNoDataChannel = errors.New("no passive data channel, send PASV first")

// dataChannel is the passive listener of a session. It lives from the first
// PASV until the session ends and accepts one connection per transfer.
type dataChannel struct {
	listener *net.TCPListener
	port     int
	timeout  time.Duration
}

// findAvailablePortInRange finds an available port in the given range on ip.
// It returns a listener on the available port and the port number.
// A zero start lets the system pick the port, a nil ip binds every interface.
func findAvailablePortInRange(ip net.IP, start, end int) (*net.TCPListener, int, error) {
	if start <= 0 {
		start, end = 0, 0
	}
	if end < start {
		end = start
	}
	var lastErr error
	for port := start; port <= end; port++ {
		listener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: ip, Port: port})
		if err != nil {
			lastErr = err
			continue
		}
		return listener, listener.Addr().(*net.TCPAddr).Port, nil
	}
	return nil, 0, fmt.Errorf("no available ports found in range %d-%d: %w", start, end, lastErr)
}

func newDataChannel(ip net.IP, start, end int, timeout time.Duration) (*dataChannel, error) {
	listener, port, err := findAvailablePortInRange(ip, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataChannel, err)
	}
	return &dataChannel{listener: listener, port: port, timeout: timeout}, nil
}

// localIPv4 is the IPv4 address a connection arrived on, nil for IPv6.
func localIPv4(local net.Addr) net.IP {
	if tcp, ok := local.(*net.TCPAddr); ok {
		return tcp.IP.To4()
	}
	return nil
}

// accept waits for the client to open the data connection.
func (d *dataChannel) accept() (net.Conn, error) {
	var deadline time.Time
	if d.timeout > 0 {
		deadline = time.Now().Add(d.timeout)
	}
	if err := d.listener.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataChannel, err)
	}
	conn, err := d.listener.Accept()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataChannel, err)
	}
	if d.timeout <= 0 {
		return conn, nil
	}
	return &deadlineConn{Conn: conn, timeout: d.timeout}, nil
}

// drain closes connections that are already waiting on the listener. They
// belong to transfers that were refused before the accept. The listener is
// left without a deadline.
func (d *dataChannel) drain() int {
	n := 0
	defer d.listener.SetDeadline(time.Time{})
	for {
		if err := d.listener.SetDeadline(time.Now().Add(drainWindow)); err != nil {
			return n
		}
		conn, err := d.listener.Accept()
		if err != nil {
			return n
		}
		conn.Close()
		n++
	}
}

func (d *dataChannel) close() error {
	return d.listener.Close()
}

// pasvAddress encodes ip and port the way a 227 reply carries them.
func pasvAddress(ip [4]byte, port int) string {
	return fmt.Sprintf("%d,%d,%d,%d,%d,%d", ip[0], ip[1], ip[2], ip[3], port>>8, port&0xFF)
}

// deadlineConn pushes the deadline forward on every read and write, a
// transfer only fails when the peer stalls for the whole timeout.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if err := c.Conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}
