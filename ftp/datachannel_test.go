package ftp

import (
	"errors"
	"io"
	"net"
	"strconv"
	"testing"
	"time"
)

func TestFindAvailablePortInRange(t *testing.T) {
	busy, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	if _, _, err := findAvailablePortInRange(nil, port, port); err == nil {
		t.Fatal("listened on a busy port")
	}

	l, got, err := findAvailablePortInRange(nil, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if got == 0 {
		t.Error("system port is zero")
	}
}

func TestDataChannel_Accept(t *testing.T) {
	d, err := newDataChannel(nil, 0, 0, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer d.close()

	client, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(d.port)))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	conn, err := d.accept()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := conn.(*deadlineConn); !ok {
		t.Errorf("accepted %T, want *deadlineConn", conn)
	}
	go func() {
		conn.Write([]byte("listing"))
		conn.Close()
	}()
	b, err := io.ReadAll(client)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "listing" {
		t.Errorf("read %q", b)
	}
}

func TestDataChannel_AcceptTimeout(t *testing.T) {
	d, err := newDataChannel(nil, 0, 0, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer d.close()

	if _, err := d.accept(); !errors.Is(err, ErrDataChannel) {
		t.Fatalf("accept error = %v, want ErrDataChannel", err)
	}

	// the listener is still usable after a timeout
	client, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(d.port)))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	conn, err := d.accept()
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()
}

func TestDeadlineConn_IdleTimeout(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	conn := &deadlineConn{Conn: server, timeout: 30 * time.Millisecond}

	_, err := conn.Read(make([]byte, 1))
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Errorf("Read error = %v, want a timeout", err)
	}
}

func TestDataChannel_Drain(t *testing.T) {
	d, err := newDataChannel(nil, 0, 0, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer d.close()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(d.port))
	stale, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer stale.Close()

	var dropped int
	deadline := time.Now().Add(time.Second)
	for dropped == 0 && time.Now().Before(deadline) {
		dropped = d.drain()
	}
	if dropped != 1 {
		t.Fatalf("drain dropped %d connections, want 1", dropped)
	}

	// the stale connection was closed by the server
	stale.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := stale.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Errorf("read on drained connection = %v, want EOF", err)
	}
}

func TestDataChannel_DrainWithoutTimeout(t *testing.T) {
	d, err := newDataChannel(nil, 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer d.close()

	// nothing waits, drain only leaves its deadline behind
	d.drain()

	client, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(d.port)))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	conn, err := d.accept()
	if err != nil {
		t.Fatalf("accept after drain: %v", err)
	}
	if _, ok := conn.(*deadlineConn); ok {
		t.Error("connection has a deadline with timeouts disabled")
	}
	conn.Close()
}

func TestNewDataChannel_BindsControlAddress(t *testing.T) {
	local := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 21}
	d, err := newDataChannel(localIPv4(local), 0, 0, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer d.close()
	if ip := d.listener.Addr().(*net.TCPAddr).IP; !ip.Equal(net.IPv4(127, 0, 0, 1)) {
		t.Errorf("listener bound to %s, want 127.0.0.1", ip)
	}

	if ip := localIPv4(&net.TCPAddr{IP: net.IPv6loopback}); ip != nil {
		t.Errorf("localIPv4 of an IPv6 address = %s, want nil", ip)
	}
}
