package ftp

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/telebroad/ftpengine/storage"
	"github.com/telebroad/ftpengine/tools"
)

// TransferType is the representation type set by TYPE.
type TransferType int

const (
	TypeASCII TransferType = iota
	TypeBinary
)

func (t TransferType) String() string {
	if t == TypeBinary {
		return "BINARY"
	}
	return "ASCII"
}

// eol is the line ending used for listings.
func (t TransferType) eol() string {
	if t == TypeBinary {
		return "\n"
	}
	return "\r\n"
}

// Session represents an individual client FTP session.
// It is owned by the goroutine serving its control connection.
type Session struct {
	server  *Server
	id      string
	conn    net.Conn
	reader  *bufio.Reader
	writer  io.Writer
	logger  *slog.Logger
	storage storage.Storage

	user          string // name sent by USER
	hasUser       bool
	authenticated bool
	transferType  TransferType
	dataMu        sync.Mutex // guards data, Server.Close reaches it too
	data          *dataChannel
	activeAddr    string // last PORT address, recorded only

	replies  int   // replies sent for the current command
	writeErr error // first failed control write
	quit     bool
}

func newSession(srv *Server, conn net.Conn, st storage.Storage) *Session {
	id := conn.RemoteAddr().String()
	logger := srv.Logger().With("session_id", id, "remote_addr", conn.RemoteAddr().String())
	return &Session{
		server:  srv,
		id:      id,
		conn:    conn,
		reader:  bufio.NewReader(tools.NewLogReader(conn, logger)),
		writer:  tools.NewLogWriter(conn, logger),
		logger:  logger,
		storage: st,
	}
}

// setUser starts a new login, the previous one is dropped.
func (s *Session) setUser(name string) {
	s.user = name
	s.hasUser = true
	s.authenticated = false
}

func (s *Session) login() {
	s.authenticated = true
	s.logger = s.logger.With("user", s.user)
}

func (s *Session) logout() {
	s.authenticated = false
}

func (s *Session) setTransferType(t TransferType) {
	s.transferType = t
}

// openPassive returns the port of the passive listener, creating it on first use.
func (s *Session) openPassive() (int, error) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	if s.data != nil {
		if n := s.data.drain(); n > 0 {
			s.logger.Debug("dropped stale data connections", "count", n)
		}
		return s.data.port, nil
	}
	d, err := newDataChannel(localIPv4(s.conn.LocalAddr()), s.server.PasvMinPort, s.server.PasvMaxPort, s.server.dataTimeout())
	if err != nil {
		return 0, err
	}
	s.data = d
	s.logger.Debug("passive listener opened", "port", d.port)
	return d.port, nil
}

// acceptData waits for the data connection of the next transfer.
func (s *Session) acceptData() (net.Conn, error) {
	s.dataMu.Lock()
	d := s.data
	s.dataMu.Unlock()
	if d == nil {
		return nil, errNoDataChannel
	}
	return d.accept()
}

// closeData drops the passive listener.
func (s *Session) closeData() error {
	s.dataMu.Lock()
	d := s.data
	s.data = nil
	s.dataMu.Unlock()
	if d == nil {
		return nil
	}
	return d.close()
}

// interruptData closes the passive listener from another goroutine, a
// pending accept returns at once. The session still drops it in close.
func (s *Session) interruptData() error {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	if s.data == nil {
		return nil
	}
	return s.data.close()
}

// close releases everything the session holds.
func (s *Session) close() error {
	var errs *multierror.Error
	if err := s.closeData(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = multierror.Append(errs, err)
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}
