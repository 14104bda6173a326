package ftp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/telebroad/ftpengine/storage"
	"github.com/telebroad/ftpengine/users"
)

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("ftp: server closed")

const (
	DefaultIdleTimeout = 5 * time.Minute
	DefaultDataTimeout = 30 * time.Second
)

type Server struct {
	// Addr is the TCP address of the control channel, ":21" if empty.
	Addr string
	// PublicServerIPv4 is the address sent in PASV replies. When zero the
	// local address of the control connection is used.
	PublicServerIPv4 [4]byte
	// PasvMinPort and PasvMaxPort bound the passive listener ports, zero lets
	// the system pick one.
	PasvMinPort int
	PasvMaxPort int
	// Storage creates the file view of each session.
	Storage storage.Factory
	// Authenticator checks PASS.
	Authenticator users.Authenticator
	// WelcomeMessage is the text of the 220 banner.
	WelcomeMessage string
	// IdleTimeout closes control connections that send nothing for that long.
	// Zero means DefaultIdleTimeout, negative disables it.
	IdleTimeout time.Duration
	// DataTimeout bounds the wait for a data connection and stalls during a
	// transfer. Zero means DefaultDataTimeout, negative disables it.
	DataTimeout time.Duration

	logger *slog.Logger

	mu         sync.Mutex
	listener   net.Listener
	activeConn map[*Session]struct{}
	closed     bool
	wg         sync.WaitGroup
}

// SetLogger sets the logger for the server.
func (s *Server) SetLogger(l *slog.Logger) {
	s.logger = l
}

// Logger returns the logger for the server.
func (s *Server) Logger() *slog.Logger {
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s.logger.With("module", "ftp-server")
}

func (s *Server) idleTimeout() time.Duration {
	if s.IdleTimeout == 0 {
		return DefaultIdleTimeout
	}
	return s.IdleTimeout
}

func (s *Server) dataTimeout() time.Duration {
	if s.DataTimeout == 0 {
		return DefaultDataTimeout
	}
	return s.DataTimeout
}

// advertisedIPv4 is the address put in PASV replies.
func (s *Server) advertisedIPv4(local net.Addr) [4]byte {
	if s.PublicServerIPv4 != [4]byte{} {
		return s.PublicServerIPv4
	}
	var ip [4]byte
	copy(ip[:], localIPv4(local))
	return ip
}

// ListenAndServe listens on Addr and serves control connections until Close.
func (s *Server) ListenAndServe() error {
	addr := s.Addr
	if addr == "" {
		addr = ":21"
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("error starting server: %w", err)
	}
	return s.Serve(listener)
}

// TryListenAndServe tries to start the FTP server if there isn't an error after a certain time it returns nil
func (s *Server) TryListenAndServe(d time.Duration) (err error) {
	errC := make(chan error, 1)

	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, ErrServerClosed) {
			errC <- err
		}
	}()

	select {
	case err = <-errC:
		return err
	case <-time.After(d):
		return nil
	}
}

// Serve accepts control connections on l. It always returns a non-nil error,
// ErrServerClosed after Close.
func (s *Server) Serve(l net.Listener) error {
	if s.Storage == nil || s.Authenticator == nil {
		l.Close()
		return errors.New("ftp: server needs Storage and Authenticator")
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()

	s.Logger().Info("Listening on " + l.Addr().String())
	for {
		conn, err := l.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.Logger().Warn("temporary accept error", "error", err)
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return fmt.Errorf("error accepting connection: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops accepting connections and closes every open session.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	var errs *multierror.Error
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = multierror.Append(errs, err)
		}
	}
	for session := range s.activeConn {
		if err := session.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = multierror.Append(errs, err)
		}
		// wakes a transfer waiting for its data connection
		if err := session.interruptData(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = multierror.Append(errs, err)
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
	return errs.ErrorOrNil()
}

func (s *Server) trackSession(session *Session, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.closed {
			return false
		}
		if s.activeConn == nil {
			s.activeConn = make(map[*Session]struct{})
		}
		s.activeConn[session] = struct{}{}
	} else {
		delete(s.activeConn, session)
	}
	return true
}

func (s *Server) handleConnection(conn net.Conn) {
	st, err := s.Storage()
	if err != nil {
		s.Logger().Error("error creating session storage", "remote_addr", conn.RemoteAddr().String(), "error", err)
		fmt.Fprintf(conn, "421 Service not available\r\n")
		conn.Close()
		return
	}
	session := newSession(s, conn, st)
	if !s.trackSession(session, true) {
		conn.Close()
		return
	}
	defer s.trackSession(session, false)

	defer func() {
		if r := recover(); r != nil {
			session.logger.Error("recovered from panic", "panic", r, "stack", string(debug.Stack()))
		}
		session.onDisconnect()
	}()

	if err := session.onConnect(); err != nil {
		return
	}
	for !session.quit {
		if timeout := s.idleTimeout(); timeout > 0 {
			conn.SetReadDeadline(time.Now().Add(timeout))
		}
		line, err := session.reader.ReadString('\n')
		if err != nil {
			if len(line) > 0 {
				session.onData(line)
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				session.logger.Warn("error reading command", "error", err)
			}
			return
		}
		if err := session.onData(line); err != nil {
			session.logger.Warn("control connection failed", "error", err)
			return
		}
	}
}

// onConnect greets the client.
func (s *Session) onConnect() error {
	s.logger.Info("client connected")
	welcome := s.server.WelcomeMessage
	if welcome == "" {
		welcome = "FTP server ready"
	}
	return s.reply(StatusServiceReadyForNewUser, welcome)
}

// onData runs one command line.
func (s *Session) onData(line string) error {
	return s.dispatch(line)
}

// onDisconnect releases the session.
func (s *Session) onDisconnect() {
	if err := s.close(); err != nil {
		s.logger.Warn("error closing session", "error", err)
	}
	s.logger.Info("client disconnected")
}
