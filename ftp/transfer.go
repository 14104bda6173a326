package ftp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/telebroad/ftpengine/storage"
)

// stripListFlags drops leading "-la" style options clients add to LIST.
func stripListFlags(arg string) string {
	arg = strings.TrimSpace(arg)
	for strings.HasPrefix(arg, "-") {
		i := strings.IndexByte(arg, ' ')
		if i < 0 {
			return ""
		}
		arg = strings.TrimSpace(arg[i:])
	}
	return arg
}

// permissionString renders mode as ls does, "drwxr-xr-x".
func permissionString(mode fs.FileMode) string {
	kind := "-"
	if mode.IsDir() {
		kind = "d"
	}
	return kind + mode.Perm().String()[1:]
}

// listLine is one LIST line in ls -l format.
func listLine(e storage.Entry) string {
	return fmt.Sprintf("%s  %2d %s  %s  %8d %s %s",
		permissionString(e.Mode()),
		e.NumLinks(),
		e.Owner(),
		e.Group(),
		e.Size(),
		e.ModTime().Format("Jan 02 15:04"),
		e.Name(),
	)
}

func nameLine(e storage.Entry) string {
	return e.Name()
}

// handleList sends the details of a collection's children, or of a single leaf.
func (s *Session) handleList(arg string) error {
	return s.sendListing(stripListFlags(arg), listLine)
}

// handleNlst sends names only.
func (s *Session) handleNlst(arg string) error {
	return s.sendListing(stripListFlags(arg), nameLine)
}

func (s *Session) sendListing(name string, format func(storage.Entry) string) error {
	entry, err := s.storage.Lookup(name)
	if err != nil {
		return s.replyLookupError(name, err)
	}
	elements := []storage.Entry{entry}
	if c, ok := entry.(storage.Collection); ok {
		if elements, err = c.Elements(); err != nil {
			return s.fail(StatusFileUnavailable, name+": "+err.Error(), err)
		}
	}

	conn, err := s.openTransfer()
	if err != nil || conn == nil {
		return err
	}
	if err := s.reply(StatusFileStatusOK, fmt.Sprintf("Opening %s mode data connection for filelist", s.transferType)); err != nil {
		conn.Close()
		return err
	}

	w := bufio.NewWriter(conn)
	eol := s.transferType.eol()
	for _, e := range elements {
		w.WriteString(format(e))
		w.WriteString(eol)
	}
	if err := closeTransfer(conn, w.Flush()); err != nil {
		return s.fail(StatusFileUnavailable, name+": "+err.Error(), err)
	}
	return s.reply(StatusClosingDataConnection, "Transfer complete")
}

// handleRetr sends a leaf to the client.
func (s *Session) handleRetr(arg string) error {
	entry, err := s.storage.Lookup(arg)
	if err != nil {
		return s.replyLookupError(arg, err)
	}
	if _, ok := entry.(storage.Collection); ok {
		return s.reply(StatusFileUnavailable, arg+": is a directory")
	}

	conn, err := s.openTransfer()
	if err != nil || conn == nil {
		return err
	}
	if err := s.reply(StatusFileStatusOK, fmt.Sprintf("Opening %s mode data connection for %s (%d bytes)", s.transferType, entry.Name(), entry.Size())); err != nil {
		conn.Close()
		return err
	}

	n, err := copyEntry(entry, storage.ReadMode, func(f io.ReadWriter) (int64, error) {
		return io.Copy(conn, f)
	})
	if err := closeTransfer(conn, err); err != nil {
		return s.fail(StatusFileUnavailable, arg+": "+err.Error(), err)
	}
	s.logger.Info("file sent", "file", arg, "bytes", n)
	return s.reply(StatusClosingDataConnection, "Transfer complete")
}

// handleStor receives a leaf from the client, creating it when absent.
func (s *Session) handleStor(arg string) error {
	entry, err := s.storage.Lookup(arg)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if entry, err = s.storage.Create(arg, storage.KindElement); err != nil {
			return s.fail(StatusFileUnavailable, arg+": "+err.Error(), err)
		}
	case err != nil:
		return s.fail(StatusFileUnavailable, arg+": "+err.Error(), err)
	}
	if _, ok := entry.(storage.Collection); ok {
		return s.reply(StatusFileUnavailable, arg+": is a directory")
	}

	conn, err := s.openTransfer()
	if err != nil || conn == nil {
		return err
	}
	if err := s.reply(StatusFileStatusOK, fmt.Sprintf("Opening %s mode data connection for %s", s.transferType, entry.Name())); err != nil {
		conn.Close()
		return err
	}

	n, err := copyEntry(entry, storage.WriteMode, func(f io.ReadWriter) (int64, error) {
		return io.Copy(f, conn)
	})
	if err := closeTransfer(conn, err); err != nil {
		return s.fail(StatusFileUnavailable, arg+": "+err.Error(), err)
	}
	s.logger.Info("file stored", "file", arg, "bytes", n)
	return s.reply(StatusClosingDataConnection, "Transfer complete")
}

// openTransfer accepts the data connection of a transfer. When it fails the
// client already got a 425 and conn is nil.
func (s *Session) openTransfer() (net.Conn, error) {
	conn, err := s.acceptData()
	if errors.Is(err, errNoDataChannel) {
		return nil, s.reply(StatusCantOpenDataConnection, "Cannot open data connection: "+err.Error())
	}
	if err != nil {
		return nil, s.fail(StatusCantOpenDataConnection, "Cannot open data connection: "+err.Error(), err)
	}
	return conn, nil
}

// copyEntry opens entry, runs fn on it and closes it again.
func copyEntry(entry storage.Entry, mode storage.OpenMode, fn func(io.ReadWriter) (int64, error)) (int64, error) {
	f, err := entry.Open(mode)
	if err != nil {
		return 0, err
	}
	n, err := fn(f)
	if cerr := f.Close(); cerr != nil {
		err = appendError(err, cerr)
	}
	return n, err
}

// closeTransfer closes the data connection and joins its error with err.
func closeTransfer(conn net.Conn, err error) error {
	if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		err = appendError(err, cerr)
	}
	return err
}

// appendError joins errors into one that prints on a single line, its text
// ends up in a reply.
func appendError(err, next error) error {
	merr := multierror.Append(err, next)
	merr.ErrorFormat = func(es []error) string {
		texts := make([]string, len(es))
		for i, e := range es {
			texts[i] = e.Error()
		}
		return strings.Join(texts, "; ")
	}
	return merr
}
