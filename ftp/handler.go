package ftp

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/telebroad/ftpengine/storage"
	"github.com/telebroad/ftpengine/users"
)

// fail replies and hands err to the dispatcher for logging.
func (s *Session) fail(code StatusCode, text string, err error) error {
	if rerr := s.reply(code, text); rerr != nil {
		return rerr
	}
	return err
}

// handleUser handles the USER command from the client.
func (s *Session) handleUser(arg string) error {
	s.setUser(arg)
	return s.reply(StatusUserNameOK, "Password required for "+arg)
}

// handlePass handles the PASS command from the client.
// An AddrAuthenticator also gets the client address.
func (s *Session) handlePass(arg string) error {
	if !s.hasUser {
		return s.reply(StatusNotLoggedIn, "Login with USER first")
	}
	var (
		ok  bool
		err error
	)
	if auth, isAddr := s.server.Authenticator.(users.AddrAuthenticator); isAddr {
		ok, err = auth.AuthenticateAddr(s.user, arg, s.conn.RemoteAddr())
	} else {
		ok, err = s.server.Authenticator.Authenticate(s.user, arg)
	}
	if err != nil {
		s.logout()
		s.logger.Error("authenticator failed", "user", s.user, "error", err)
		return s.reply(StatusFileUnavailable, err.Error())
	}
	if !ok {
		s.logout()
		s.logger.Info("login failed", "user", s.user)
		return s.reply(StatusNotLoggedIn, "Authentication failed for "+s.user)
	}
	s.login()
	s.logger.Info("user logged in")
	return s.reply(StatusUserLoggedIn, "User "+s.user+" logged in")
}

// handleRein logs the user out and drops the data channel. It sends no reply.
func (s *Session) handleRein(string) error {
	s.logout()
	if err := s.closeData(); err != nil {
		s.logger.Warn("error closing passive listener", "error", err)
	}
	return nil
}

// handlePwd handles the PWD command from the client.
func (s *Session) handlePwd(string) error {
	return s.reply(StatusCommandOK, fmt.Sprintf("\"%s\" is current directory", s.storage.Base()))
}

// handleCwd handles the CWD command from the client.
func (s *Session) handleCwd(arg string) error {
	dir, err := s.storage.SetBase(arg)
	if err != nil {
		return s.reply(StatusFileUnavailable, err.Error())
	}
	return s.reply(StatusCommandOK, fmt.Sprintf("\"%s\" is new working directory", dir))
}

func (s *Session) handleFeat(string) error {
	return s.reply(StatusSystemStatus, "Features", MDTM, SIZE)
}

// handleHelp lists the verbs of the command table.
func (s *Session) handleHelp(string) error {
	return s.reply(StatusHelpMessage, "The following commands are recognized", helpLines...)
}

func (s *Session) handleSyst(string) error {
	return s.reply(StatusNameSystemType, "UNIX Type: L8")
}

// handleNoop is used to keep the connection alive.
func (s *Session) handleNoop(string) error {
	return s.reply(StatusCommandOK, "OK")
}

// handlePort records the address of an active mode data connection. The
// server never connects to it, transfers need PASV.
func (s *Session) handlePort(arg string) error {
	parts := strings.Split(strings.TrimSpace(arg), ",")
	if len(parts) != 6 {
		return s.reply(StatusSyntaxErrorInParameters, "Syntax error in parameters or arguments")
	}
	var octets [6]int
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 255 {
			return s.reply(StatusSyntaxErrorInParameters, "Syntax error in parameters or arguments")
		}
		octets[i] = n
	}
	port := octets[4]*256 + octets[5]
	s.activeAddr = fmt.Sprintf("%d.%d.%d.%d:%d", octets[0], octets[1], octets[2], octets[3], port)
	s.logger.Debug("active mode address recorded", "addr", s.activeAddr)
	return s.reply(StatusCommandOK, "PORT command successful")
}

// handleOpts accepts any "option value" pair.
func (s *Session) handleOpts(arg string) error {
	fields := strings.Fields(arg)
	if len(fields) < 2 {
		return s.reply(StatusSyntaxErrorInParameters, "OPTS: Invalid number of arguments")
	}
	return s.reply(StatusCommandOK, fmt.Sprintf("Option %s set to %s", fields[0], fields[1]))
}

// handlePasv opens the passive listener, or reuses the open one.
func (s *Session) handlePasv(string) error {
	port, err := s.openPassive()
	if err != nil {
		s.logger.Error("error opening passive listener", "error", err)
		return s.reply(StatusCantOpenDataConnection, "Cannot open passive connection "+err.Error())
	}
	ip := s.server.advertisedIPv4(s.conn.LocalAddr())
	return s.reply(StatusEnteringPassiveMode, fmt.Sprintf("Entering passive mode (%s)", pasvAddress(ip, port)))
}

// handleType handles the TYPE command, A is ASCII and I is binary.
func (s *Session) handleType(arg string) error {
	switch arg {
	case "A":
		s.setTransferType(TypeASCII)
	case "I":
		s.setTransferType(TypeBinary)
	default:
		return s.reply(StatusFileUnavailable, fmt.Sprintf("Unknown type \"%s\"", arg))
	}
	return s.reply(StatusCommandOK, "Type set to "+arg)
}

// handleQuit says goodbye, the server closes the connection afterwards.
func (s *Session) handleQuit(string) error {
	s.quit = true
	return s.reply(StatusServiceClosingControlConnection, "Goodbye")
}

// handleMdtm reports the modification time in UTC.
func (s *Session) handleMdtm(arg string) error {
	entry, err := s.storage.Lookup(arg)
	if err != nil {
		return s.replyLookupError(arg, err)
	}
	return s.reply(StatusFileStatus, entry.ModTime().UTC().Format("20060102150405"))
}

// handleSize reports the size of a leaf in bytes.
func (s *Session) handleSize(arg string) error {
	entry, err := s.storage.Lookup(arg)
	if err != nil {
		return s.replyLookupError(arg, err)
	}
	if _, ok := entry.(storage.Collection); ok {
		return s.reply(StatusFileUnavailable, arg+": is a directory")
	}
	return s.reply(StatusFileStatus, strconv.FormatInt(entry.Size(), 10))
}

// handleMkd creates a collection.
func (s *Session) handleMkd(arg string) error {
	_, err := s.storage.Lookup(arg)
	if err == nil {
		return s.reply(StatusFileUnavailable, arg+": already exists")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return s.fail(StatusFileUnavailable, arg+": "+err.Error(), err)
	}
	if _, err := s.storage.Create(arg, storage.KindCollection); err != nil {
		return s.fail(StatusFileUnavailable, arg+": "+err.Error(), err)
	}
	return s.reply(StatusPathnameCreated, arg+": successfully created")
}

// handleRmd deletes an entry.
func (s *Session) handleRmd(arg string) error {
	entry, err := s.storage.Lookup(arg)
	if err != nil {
		return s.reply(StatusFileUnavailable, arg+": no such file or directory")
	}
	if err := entry.Delete(); err != nil {
		return s.fail(StatusFileUnavailable, arg+": "+err.Error(), err)
	}
	return s.reply(StatusFileActionOK, arg+": successfully deleted")
}

// replyLookupError answers a failed Lookup.
func (s *Session) replyLookupError(name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return s.reply(StatusFileUnavailable, name+": No such file or directory")
	}
	return s.fail(StatusFileUnavailable, name+": "+err.Error(), err)
}
