package ftp

import (
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"unicode"
)

// command is an entry of the verb table.
type command struct {
	handler func(s *Session, arg string) error
	// public commands run before login
	public bool
}

// commands is the verb table, filled in init because HELP lists it.
var commands map[Command]command

// helpLines is the HELP listing, eight verbs per line.
var helpLines []string

func init() {
	commands = map[Command]command{
		USER: {(*Session).handleUser, true},
		PASS: {(*Session).handlePass, true},
		HELP: {(*Session).handleHelp, true},
		QUIT: {(*Session).handleQuit, true},
		REIN: {handler: (*Session).handleRein},
		PWD:  {handler: (*Session).handlePwd},
		CWD:  {handler: (*Session).handleCwd},
		FEAT: {handler: (*Session).handleFeat},
		SYST: {handler: (*Session).handleSyst},
		NOOP: {handler: (*Session).handleNoop},
		PORT: {handler: (*Session).handlePort},
		OPTS: {handler: (*Session).handleOpts},
		PASV: {handler: (*Session).handlePasv},
		TYPE: {handler: (*Session).handleType},
		LIST: {handler: (*Session).handleList},
		NLST: {handler: (*Session).handleNlst},
		MDTM: {handler: (*Session).handleMdtm},
		SIZE: {handler: (*Session).handleSize},
		MKD:  {handler: (*Session).handleMkd},
		RMD:  {handler: (*Session).handleRmd},
		RETR: {handler: (*Session).handleRetr},
		STOR: {handler: (*Session).handleStor},
	}

	verbs := make([]string, 0, len(commands))
	for verb := range commands {
		verbs = append(verbs, verb)
	}
	sort.Strings(verbs)
	for i := 0; i < len(verbs); i += 8 {
		var b strings.Builder
		for _, verb := range verbs[i:min(i+8, len(verbs))] {
			fmt.Fprintf(&b, "%-8s", verb)
		}
		helpLines = append(helpLines, b.String())
	}
}

// parseCommand splits a line into the verb and the raw remainder.
func parseCommand(line string) (verb, arg string) {
	line = strings.TrimLeftFunc(strings.TrimRight(line, "\r\n"), unicode.IsSpace)
	i := strings.IndexFunc(line, unicode.IsSpace)
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimLeftFunc(line[i:], unicode.IsSpace)
}

// dispatch runs one command line. Handler failures are logged and never end
// the session, only a failed control write does.
func (s *Session) dispatch(line string) error {
	verb, arg := parseCommand(line)
	if verb == "" {
		return nil
	}
	name := strings.ToUpper(verb)
	if name == PASS {
		s.logger.Debug("command", "verb", name, "arg", "****")
	} else {
		s.logger.Debug("command", "verb", name, "arg", arg)
	}

	s.replies = 0
	defer func() { s.replies = 0 }()

	cmd, ok := commands[name]
	if !ok {
		s.reply(StatusFileUnavailable, verb+" not understood")
		return s.writeErr
	}
	if !s.authenticated && !cmd.public {
		s.reply(StatusNotLoggedIn, "Please log in first")
		return s.writeErr
	}

	if err := s.run(cmd, name, arg); err != nil {
		if s.writeErr != nil {
			return s.writeErr
		}
		s.logger.Error("command failed", "verb", name, "error", err)
		if s.replies == 0 {
			s.reply(StatusLocalProcessingError, "Requested action aborted: local error in processing")
		}
	}
	return s.writeErr
}

// run calls the handler and turns a panic into an error.
func (s *Session) run(cmd command, name, arg string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recovered from panic", "verb", name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic in %s: %v", name, r)
		}
	}()
	return cmd.handler(s, arg)
}
