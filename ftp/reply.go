package ftp

import (
	"bytes"
	"fmt"
)

// formatReply renders a reply. Without lines it is a single
// "code text" line, otherwise a multi-line block closed by "code End".
func formatReply(code StatusCode, text string, lines ...string) []byte {
	var b bytes.Buffer
	if len(lines) == 0 {
		fmt.Fprintf(&b, "%d %s\r\n", code, text)
		return b.Bytes()
	}
	fmt.Fprintf(&b, "%d-%s:\r\n", code, text)
	for _, line := range lines {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	fmt.Fprintf(&b, "%d End\r\n", code)
	return b.Bytes()
}

// reply writes a reply to the control connection. A failed write is kept on
// the session and ends it once the current command returns.
func (s *Session) reply(code StatusCode, text string, lines ...string) error {
	s.replies++
	if s.writeErr != nil {
		return s.writeErr
	}
	if _, err := s.writer.Write(formatReply(code, text, lines...)); err != nil {
		s.writeErr = fmt.Errorf("error writing reply %d: %w", code, err)
		return s.writeErr
	}
	return nil
}
