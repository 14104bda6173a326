package tools

import (
	"io"
	"log/slog"
)

// LogWriter is a wrapper around an io.Writer that logs every write to a slog.Logger.
type LogWriter struct {
	Writer io.Writer
	logger *slog.Logger
}

func (rw *LogWriter) Write(b []byte) (int, error) {
	if rw.logger != nil {
		rw.logger.Debug("Respond", "body", Escape(b))
	}
	return rw.Writer.Write(b)
}

// NewLogWriter creates a new LogWriter.
func NewLogWriter(w io.Writer, logger *slog.Logger) *LogWriter {
	return &LogWriter{Writer: w, logger: logger}
}

// LogReader is a wrapper around an io.Reader that logs all reads to a slog.Logger.
type LogReader struct {
	Reader io.Reader
	logger *slog.Logger
}

func (rw *LogReader) Read(b []byte) (int, error) {
	n, err := rw.Reader.Read(b)
	if rw.logger != nil && n > 0 { // Log only if n > 0 to avoid logging empty reads
		rw.logger.Debug("Request", "bytes", n)
	}
	return n, err
}

// NewLogReader creates a new LogReader. Only the size of each read is logged,
// the payload may carry file contents or credentials.
func NewLogReader(r io.Reader, logger *slog.Logger) *LogReader {
	return &LogReader{Reader: r, logger: logger}
}
