package ftp

import (
	"io/fs"
	"strings"
	"testing"
)

func TestFormatReply(t *testing.T) {
	tests := []struct {
		name  string
		code  StatusCode
		text  string
		lines []string
		want  string
	}{
		{"single", 200, "OK", nil, "200 OK\r\n"},
		{"multi", 211, "Features", []string{"MDTM", "SIZE"}, "211-Features:\r\n  MDTM\r\n  SIZE\r\n211 End\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(formatReply(tt.code, tt.text, tt.lines...)); got != tt.want {
				t.Errorf("formatReply() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		verb string
		arg  string
	}{
		{"NOOP\r\n", "NOOP", ""},
		{"retr a file.txt\r\n", "retr", "a file.txt"},
		{"CWD    /tmp\n", "CWD", "/tmp"},
		{"  PWD\r\n", "PWD", ""},
		{"\r\n", "", ""},
	}
	for _, tt := range tests {
		verb, arg := parseCommand(tt.line)
		if verb != tt.verb || arg != tt.arg {
			t.Errorf("parseCommand(%q) = %q, %q, want %q, %q", tt.line, verb, arg, tt.verb, tt.arg)
		}
	}
}

func TestPasvAddress(t *testing.T) {
	got := pasvAddress([4]byte{10, 0, 0, 7}, 50021)
	if want := "10,0,0,7,195,101"; got != want {
		t.Errorf("pasvAddress() = %q, want %q", got, want)
	}
}

func TestPermissionString(t *testing.T) {
	if got := permissionString(fs.ModeDir | 0o755); got != "drwxr-xr-x" {
		t.Errorf("dir = %q", got)
	}
	if got := permissionString(0o640); got != "-rw-r-----" {
		t.Errorf("file = %q", got)
	}
}

func TestStripListFlags(t *testing.T) {
	tests := map[string]string{
		"":              "",
		"-la":           "",
		"-a -l dir":     "dir",
		"dir":           "dir",
		"my dir/-x.txt": "my dir/-x.txt",
	}
	for in, want := range tests {
		if got := stripListFlags(in); got != want {
			t.Errorf("stripListFlags(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHelpLines(t *testing.T) {
	if len(helpLines) != (len(commands)+7)/8 {
		t.Fatalf("got %d help lines for %d commands", len(helpLines), len(commands))
	}
	for i, line := range helpLines {
		if i < len(helpLines)-1 && len(line) != 64 {
			t.Errorf("line %d is %d wide: %q", i, len(line), line)
		}
	}
	all := strings.Join(helpLines, "")
	for verb := range commands {
		if !strings.Contains(all, verb) {
			t.Errorf("%s missing from help", verb)
		}
	}
	if !strings.HasPrefix(helpLines[0], "CWD     ") {
		t.Errorf("help is not sorted: %q", helpLines[0])
	}
}
