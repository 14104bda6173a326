package users

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

var _ AddrAuthenticator = &FileUsers{}

// FileUsers is a user table loaded from a file and reloaded whenever the file changes.
//
// Each non empty line that does not start with '#' is
//
//	username:bcrypt-hash[:ip-or-prefix,...]
type FileUsers struct {
	path    string
	logger  *slog.Logger
	mu      sync.RWMutex
	users   *LocalUsers
	watcher *fsnotify.Watcher
}

// NewFileUsers loads the users file at path.
func NewFileUsers(path string, logger *slog.Logger) (*FileUsers, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f := &FileUsers{
		path:   filepath.Clean(path),
		logger: logger.With("module", "users-file"),
	}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// LoadFile parses a users file.
func LoadFile(path string) (*LocalUsers, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening users file: %w", err)
	}
	defer file.Close()

	users := NewLocalUsers()
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.SplitN(line, ":", 3)
		if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
			return nil, fmt.Errorf("%s:%d: expected username:hash", path, lineNo)
		}
		user, err := users.AddHash(fields[0], []byte(fields[1]))
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		if len(fields) == 3 && fields[2] != "" {
			for _, ip := range strings.Split(fields[2], ",") {
				if err := user.AddIP(strings.TrimSpace(ip)); err != nil {
					return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading users file: %w", err)
	}
	return users, nil
}

// Reload reads the file again, on error the previous table stays in use.
func (f *FileUsers) Reload() error {
	users, err := LoadFile(f.path)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.users = users
	f.mu.Unlock()
	f.logger.Info("users loaded", "file", f.path, "count", len(users.List()))
	return nil
}

// Watch starts reloading the table on changes of the file. The directory is
// watched rather than the file, editors often replace files on save.
func (f *FileUsers) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("error watching %s: %w", f.path, err)
	}
	f.mu.Lock()
	f.watcher = watcher
	f.mu.Unlock()

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != f.path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if err := f.Reload(); err != nil {
					f.logger.Error("error reloading users", "file", f.path, "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				f.logger.Error("watcher error", "error", err)
			}
		}
	}()
	return nil
}

// Close stops watching the file.
func (f *FileUsers) Close() error {
	f.mu.Lock()
	watcher := f.watcher
	f.watcher = nil
	f.mu.Unlock()
	if watcher == nil {
		return nil
	}
	return watcher.Close()
}

func (f *FileUsers) current() *LocalUsers {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.users
}

// Authenticate checks the credentials against the loaded table.
func (f *FileUsers) Authenticate(username, password string) (bool, error) {
	return f.current().Authenticate(username, password)
}

// AuthenticateAddr checks the credentials and the allowed addresses of the user.
func (f *FileUsers) AuthenticateAddr(username, password string, remote net.Addr) (bool, error) {
	return f.current().AuthenticateAddr(username, password, remote)
}
