// Package storage is the storage collaborator of the FTP engine.
//
// A Storage is a per session view of a file tree: it keeps the working
// directory ("base") and resolves every path relative to it. Entries are
// either leaves (files) or collections (directories). The same Tree
// implementation runs on top of several backends: a local directory, an
// in-memory file system and a remote SFTP server.
package storage

import (
	"errors"
	"io"
	"io/fs"
	"syscall"
	"time"
)

// Kind selects what Create makes.
type Kind int

const (
	// KindElement is a leaf, a regular file.
	KindElement Kind = iota
	// KindCollection is a directory.
	KindCollection
)

func (k Kind) String() string {
	if k == KindCollection {
		return "collection"
	}
	return "element"
}

// OpenMode selects how a leaf is opened.
type OpenMode int

const (
	// ReadMode opens the leaf for reading from the start.
	ReadMode OpenMode = iota
	// WriteMode opens the leaf for writing, truncating the old content.
	WriteMode
)

var (
	// ErrIsCollection is returned when a leaf operation is applied to a collection.
	ErrIsCollection = errors.New("is a directory")
	// ErrNotCollection is returned when a collection is expected.
	ErrNotCollection = errors.New("not a directory")
	// ErrNotEmpty is returned when a collection with children is deleted.
	ErrNotEmpty = syscall.ENOTEMPTY
)

// Storage is the interface the FTP engine uses to reach files.
// Lookup returns an error matching fs.ErrNotExist when the path is absent.
type Storage interface {
	// Base returns the current working directory.
	Base() string
	// SetBase changes the working directory and returns the new one.
	SetBase(path string) (string, error)
	// Lookup returns the entry at path.
	Lookup(path string) (Entry, error)
	// Create makes a new leaf or collection at path.
	Create(path string, kind Kind) (Entry, error)
}

// Entry is a file or directory in a Storage.
type Entry interface {
	Name() string
	Size() int64
	// Mode returns the permission bits, with fs.ModeDir set for collections.
	Mode() fs.FileMode
	NumLinks() int
	Owner() string
	Group() string
	ModTime() time.Time
	// Open opens a leaf. Collections return ErrIsCollection.
	Open(mode OpenMode) (io.ReadWriteCloser, error)
	// Delete removes the entry from its storage.
	Delete() error
}

// Collection is an Entry holding other entries.
type Collection interface {
	Entry
	// Elements returns the children in the order the backend reports them.
	Elements() ([]Entry, error)
}

// Factory creates the Storage of a new session. Sessions never share a
// Storage, so each one has its own working directory.
type Factory func() (Storage, error)
