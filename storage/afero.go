package storage

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// defaultOwner is reported for entries whose backend has no ownership data.
const defaultOwner = "ftp"

// aferoBackend serves a Tree from an afero file system.
type aferoBackend struct {
	fs   afero.Fs
	root string // directory on disk behind fs, empty when fs is not backed by the OS
}

func (b *aferoBackend) Stat(name string) (fs.FileInfo, error) {
	return b.fs.Stat(name)
}

func (b *aferoBackend) ReadDir(name string) ([]fs.FileInfo, error) {
	return afero.ReadDir(b.fs, name)
}

func (b *aferoBackend) Mkdir(name string) error {
	return b.fs.Mkdir(name, 0o755)
}

func (b *aferoBackend) Remove(name string) error {
	return b.fs.Remove(name)
}

func (b *aferoBackend) OpenFile(name string, flag int) (io.ReadWriteCloser, error) {
	return b.fs.OpenFile(name, flag, 0o644)
}

func (b *aferoBackend) Owner(name string, info fs.FileInfo) (int, string, string) {
	if b.root != "" {
		if links, owner, group, ok := ownerOf(filepath.Join(b.root, filepath.FromSlash(name))); ok {
			return links, owner, group
		}
	}
	return 1, defaultOwner, defaultOwner
}

// NewLocalFactory serves the directory localDir, which acts as "/" for every session.
func NewLocalFactory(localDir string) (Factory, error) {
	localDir, err := filepath.Abs(localDir)
	if err != nil {
		return nil, fmt.Errorf("error resolving storage root: %w", err)
	}
	info, err := os.Stat(localDir)
	if err != nil {
		return nil, fmt.Errorf("error checking storage root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage root %s: %w", localDir, ErrNotCollection)
	}
	b := &aferoBackend{
		fs:   afero.NewBasePathFs(afero.NewOsFs(), localDir),
		root: localDir,
	}
	return func() (Storage, error) {
		return newTree(b), nil
	}, nil
}

// NewMemoryFactory serves an afero file system that is not backed by the OS,
// a new afero.MemMapFs when afs is nil. All sessions see the same files.
func NewMemoryFactory(afs afero.Fs) Factory {
	if afs == nil {
		afs = afero.NewMemMapFs()
	}
	b := &aferoBackend{fs: afs}
	return func() (Storage, error) {
		return newTree(b), nil
	}
}
