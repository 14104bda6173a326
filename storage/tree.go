package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"time"
)

// backend is the minimal set of file operations a Tree needs.
// All names are absolute slash separated paths inside the tree.
type backend interface {
	Stat(name string) (fs.FileInfo, error)
	ReadDir(name string) ([]fs.FileInfo, error)
	Mkdir(name string) error
	Remove(name string) error
	OpenFile(name string, flag int) (io.ReadWriteCloser, error)
	// Owner returns the link count, owner and group of name.
	Owner(name string, info fs.FileInfo) (links int, owner, group string)
}

// Ensure that Tree implements the Storage interface
var _ Storage = &Tree{}

// Tree implements Storage on top of a backend.
type Tree struct {
	backend backend
	base    string // virtual working directory, always absolute and clean
}

func newTree(b backend) *Tree {
	return &Tree{backend: b, base: "/"}
}

// Base returns the current working directory.
func (t *Tree) Base() string {
	return t.base
}

// SetBase changes the working directory, the target has to be an existing collection.
func (t *Tree) SetBase(name string) (string, error) {
	target := t.resolve(name)
	info, err := t.backend.Stat(target)
	if err != nil {
		return "", virtualPathError("cwd", target, err)
	}
	if !info.IsDir() {
		return "", &fs.PathError{Op: "cwd", Path: target, Err: ErrNotCollection}
	}
	t.base = target
	return t.base, nil
}

// Lookup returns the entry at name, an empty name is the working directory.
func (t *Tree) Lookup(name string) (Entry, error) {
	target := t.resolve(name)
	info, err := t.backend.Stat(target)
	if err != nil {
		return nil, virtualPathError("lookup", target, err)
	}
	return t.entry(target, info), nil
}

// Create makes a new leaf or collection.
func (t *Tree) Create(name string, kind Kind) (Entry, error) {
	target := t.resolve(name)
	switch kind {
	case KindCollection:
		if err := t.backend.Mkdir(target); err != nil {
			return nil, virtualPathError("mkdir", target, err)
		}
	default:
		f, err := t.backend.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
		if err != nil {
			return nil, virtualPathError("create", target, err)
		}
		if err := f.Close(); err != nil {
			return nil, virtualPathError("create", target, err)
		}
	}
	return t.Lookup(target)
}

// resolve turns name into an absolute clean path, relative names are joined to the base.
// Cleaning an absolute path never climbs above "/".
func (t *Tree) resolve(name string) string {
	if name == "" {
		return t.base
	}
	if !path.IsAbs(name) {
		name = path.Join(t.base, name)
	}
	return path.Clean(name)
}

func (t *Tree) entry(name string, info fs.FileInfo) Entry {
	links, owner, group := t.backend.Owner(name, info)
	n := &node{
		tree:  t,
		path:  name,
		info:  info,
		links: links,
		owner: owner,
		group: group,
	}
	if info.IsDir() {
		return &collection{node: n}
	}
	return n
}

// virtualPathError replaces the backend path of err with the virtual one, so
// replies never reveal where the tree lives.
func virtualPathError(op, name string, err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return &fs.PathError{Op: op, Path: name, Err: pe.Err}
	}
	return &fs.PathError{Op: op, Path: name, Err: err}
}

// node is a leaf entry of a Tree.
type node struct {
	tree  *Tree
	path  string
	info  fs.FileInfo
	links int
	owner string
	group string
}

func (n *node) Name() string {
	if n.path == "/" {
		return "/"
	}
	return path.Base(n.path)
}

func (n *node) Size() int64        { return n.info.Size() }
func (n *node) Mode() fs.FileMode  { return n.info.Mode() }
func (n *node) NumLinks() int      { return n.links }
func (n *node) Owner() string      { return n.owner }
func (n *node) Group() string      { return n.group }
func (n *node) ModTime() time.Time { return n.info.ModTime() }

func (n *node) String() string {
	return fmt.Sprintf("%s (%s, %d bytes)", n.path, n.info.Mode(), n.info.Size())
}

// Open opens the leaf, WriteMode truncates it.
func (n *node) Open(mode OpenMode) (io.ReadWriteCloser, error) {
	if n.info.IsDir() {
		return nil, &fs.PathError{Op: "open", Path: n.path, Err: ErrIsCollection}
	}
	flag := os.O_RDONLY
	if mode == WriteMode {
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := n.tree.backend.OpenFile(n.path, flag)
	if err != nil {
		return nil, virtualPathError("open", n.path, err)
	}
	return f, nil
}

// Delete removes the leaf.
func (n *node) Delete() error {
	if err := n.tree.backend.Remove(n.path); err != nil {
		return virtualPathError("delete", n.path, err)
	}
	return nil
}

// collection is a directory entry of a Tree.
type collection struct {
	*node
}

// Delete removes the collection, which has to be empty. Backends like
// afero.MemMapFs would drop a non empty directory and keep its children.
func (c *collection) Delete() error {
	infos, err := c.tree.backend.ReadDir(c.path)
	if err != nil {
		return virtualPathError("delete", c.path, err)
	}
	if len(infos) > 0 {
		return &fs.PathError{Op: "delete", Path: c.path, Err: ErrNotEmpty}
	}
	return c.node.Delete()
}

// Elements lists the children of the collection.
func (c *collection) Elements() ([]Entry, error) {
	infos, err := c.tree.backend.ReadDir(c.path)
	if err != nil {
		return nil, virtualPathError("list", c.path, err)
	}
	entries := make([]Entry, len(infos))
	for i, info := range infos {
		entries[i] = c.tree.entry(path.Join(c.path, info.Name()), info)
	}
	return entries, nil
}
