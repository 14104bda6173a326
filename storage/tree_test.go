package storage

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

// factories returns the afero backed factories every Tree test runs against.
func factories(t *testing.T) map[string]Factory {
	t.Helper()
	local, err := NewLocalFactory(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return map[string]Factory{
		"memory": NewMemoryFactory(nil),
		"local":  local,
	}
}

func newStorage(t *testing.T, f Factory) Storage {
	t.Helper()
	s, err := f()
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func writeEntry(t *testing.T, e Entry, content string) {
	t.Helper()
	w, err := e.Open(WriteMode)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(w, content); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func readEntry(t *testing.T, e Entry) string {
	t.Helper()
	r, err := e.Open(ReadMode)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestTree_Base(t *testing.T) {
	for name, f := range factories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStorage(t, f)
			if s.Base() != "/" {
				t.Fatalf("initial base %q", s.Base())
			}
			if _, err := s.Create("docs", KindCollection); err != nil {
				t.Fatal(err)
			}
			got, err := s.SetBase("docs")
			if err != nil {
				t.Fatal(err)
			}
			if got != "/docs" || s.Base() != "/docs" {
				t.Errorf("SetBase = %q, Base = %q", got, s.Base())
			}

			if _, err := s.SetBase("missing"); !errors.Is(err, fs.ErrNotExist) {
				t.Errorf("SetBase(missing) error = %v", err)
			}
			if s.Base() != "/docs" {
				t.Errorf("failed SetBase changed base to %q", s.Base())
			}

			// climbing above the root stays at the root
			got, err = s.SetBase("../../..")
			if err != nil {
				t.Fatal(err)
			}
			if got != "/" {
				t.Errorf("SetBase(../../..) = %q", got)
			}
		})
	}
}

func TestTree_SetBaseOnLeaf(t *testing.T) {
	for name, f := range factories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStorage(t, f)
			if _, err := s.Create("file.txt", KindElement); err != nil {
				t.Fatal(err)
			}
			if _, err := s.SetBase("file.txt"); !errors.Is(err, ErrNotCollection) {
				t.Errorf("error = %v, want ErrNotCollection", err)
			}
		})
	}
}

func TestTree_CreateLookupReadWrite(t *testing.T) {
	for name, f := range factories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStorage(t, f)

			if _, err := s.Lookup("hello.txt"); !errors.Is(err, fs.ErrNotExist) {
				t.Fatalf("Lookup before create error = %v", err)
			}
			e, err := s.Create("hello.txt", KindElement)
			if err != nil {
				t.Fatal(err)
			}
			if _, ok := e.(Collection); ok {
				t.Fatal("leaf reported as collection")
			}
			writeEntry(t, e, "hello world")

			e, err = s.Lookup("/hello.txt")
			if err != nil {
				t.Fatal(err)
			}
			if e.Name() != "hello.txt" || e.Size() != 11 {
				t.Errorf("entry %s size %d", e.Name(), e.Size())
			}
			if e.NumLinks() < 1 || e.Owner() == "" || e.Group() == "" {
				t.Errorf("links %d owner %q group %q", e.NumLinks(), e.Owner(), e.Group())
			}
			if got := readEntry(t, e); got != "hello world" {
				t.Errorf("content %q", got)
			}

			// WriteMode truncates
			writeEntry(t, e, "hi")
			if got := readEntry(t, e); got != "hi" {
				t.Errorf("content after rewrite %q", got)
			}
		})
	}
}

func TestTree_Collections(t *testing.T) {
	for name, f := range factories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStorage(t, f)
			d, err := s.Create("dir", KindCollection)
			if err != nil {
				t.Fatal(err)
			}
			if !d.Mode().IsDir() {
				t.Errorf("mode %s", d.Mode())
			}
			if _, err := d.Open(ReadMode); !errors.Is(err, ErrIsCollection) {
				t.Errorf("Open on collection error = %v", err)
			}
			if _, err := s.Create("dir", KindCollection); err == nil {
				t.Error("second Create of the same collection succeeded")
			}
			for _, n := range []string{"dir/b", "dir/a"} {
				if _, err := s.Create(n, KindElement); err != nil {
					t.Fatal(err)
				}
			}

			e, err := s.Lookup("dir")
			if err != nil {
				t.Fatal(err)
			}
			c, ok := e.(Collection)
			if !ok {
				t.Fatalf("%T is not a Collection", e)
			}
			elements, err := c.Elements()
			if err != nil {
				t.Fatal(err)
			}
			if len(elements) != 2 || elements[0].Name() != "a" || elements[1].Name() != "b" {
				t.Errorf("elements %v", elements)
			}

			for _, el := range elements {
				if err := el.Delete(); err != nil {
					t.Fatal(err)
				}
			}
			if err := c.Delete(); err != nil {
				t.Fatal(err)
			}
			if _, err := s.Lookup("dir"); !errors.Is(err, fs.ErrNotExist) {
				t.Errorf("Lookup after delete error = %v", err)
			}
		})
	}
}

func TestTree_DeleteNonEmptyCollection(t *testing.T) {
	for name, f := range factories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStorage(t, f)
			d, err := s.Create("d", KindCollection)
			if err != nil {
				t.Fatal(err)
			}
			leaf, err := s.Create("d/f", KindElement)
			if err != nil {
				t.Fatal(err)
			}
			writeEntry(t, leaf, "hi")

			if err := d.Delete(); !errors.Is(err, ErrNotEmpty) {
				t.Fatalf("Delete of a non empty collection error = %v, want ErrNotEmpty", err)
			}
			e, err := s.Lookup("d/f")
			if err != nil {
				t.Fatalf("child lost after refused delete: %v", err)
			}
			if got := readEntry(t, e); got != "hi" {
				t.Errorf("child content %q", got)
			}

			if err := e.Delete(); err != nil {
				t.Fatal(err)
			}
			if err := d.Delete(); err != nil {
				t.Fatalf("Delete of the emptied collection: %v", err)
			}
		})
	}
}

func TestTree_SessionsHaveOwnBase(t *testing.T) {
	f := NewMemoryFactory(nil)
	a, b := newStorage(t, f), newStorage(t, f)
	if _, err := a.Create("shared", KindCollection); err != nil {
		t.Fatal(err)
	}
	if _, err := a.SetBase("shared"); err != nil {
		t.Fatal(err)
	}
	if b.Base() != "/" {
		t.Errorf("second session base %q", b.Base())
	}
	if _, err := b.Lookup("shared"); err != nil {
		t.Errorf("second session does not see shared files: %v", err)
	}
}

func TestTree_ErrorsHideLocalRoot(t *testing.T) {
	root := t.TempDir()
	f, err := NewLocalFactory(root)
	if err != nil {
		t.Fatal(err)
	}
	s := newStorage(t, f)
	_, err = s.Lookup("nope")
	if err == nil {
		t.Fatal("expected an error")
	}
	var pe *fs.PathError
	if !errors.As(err, &pe) || pe.Path != "/nope" {
		t.Errorf("error %v does not carry the virtual path", err)
	}
}

func TestNewLocalFactory(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLocalFactory(file); !errors.Is(err, ErrNotCollection) {
		t.Errorf("file root error = %v", err)
	}
	if _, err := NewLocalFactory(filepath.Join(root, "missing")); err == nil {
		t.Error("missing root accepted")
	}
}

func TestNewMemoryFactory_SharedFs(t *testing.T) {
	afs := afero.NewMemMapFs()
	if err := afero.WriteFile(afs, "/seed.txt", []byte("seed"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := newStorage(t, NewMemoryFactory(afs))
	e, err := s.Lookup("seed.txt")
	if err != nil {
		t.Fatal(err)
	}
	if got := readEntry(t, e); got != "seed" {
		t.Errorf("content %q", got)
	}
}
