package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/oriumgames/persist"
	"github.com/rotisserie/eris"
)

// blobExt is appended to blob names on disk.
const blobExt = ".sav"

// Dir stores each blob as a file in a directory. Writes go through a
// temporary file and a rename so a crash never leaves a torn save.
type Dir struct {
	root string
}

// NewDir creates a directory store rooted at root, creating it if needed.
func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, eris.Wrapf(err, "store: create %s", root)
	}
	return &Dir{root: root}, nil
}

// path returns the file holding name.
func (d *Dir) path(name string) string {
	return filepath.Join(d.root, name+blobExt)
}

// Read implements persist.Store.
func (d *Dir) Read(ctx context.Context, name string) ([]byte, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(d.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: read %s", name)
	}
	return data, nil
}

// Write implements persist.Store.
func (d *Dir) Write(ctx context.Context, name string, data []byte) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(d.root, "."+name+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "store: write %s", name)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return eris.Wrapf(err, "store: write %s", name)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return eris.Wrapf(err, "store: sync %s", name)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "store: close %s", name)
	}
	if err := os.Rename(tmp.Name(), d.path(name)); err != nil {
		return eris.Wrapf(err, "store: commit %s", name)
	}
	return nil
}

// Delete implements persist.Store. Deleting a missing blob is not an error.
func (d *Dir) Delete(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(d.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return eris.Wrapf(err, "store: delete %s", name)
	}
	return nil
}

// List implements persist.Store.
func (d *Dir) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, eris.Wrapf(err, "store: list %s", d.root)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, ok := strings.CutSuffix(e.Name(), blobExt)
		if !ok || strings.HasPrefix(name, ".") || !strings.HasPrefix(name, prefix) {
			continue
		}
		out = append(out, name)
	}
	slices.Sort(out)
	return out, nil
}

// Compile-time check that Dir implements persist.Store.
var _ persist.Store = (*Dir)(nil)
