package objstore

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// DirStore implements Store on a local directory, one file per key. It backs
// offline runs and tests.
type DirStore struct {
	root string
}

// NewDirStore returns a DirStore rooted at root, creating it if needed.
func NewDirStore(root string) (*DirStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, eris.Wrapf(err, "objstore: create %s", root)
	}
	return &DirStore{root: root}, nil
}

// path maps key below root. Keys with a ".." segment are rejected; dots
// inside a name are fine.
func (d *DirStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", eris.Errorf("objstore: invalid key %q", key)
	}
	segs := strings.FieldsFunc(key, func(r rune) bool { return r == '/' || r == '\\' })
	for _, seg := range segs {
		if seg == ".." {
			return "", eris.Errorf("objstore: invalid key %q", key)
		}
	}
	return filepath.Join(d.root, clean), nil
}

// Download copies the stored file to dest.
func (d *DirStore) Download(ctx context.Context, key, dest string) error {
	src, err := d.path(key)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "objstore: open %s", key)
	}
	defer in.Close() //nolint:errcheck

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return eris.Wrap(err, "objstore: create destination directory")
	}
	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "objstore: create %s", dest)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return eris.Wrapf(err, "objstore: copy %s", key)
	}
	return eris.Wrap(out.Close(), "objstore: close destination")
}

// Upload writes r to the file for key.
func (d *DirStore) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	dst, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return eris.Wrap(err, "objstore: create directory")
	}
	out, err := os.Create(dst)
	if err != nil {
		return eris.Wrapf(err, "objstore: create %s", key)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return eris.Wrapf(err, "objstore: write %s", key)
	}
	return eris.Wrap(out.Close(), "objstore: close object")
}

// Exists reports whether the file for key exists.
func (d *DirStore) Exists(ctx context.Context, key string) (bool, error) {
	p, err := d.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, eris.Wrapf(err, "objstore: stat %s", key)
	}
}
