package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// DirFS implements FS against a directory on the local filesystem. File
// identifiers are opaque byte strings interpreted as slash-separated
// relative paths rooted at Dir; traversal outside Dir is rejected.
type DirFS struct {
	Dir string
}

// NewDirFS returns a DirFS rooted at dir. The directory must already exist.
func NewDirFS(dir string) (*DirFS, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrap(err, "storage.NewDirFS")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("storage: %s is not a directory", dir)
	}
	return &DirFS{Dir: dir}, nil
}

func (d *DirFS) resolve(id []byte) (string, error) {
	rel := filepath.FromSlash(string(id))
	path := filepath.Join(d.Dir, rel)
	if !strings.HasPrefix(path, filepath.Clean(d.Dir)+string(filepath.Separator)) && path != filepath.Clean(d.Dir) {
		return "", errors.Errorf("storage: file id escapes root: %q", id)
	}
	return path, nil
}

func (d *DirFS) Open(id []byte, mode Mode) (Handle, error) {
	path, err := d.resolve(id)
	if err != nil {
		return nil, err
	}

	switch mode {
	case ModeRead:
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, ErrNotFound
			}
			return nil, errors.Wrap(err, "storage.DirFS.Open")
		}
		return f, nil
	case ModeWrite:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "storage.DirFS.Open")
		}
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, errors.Wrap(err, "storage.DirFS.Open")
		}
		return f, nil
	default:
		return nil, errors.Errorf("storage: unknown mode %v", mode)
	}
}

func (d *DirFS) Close(h Handle) error {
	f, ok := h.(*os.File)
	if !ok {
		return errors.New("storage.DirFS.Close: not a *os.File handle")
	}
	return f.Close()
}

func (d *DirFS) Read(h Handle, offset int64, buf []byte) (int, error) {
	f, ok := h.(*os.File)
	if !ok {
		return 0, errors.New("storage.DirFS.Read: not a *os.File handle")
	}
	n, err := f.ReadAt(buf, offset)
	if err == io.EOF {
		return n, nil
	}
	if err != nil {
		return n, errors.Wrap(err, "storage.DirFS.Read")
	}
	return n, nil
}

func (d *DirFS) Write(h Handle, offset int64, data []byte) (int, error) {
	f, ok := h.(*os.File)
	if !ok {
		return 0, errors.New("storage.DirFS.Write: not a *os.File handle")
	}
	n, err := f.WriteAt(data, offset)
	if err != nil {
		return n, errors.Wrap(err, "storage.DirFS.Write")
	}
	return n, nil
}
