package intake

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Uploads stores incoming media in the records directory under job-unique
// names of the form <unixmillis>-<originalname>.
type Uploads struct {
	dir string
	now func() time.Time
}

// NewUploads creates the records directory if needed.
func NewUploads(dir string) (*Uploads, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create records dir: %w", err)
	}
	return &Uploads{dir: dir, now: time.Now}, nil
}

// Dir returns the records directory.
func (u *Uploads) Dir() string { return u.dir }

// Owns reports whether path names a file inside the records directory and
// returns its absolute form.
func (u *Uploads) Owns(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	dir, err := filepath.Abs(u.dir)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(dir, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return abs, true
}

// Save writes r to a new file named after originalName and returns its path.
// A partially written file is removed on error.
func (u *Uploads) Save(originalName string, r io.Reader) (string, error) {
	f, path, err := u.create(originalName)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close upload: %w", err)
	}
	return path, nil
}

// Adopt moves an existing file into the records directory, copying when a
// rename is not possible (different filesystem).
func (u *Uploads) Adopt(src string) (string, error) {
	f, path, err := u.create(filepath.Base(src))
	if err != nil {
		return "", err
	}
	f.Close()

	if err := os.Rename(src, path); err == nil {
		return path, nil
	}

	if err := copyFile(src, path); err != nil {
		os.Remove(path)
		return "", err
	}
	os.Remove(src)
	return path, nil
}

// copyFile writes the contents of src to dst, creating or truncating dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

// moveFile renames src to dst, falling back to copy and remove across
// filesystems. src is only removed once dst is complete.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		os.Remove(dst)
		return err
	}
	os.Remove(src)
	return nil
}

// create opens a fresh file, bumping the timestamp prefix until the name is
// unused so two uploads of the same name in one millisecond never collide.
func (u *Uploads) create(originalName string) (*os.File, string, error) {
	name := sanitizeName(originalName)
	ms := u.now().UnixMilli()
	for i := 0; i < 1000; i++ {
		path := filepath.Join(u.dir, strconv.FormatInt(ms+int64(i), 10)+"-"+name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("create upload file: %w", err)
		}
	}
	return nil, "", fmt.Errorf("create upload file: no free name for %q", name)
}

// sanitizeName keeps only the final path element of a client supplied name.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." || name == "/" || name == ".." || name == "" {
		return "upload"
	}
	return name
}
