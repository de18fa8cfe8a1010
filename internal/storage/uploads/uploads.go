// Package uploads keeps product images on the local filesystem.
package uploads

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/chronos-shop/internal/domain/product"
)

var _ product.ImageStore = (*Store)(nil)

// Store saves images into a single flat directory. Files are named
// "<unixMillis>-<originalBaseName>".
type Store struct {
	dir string
	now func() time.Time
}

// New returns a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating uploads dir %s: %w", dir, err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Dir returns the directory files are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes content to a new file and returns its name.
func (s *Store) Save(ctx context.Context, name string, content io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	base := cleanName(name)
	ms := s.now().UnixMilli()

	// Two uploads of the same name within one millisecond get distinct stamps.
	for attempt := 0; attempt < 16; attempt++ {
		file := strconv.FormatInt(ms+int64(attempt), 10) + "-" + base
		f, err := os.OpenFile(filepath.Join(s.dir, file), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("creating %s: %w", file, err)
		}
		if _, err := io.Copy(f, content); err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
			return "", fmt.Errorf("writing %s: %w", file, err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(f.Name())
			return "", fmt.Errorf("closing %s: %w", file, err)
		}
		return file, nil
	}
	return "", errors.Errorf("no free file name for %q", base)
}

// Remove deletes a previously saved file. A missing file is not an error.
func (s *Store) Remove(ctx context.Context, file string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.dir, filepath.Base(file)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", file, err)
	}
	return nil
}

// Check verifies the directory exists and accepts new files.
func (s *Store) Check(_ context.Context) error {
	f, err := os.CreateTemp(s.dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("uploads dir not writable: %w", err)
	}
	_ = f.Close()
	return os.Remove(f.Name())
}

// cleanName strips any client supplied directories from name.
func cleanName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "image"
	}
	return name
}
