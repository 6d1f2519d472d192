package evidence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// FileStore writes evidence under a local directory.
type FileStore struct {
	dir      string
	maxBytes int64
	now      func() time.Time
}

func NewFileStore(dir string, maxBytes int64) (*FileStore, error) {
	//nolint:gosec // G301: uploads are served by the application only
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create evidence dir: %w", err)
	}
	return &FileStore{dir: dir, maxBytes: maxBytes, now: time.Now}, nil
}

// Put writes to a temporary file and renames it into place, so a failed
// copy never leaves a partial blob under its final name.
func (s *FileStore) Put(ctx context.Context, upload Upload) (Stored, error) {
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}
	name := StoredName(upload.Name, s.now())
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"

	f, err := os.Create(tmp) //nolint:gosec // name is generated
	if err != nil {
		return Stored{}, fmt.Errorf("create evidence file: %w", err)
	}
	body := upload.Body
	if s.maxBytes > 0 {
		body = io.LimitReader(body, s.maxBytes+1)
	}
	n, err := io.Copy(f, body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && s.maxBytes > 0 && n > s.maxBytes {
		err = errors.New("evidence file exceeds size limit")
	}
	if err != nil {
		_ = os.Remove(tmp)
		return Stored{}, fmt.Errorf("write evidence file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return Stored{}, fmt.Errorf("commit evidence file: %w", err)
	}
	return Stored{Key: name, Path: path, Size: n}, nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	if key != filepath.Base(key) {
		return fmt.Errorf("invalid evidence key %q", key)
	}
	err := os.Remove(filepath.Join(s.dir, key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete evidence file: %w", err)
	}
	return nil
}
