package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/gofrs/flock"
)

const (
	dirPerm  = 0o700
	filePerm = 0o600

	lockFileName  = ".lock"
	lockTimeout   = 2 * time.Second
	lockRetryWait = 25 * time.Millisecond
)

var validKey = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// FileBackend stores each item as a small JSON file. Writes go through a
// temp file and rename under a cross-process lock, so readers in other
// processes never see a torn value.
type FileBackend struct {
	dir string
}

type fileItem struct {
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewFileBackend creates dir (0700) if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		return nil, errors.New("tokenstore: file backend directory is required")
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("tokenstore: create %s: %w", dir, err)
	}
	if err := os.Chmod(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("tokenstore: chmod %s: %w", dir, err)
	}
	return &FileBackend{dir: dir}, nil
}

// DefaultDir is the durable store location under the user config dir.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("tokenstore: locate config dir: %w", err)
	}
	return filepath.Join(base, DefaultNamespace, "auth"), nil
}

// Dir returns the backing directory.
func (b *FileBackend) Dir() string { return b.dir }

func (b *FileBackend) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(b.dir, key+".json"), nil
}

func (b *FileBackend) GetItem(key string) (string, bool, error) {
	p, err := b.path(key)
	if err != nil {
		return "", false, err
	}

	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("tokenstore: read %s: %w", key, err)
	}

	var item fileItem
	if err := json.Unmarshal(data, &item); err != nil {
		return "", false, fmt.Errorf("tokenstore: decode %s: %w", key, err)
	}
	return item.Value, true, nil
}

func (b *FileBackend) SetItem(key, value string) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	data, err := json.Marshal(fileItem{Value: value, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("tokenstore: encode %s: %w", key, err)
	}

	return b.withLock(func() error {
		return writeFileAtomic(b.dir, p, data)
	})
}

func (b *FileBackend) RemoveItem(key string) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	return b.withLock(func() error {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("tokenstore: remove %s: %w", key, err)
		}
		return nil
	})
}

func (b *FileBackend) withLock(fn func() error) error {
	fileLock := flock.New(filepath.Join(b.dir, lockFileName))
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(ctx, lockRetryWait)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	if !locked {
		return ErrLockTimeout
	}
	defer func() { _ = fileLock.Unlock() }()

	return fn()
}

func writeFileAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("tokenstore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(filePerm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("tokenstore: chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("tokenstore: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("tokenstore: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenstore: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("tokenstore: replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
