package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore keeps uploads under a local root directory and serves them
// from a public base URL.
type DiskStore struct {
	root    string
	baseURL string
}

func NewDiskStore(root, baseURL string) *DiskStore {
	return &DiskStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *DiskStore) Save(ctx context.Context, r io.Reader, key string) error {
	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write upload file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close upload file: %w", err)
	}
	return nil
}

func (s *DiskStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete upload file: %w", err)
	}
	return nil
}

func (s *DiskStore) URL(key string) string {
	return s.baseURL + "/" + key
}
