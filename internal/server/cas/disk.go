package cas

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mpetrovs/attachsync/internal/common"
)

// DiskStore keeps objects under <base>/objects/<hh>/<hash>, sharded by the
// first two hex characters to keep directories small.
type DiskStore struct {
	base string
}

// NewDiskStore creates the object root if needed.
func NewDiskStore(base string) (*DiskStore, error) {
	root := filepath.Join(base, "objects")
	if err := os.MkdirAll(root, 0o770); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", root, err)
	}
	return &DiskStore{base: base}, nil
}

func (s *DiskStore) objectPath(hash string) string {
	return filepath.Join(s.base, "objects", hash[:2], hash)
}

func (s *DiskStore) Put(ctx context.Context, data []byte) (string, error) {
	hash := HashBytes(data)
	path := s.objectPath(hash)

	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o770); err != nil {
		return "", fmt.Errorf("mkdir shard: %w", err)
	}

	// Write-then-rename keeps concurrent writers of the same content safe:
	// both produce identical bytes and the rename is atomic.
	tmp, err := os.CreateTemp(filepath.Dir(path), hash+".tmp*")
	if err != nil {
		return "", fmt.Errorf("create temp object: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("rename object: %w", err)
	}
	return hash, nil
}

func (s *DiskStore) Get(ctx context.Context, hash string) ([]byte, error) {
	if len(hash) < 2 {
		return nil, common.ErrorValidation
	}
	data, err := os.ReadFile(s.objectPath(hash))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

func (s *DiskStore) Exists(ctx context.Context, hash string) (bool, error) {
	if len(hash) < 2 {
		return false, common.ErrorValidation
	}
	_, err := os.Stat(s.objectPath(hash))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *DiskStore) Remove(ctx context.Context, hash string) error {
	if len(hash) < 2 {
		return common.ErrorValidation
	}
	err := os.Remove(s.objectPath(hash))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

func (s *DiskStore) Keys(ctx context.Context) ([]string, error) {
	root := filepath.Join(s.base, "objects")
	var keys []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			keys = append(keys, d.Name())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk objects: %w", err)
	}
	return keys, nil
}
