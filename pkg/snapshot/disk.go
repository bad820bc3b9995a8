package snapshot

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DiskStore stores snapshots as files in one directory.
type DiskStore struct {
	dir     string
	maxSize int64
	now     func() time.Time
}

var _ Store = (*DiskStore)(nil)

// NewDiskStore creates a new DiskStore.
//
// Parameters:
//   - dir: Directory to store snapshots in, created if missing
//   - maxSize: Maximum snapshot size in bytes (0 = no limit)
func NewDiskStore(dir string, maxSize int64) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &DiskStore{dir: dir, maxSize: maxSize, now: time.Now}, nil
}

// Dir returns the directory the store writes to.
func (s *DiskStore) Dir() string { return s.dir }

// Put writes markup to a new file. The file appears atomically.
func (s *DiskStore) Put(ctx context.Context, name string, markup []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.maxSize > 0 && int64(len(markup)) > s.maxSize {
		return "", ErrTooLarge
	}
	key, err := NewKey(name, s.now())
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp(s.dir, ".put-*")
	if err != nil {
		return "", err
	}
	tmp := f.Name()
	if _, err := f.Write(markup); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, key)); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return key, nil
}

// Get reads a stored snapshot.
func (s *DiskStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// List returns the snapshots in the directory, oldest first. Files that
// are not snapshots are ignored.
func (s *DiskStore) List(ctx context.Context) ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []Info
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), Extension) {
			continue
		}
		_, created, err := ParseKey(entry.Name())
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, Info{Key: entry.Name(), Size: info.Size(), CreatedAt: created})
	}
	sortInfos(out)
	return out, nil
}

// Cleanup removes snapshots captured before now minus maxAge.
func (s *DiskStore) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	infos, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, info := range infos {
		if !info.CreatedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, info.Key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func sortInfos(infos []Info) {
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].CreatedAt.Before(infos[j].CreatedAt)
		}
		return infos[i].Key < infos[j].Key
	})
}
