package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
)

const fileExt = ".json"

// FileStore implements Store with one JSON file per key under dir.
// Writes go to a temp file that is renamed into place, so a reader sees either
// the previous entry or the new one; concurrent writers to a key race and the last rename wins.
type FileStore struct {
	fs    afero.Fs
	dir   string
	ttl   time.Duration
	clock clockwork.Clock
}

// NewFileStore creates the cache directory if needed and returns a FileStore.
// Use afero.NewOsFs() in production and afero.NewMemMapFs() in tests. A nil clock uses the real clock.
func NewFileStore(fsys afero.Fs, dir string, ttl time.Duration, clock clockwork.Clock) (*FileStore, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	return &FileStore{fs: fsys, dir: dir, ttl: ttl, clock: clock}, nil
}

// path maps a key to its file. Keys are path-escaped so that city names
// containing separators cannot leave the cache directory.
func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+fileExt)
}

// Get implements Store.Get. Entries that cannot be decoded are reported as a miss
// and left for ClearExpired to remove.
func (s *FileStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}
	entry, err := s.read(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, errCorruptEntry) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if expired(entry.StoredAt, s.clock.Now(), s.ttl) {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Put implements Store.Put.
func (s *FileStore) Put(ctx context.Context, key string, payload json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return ErrInvalidKey
	}
	raw, err := json.Marshal(Entry{Key: key, Payload: payload, StoredAt: s.clock.Now().UTC()})
	if err != nil {
		return fmt.Errorf("cache put %s: encode: %w", key, err)
	}
	tmp := filepath.Join(s.dir, ".tmp-"+uuid.NewString())
	if err := afero.WriteFile(s.fs, tmp, raw, 0o644); err != nil {
		return fmt.Errorf("cache put %s: write: %w", key, err)
	}
	if err := s.fs.Rename(tmp, s.path(key)); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("cache put %s: rename: %w", key, err)
	}
	return nil
}

// ClearAll implements Store.ClearAll.
func (s *FileStore) ClearAll(ctx context.Context) (int, error) {
	files, err := s.entries()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		removed, err := s.remove(f)
		if err != nil {
			return n, err
		}
		if removed {
			n++
		}
	}
	return n, nil
}

// ClearExpired implements Store.ClearExpired. Corrupt entry files count as expired.
func (s *FileStore) ClearExpired(ctx context.Context) (int, error) {
	files, err := s.entries()
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()
	n := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		entry, err := s.read(f)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			continue
		case errors.Is(err, errCorruptEntry):
		case err != nil:
			return n, fmt.Errorf("cache clear expired: %w", err)
		case !expired(entry.StoredAt, now, s.ttl):
			continue
		}
		removed, err := s.remove(f)
		if err != nil {
			return n, err
		}
		if removed {
			n++
		}
	}
	return n, nil
}

// Ping checks that the cache directory is still present.
func (s *FileStore) Ping(ctx context.Context) error {
	fi, err := s.fs.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("cache dir: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("cache dir %s is not a directory", s.dir)
	}
	return nil
}

var errCorruptEntry = errors.New("corrupt cache entry")

func (s *FileStore) read(path string) (Entry, error) {
	raw, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil || entry.StoredAt.IsZero() {
		return Entry{}, fmt.Errorf("%w: %s", errCorruptEntry, path)
	}
	return entry, nil
}

func (s *FileStore) entries() ([]string, error) {
	files, err := afero.Glob(s.fs, filepath.Join(s.dir, "*"+fileExt))
	if err != nil {
		return nil, fmt.Errorf("list cache dir: %w", err)
	}
	return files, nil
}

// remove deletes path, reporting false when another caller removed it first.
func (s *FileStore) remove(path string) (bool, error) {
	if err := s.fs.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("remove cache entry: %w", err)
	}
	return true, nil
}
