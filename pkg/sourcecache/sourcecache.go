// Package sourcecache implements the content-addressed remote-fetch cache:
// entries are keyed by opaque bytes (typically a source origin URL) and
// stored under a user-local directory, guarded by per-entry advisory locks
// and validated by a sibling SHA-256 checksum file.
package sourcecache

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/blimp-pm/blimp/pkg/blimperr"
)

const checksumSuffix = ".checksum"
const lockSuffix = ".lock"

// Cache roots entry files under Dir, one content file and one checksum file
// per key, plus a companion lock file used for the advisory exclusive lock.
type Cache struct {
	Dir string
}

// Open ensures dir exists and returns a Cache rooted there.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating source cache dir %s: %w", dir, err)
	}
	return &Cache{Dir: dir}, nil
}

// DefaultDir resolves the user-local source cache directory,
// ~/.cache/blimp/sources, per spec §6. It is derived from the current
// user's home directory on every call rather than memoized, so tests that
// override $HOME see their own isolated cache.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".cache", "blimp", "sources"), nil
}

func (c *Cache) entryName(key []byte) string {
	return base64.URLEncoding.EncodeToString(key)
}

func (c *Cache) contentPath(key []byte) string {
	return filepath.Join(c.Dir, c.entryName(key))
}

func (c *Cache) checksumPath(key []byte) string {
	return c.contentPath(key) + checksumSuffix
}

func (c *Cache) lockPath(key []byte) string {
	return c.contentPath(key) + lockSuffix
}

// Entry is a handle returned by GetOrInsert. File is open for reading and
// writing at offset 0; Cached reports whether its content already matched
// its checksum file on open (callers may skip redundant network work).
// Callers MUST call Close (directly, or via Flush) to release the lock.
type Entry struct {
	cache   *Cache
	key     []byte
	File    *os.File
	Cached  bool
	lock    *os.File
	flushed bool
}

// GetOrInsert opens (creating if absent) the content file for key under an
// exclusive advisory lock, per spec §4.11: if a sibling checksum file exists
// and matches the current content's digest, Cached is true; otherwise the
// content file is truncated and Cached is false.
func (c *Cache) GetOrInsert(key []byte) (*Entry, error) {
	lock, err := acquireLock(c.lockPath(key))
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(c.contentPath(key), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		lock.Close()
		os.Remove(lock.Name())
		return nil, fmt.Errorf("opening cache entry: %w", err)
	}

	entry := &Entry{cache: c, key: key, File: f, lock: lock}

	valid, err := entry.checksumMatches()
	if err != nil {
		entry.Close()
		return nil, err
	}

	if !valid {
		if err := f.Truncate(0); err != nil {
			entry.Close()
			return nil, fmt.Errorf("truncating cache entry: %w", err)
		}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		entry.Close()
		return nil, fmt.Errorf("seeking cache entry: %w", err)
	}

	entry.Cached = valid
	return entry, nil
}

// checksumMatches reports whether the sibling checksum file exists and
// matches the SHA-256 digest of the entry's current content.
func (e *Entry) checksumMatches() (bool, error) {
	want, err := os.ReadFile(e.cache.checksumPath(e.key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading checksum file: %w", err)
	}

	got, err := e.digest()
	if err != nil {
		return false, err
	}

	return bytes.Equal(got, want), nil
}

func (e *Entry) digest() ([]byte, error) {
	if _, err := e.File.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking cache entry: %w", err)
	}
	h := sha256.New()
	if _, err := io.Copy(h, e.File); err != nil {
		return nil, fmt.Errorf("hashing cache entry: %w", err)
	}
	return h.Sum(nil), nil
}

// Flush recomputes the entry's digest and writes it to the checksum file
// under the entry's held lock, then releases the lock. Callers that wrote
// new content after GetOrInsert must call Flush (not just Close) to mark
// the entry valid for future lookups.
func (e *Entry) Flush() error {
	sum, err := e.digest()
	if err != nil {
		return err
	}

	if err := os.WriteFile(e.cache.checksumPath(e.key), sum, 0o644); err != nil {
		return fmt.Errorf("writing checksum file: %w", err)
	}

	e.flushed = true
	return e.Close()
}

// Close releases the entry's lock and closes its content file without
// writing a checksum. Safe to call after Flush (a no-op in that case).
func (e *Entry) Close() error {
	if e.flushed {
		return nil
	}
	e.flushed = true

	closeErr := e.File.Close()

	e.lock.Close()
	if err := os.Remove(e.lock.Name()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("releasing cache lock: %w", err)
	}
	return closeErr
}

// acquireLock exclusively creates path as an advisory lock sentinel. Like
// the sysroot lock (pkg/environment), it is a single attempt rather than a
// retry loop: if the entry is already locked it fails at once with
// ErrLockBusy instead of waiting (see DESIGN.md).
func acquireLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: source cache entry %s", blimperr.ErrLockBusy, path)
		}
		return nil, fmt.Errorf("creating cache lock %s: %w", path, err)
	}
	return f, nil
}
