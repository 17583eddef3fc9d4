// Package source implements the source fetcher: dispatching a package's
// declared Source entries onto their origin (local path, URL archive, or
// git clone) and staging the result under a build directory location.
package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/blimp-pm/blimp/pkg/archive"
	"github.com/blimp-pm/blimp/pkg/blimperr"
	"github.com/blimp-pm/blimp/pkg/model"
)

// ConcatPaths implements spec §6's path concatenation rule: if other begins
// with a separator it is stripped before joining, and ".." segments cannot
// climb above base, so the result always lands at or under base.
func ConcatPaths(base, other string) string {
	return filepath.Join(base, filepath.Clean(string(filepath.Separator)+strings.TrimPrefix(other, string(filepath.Separator))))
}

// Fetch stages src under buildDir at its declared Location, dispatching on
// the origin kind. Url and Git origins are only available when the binary
// was built with the network build tag; otherwise they fail with
// ErrNetworkDisabled.
func Fetch(src model.Source, buildDir string) error {
	dest := ConcatPaths(buildDir, src.Location)

	switch src.Origin.Kind {
	case model.OriginLocal:
		return fetchLocal(src.Origin.Path, dest)
	case model.OriginURL:
		return fetchURL(src.Origin.URL, dest)
	case model.OriginGit:
		return fetchGit(src.Origin.URL, src.Origin.Branch, dest)
	default:
		return fmt.Errorf("%w: unknown origin kind", blimperr.ErrInvalidDescriptor)
	}
}

func fetchLocal(path, dest string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: stat %s: %s", blimperr.ErrSourceFetchFailed, path, err)
	}

	if info.IsDir() {
		if err := recursiveCopy(path, dest); err != nil {
			return fmt.Errorf("%w: copying %s: %s", blimperr.ErrSourceFetchFailed, path, err)
		}
		return nil
	}

	if err := archive.Decompress(path, dest); err != nil {
		return fmt.Errorf("%w: decompressing %s: %s", blimperr.ErrSourceFetchFailed, path, err)
	}
	return nil
}

// recursiveCopy copies the directory tree rooted at src into dst,
// preserving symlinks and file permissions.
func recursiveCopy(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		info, err := os.Lstat(srcPath)
		if err != nil {
			return err
		}

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(srcPath)
			if err != nil {
				return err
			}
			if err := os.Symlink(target, dstPath); err != nil {
				return err
			}
		case info.IsDir():
			if err := recursiveCopy(srcPath, dstPath); err != nil {
				return err
			}
		default:
			if err := copyFile(srcPath, dstPath, info.Mode()); err != nil {
				return err
			}
		}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return nil
}
