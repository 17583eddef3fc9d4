// Package archive implements the package archive codec: format sniffing,
// tar decompression into a destination directory, and sealing a staging
// root into a gzipped tar per spec §4.3.
package archive

import (
	"archive/tar"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/blimp-pm/blimp/pkg/blimperr"
)

// PackageDescriptorName is the top-level archive member holding the build
// descriptor.
const PackageDescriptorName = "package.json"

// DataDir is the top-level archive member holding the staged sysroot tree.
const DataDir = "data"

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	xzMagic    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	bzip2Magic = []byte{'B', 'Z', 'h'}
)

// sniff inspects the leading bytes of f (which must support re-reading, so
// callers pass an *os.File seeked to 0) and returns a decompressing reader,
// or ErrUnsupportedFormat if none of gzip/xz/bzip2 match.
func sniff(f *os.File) (io.Reader, error) {
	header := make([]byte, 6)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("reading archive header: %w", err)
	}
	header = header[:n]

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking archive: %w", err)
	}

	switch {
	case bytes.HasPrefix(header, gzipMagic):
		return gzip.NewReader(f)
	case bytes.HasPrefix(header, xzMagic):
		return xz.NewReader(f)
	case bytes.HasPrefix(header, bzip2Magic):
		return bzip2.NewReader(f), nil
	default:
		return nil, fmt.Errorf("%w: unrecognized archive format", blimperr.ErrUnsupportedFormat)
	}
}

// Decompress detects the compression format of src by sniffing its leading
// bytes and unpacks the tar stream into dest, creating it if necessary.
// Symlinks are preserved and not followed; permissions are preserved;
// existing entries at the destination are overwritten. A leading "/" in a
// member name is stripped so the member lands under dest; member names
// whose "../" segments escape dest are rejected.
func Decompress(src, dest string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", src, err)
	}
	defer f.Close()

	r, err := sniff(f)
	if err != nil {
		return err
	}

	return unpack(r, dest)
}

func unpack(r io.Reader, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}

		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode&0o7777)); err != nil {
				return fmt.Errorf("creating dir %s: %w", target, err)
			}
		case tar.TypeSymlink:
			os.Remove(target)
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("creating parent of %s: %w", target, err)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("symlinking %s: %w", target, err)
			}
		case tar.TypeReg, tar.TypeRegA:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("creating parent of %s: %w", target, err)
			}
			os.Remove(target)
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode&0o7777))
			if err != nil {
				return fmt.Errorf("creating file %s: %w", target, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("writing %s: %w", target, err)
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("closing %s: %w", target, err)
			}
			if err := os.Chmod(target, os.FileMode(hdr.Mode&0o7777)); err != nil {
				return fmt.Errorf("chmod %s: %w", target, err)
			}
		default:
			// Other entry kinds (hard links, devices, fifos) are not part of
			// the package archive surface; skip them.
		}
	}
}

// safeJoin joins dest with the tar member name, stripping a leading
// separator, and rejects any result that escapes dest — path traversal
// protection per spec §8.
func safeJoin(dest, name string) (string, error) {
	dest = filepath.Clean(dest)
	joined := filepath.Join(dest, strings.TrimPrefix(name, "/"))
	if joined != dest && !strings.HasPrefix(joined, dest+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", blimperr.ErrPathTraversal, name)
	}
	return joined, nil
}

// Compress builds a gzip-compressed tar from the staging root, with
// descriptorPath's contents stored as package.json and the staging root's
// tree stored under data/. Symlinks are not followed; additional top-level
// files (hooks) are included verbatim under their base name. Permissions
// are preserved.
func Compress(w io.Writer, descriptorPath, stagingRoot string, hookPaths []string) error {
	gw := gzip.NewWriter(w)
	tw := tar.NewWriter(gw)

	if err := addFile(tw, descriptorPath, PackageDescriptorName); err != nil {
		return err
	}

	for _, hookPath := range hookPaths {
		if hookPath == "" {
			continue
		}
		if _, err := os.Lstat(hookPath); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("stat hook %s: %w", hookPath, err)
		}
		if err := addFile(tw, hookPath, filepath.Base(hookPath)); err != nil {
			return err
		}
	}

	if err := addTree(tw, stagingRoot, DataDir); err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("closing tar writer: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("closing gzip writer: %w", err)
	}
	return nil
}

func addFile(tw *tar.Writer, srcPath, memberName string) error {
	info, err := os.Lstat(srcPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", srcPath, err)
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("building header for %s: %w", srcPath, err)
	}
	hdr.Name = memberName

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing header for %s: %w", memberName, err)
	}

	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", srcPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("writing %s: %w", memberName, err)
	}
	return nil
}

// addTree walks root and writes every entry under it into tw with member
// names rooted at prefix. Symlinks are stored as symlinks, never followed.
func addTree(tw *tar.Writer, root, prefix string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		memberName := filepath.Join(prefix, rel)

		if info.Mode()&os.ModeSymlink != 0 {
			link, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("reading symlink %s: %w", path, err)
			}
			hdr, err := tar.FileInfoHeader(info, link)
			if err != nil {
				return err
			}
			hdr.Name = memberName
			return tw.WriteHeader(hdr)
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("building header for %s: %w", path, err)
		}
		hdr.Name = memberName
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("writing header for %s: %w", memberName, err)
		}
		if info.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		if _, err := io.Copy(tw, f); err != nil {
			return fmt.Errorf("writing %s: %w", memberName, err)
		}
		return nil
	})
}
