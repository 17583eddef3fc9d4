// Package repository implements the on-disk package repository layout:
// name/version/{desc,archive} directories, package lookup, listing, and
// max-version constraint resolution.
package repository

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/lo"

	"github.com/blimp-pm/blimp/pkg/blimperr"
	"github.com/blimp-pm/blimp/pkg/model"
	"github.com/blimp-pm/blimp/pkg/version"
)

// archiveFileName and descFileName are the two files stored per
// name/version directory.
const archiveFileName = "archive"
const descFileName = "desc"

// Repository is rooted at a directory on disk. Loading is lazy: no
// validation is performed until an operation touches the filesystem.
type Repository struct {
	Path string

	// Remote is the host string this repository mirrors, if any. Empty
	// means the repository is purely local.
	Remote string
}

// New returns a Repository rooted at path.
func New(path string) Repository {
	return Repository{Path: path}
}

// NewRemoteMirror returns a Repository rooted at path and linked to the
// given remote host.
func NewRemoteMirror(path, remoteHost string) Repository {
	return Repository{Path: path, Remote: remoteHost}
}

// versionDir mints the name/version directory path.
func (r Repository) versionDir(name string, v version.Version) string {
	return filepath.Join(r.Path, name, v.String())
}

// ArchivePath mints the path to a package's archive under this repository.
func (r Repository) ArchivePath(name string, v version.Version) string {
	return filepath.Join(r.versionDir(name, v), archiveFileName)
}

// DescPath mints the path to a package's descriptor under this repository.
func (r Repository) DescPath(name string, v version.Version) string {
	return filepath.Join(r.versionDir(name, v), descFileName)
}

// GetPackage reads the descriptor for name@v. It returns (Package{}, false,
// nil) if the package isn't present, and a wrapped ErrInvalidDescriptor if
// present but unparsable.
func (r Repository) GetPackage(name string, v version.Version) (model.Package, bool, error) {
	return model.LoadPackage(r.versionDir(name, v))
}

// IsInCache reports whether the archive for name@v exists on disk.
func (r Repository) IsInCache(name string, v version.Version) bool {
	_, err := os.Stat(r.ArchivePath(name, v))
	return err == nil
}

// ListPackages walks the repository root, treating each top-level
// directory as a package name and each of its subdirectories that parses
// as a Version as a published version, and returns every descriptor found.
func (r Repository) ListPackages() ([]model.Package, error) {
	nameEntries, err := os.ReadDir(r.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", r.Path, err)
	}

	var packages []model.Package
	for _, nameEntry := range nameEntries {
		if !nameEntry.IsDir() {
			continue
		}
		name := nameEntry.Name()
		namePath := filepath.Join(r.Path, name)

		versionEntries, err := os.ReadDir(namePath)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", namePath, err)
		}

		for _, versionEntry := range versionEntries {
			if !versionEntry.IsDir() {
				continue
			}
			if _, err := version.Parse(versionEntry.Name()); err != nil {
				continue
			}

			pkg, ok, err := model.LoadPackage(filepath.Join(namePath, versionEntry.Name()))
			if err != nil {
				return nil, err
			}
			if ok {
				packages = append(packages, pkg)
			}
		}
	}
	return packages, nil
}

// GetPackageWithConstraint picks the maximum version of name that satisfies
// constraint (or the maximum overall version when constraint is Any), and
// returns its descriptor. It returns (Package{}, false, nil) if no version
// of name is present or none satisfies constraint.
func (r Repository) GetPackageWithConstraint(name string, constraint version.Constraint) (model.Package, bool, error) {
	namePath := filepath.Join(r.Path, name)
	versionEntries, err := os.ReadDir(namePath)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Package{}, false, nil
		}
		return model.Package{}, false, fmt.Errorf("%w: listing %s: %s", blimperr.ErrNotFound, namePath, err)
	}

	var candidates []version.Version
	for _, entry := range versionEntries {
		if !entry.IsDir() {
			continue
		}
		v, err := version.Parse(entry.Name())
		if err != nil {
			continue
		}
		if constraint.IsValid(v) {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return model.Package{}, false, nil
	}

	best := lo.MaxBy(candidates, func(a, b version.Version) bool {
		return a.Compare(b) > 0
	})

	return r.GetPackage(name, best)
}
