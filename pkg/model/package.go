// Package model holds Blimp's typed data model: package descriptors,
// dependencies, installed-package records, and build descriptors, plus the
// loader that reads a descriptor off disk.
package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blimp-pm/blimp/pkg/blimperr"
	"github.com/blimp-pm/blimp/pkg/version"
)

// Dependency is a named version constraint on another package.
type Dependency struct {
	Name    string               `json:"name"`
	Version version.Constraint `json:"version"`
}

// Package is the immutable descriptor for a published package.
type Package struct {
	Name        string       `json:"name"`
	Version     version.Version `json:"version"`
	Description string       `json:"description"`
	BuildDeps   []Dependency `json:"build_deps"`
	RunDeps     []Dependency `json:"run_deps"`
}

// Identity returns the (name, version) pair that uniquely identifies a
// package — the hash/equality key per spec §3.
func (p Package) Identity() string {
	return p.Name + "@" + p.Version.String()
}

// IsValidName reports whether s is a valid package name: nonempty, and every
// character is an ASCII letter, digit, or hyphen.
func IsValidName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return true
}

// descFileName is the on-disk file name for a package descriptor within a
// repository's name/version directory, per spec §6.
const descFileName = "desc"

// LoadPackage reads the descriptor file `dir/desc` and parses it as a
// Package. It returns (Package{}, false, nil) if the file doesn't exist, and
// a wrapped ErrInvalidDescriptor if it exists but fails to parse.
func LoadPackage(dir string) (Package, bool, error) {
	path := filepath.Join(dir, descFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Package{}, false, nil
		}
		return Package{}, false, fmt.Errorf("reading %s: %w", path, err)
	}

	var pkg Package
	if err := json.Unmarshal(data, &pkg); err != nil {
		return Package{}, false, fmt.Errorf("%w: %s: %s", blimperr.ErrInvalidDescriptor, path, err)
	}
	if !IsValidName(pkg.Name) {
		return Package{}, false, fmt.Errorf("%w: %s: name %q", blimperr.ErrInvalidDescriptor, path, pkg.Name)
	}
	return pkg, true, nil
}

// InstalledPackage is a package's descriptor plus the set of sysroot-relative
// file paths it placed on disk, as recorded at install time.
type InstalledPackage struct {
	Desc  Package  `json:"desc"`
	Files []string `json:"files"`
}
