// Package environment implements the installation engine: exclusive-lock
// sysroot management, archive extraction with file tracking, hook
// orchestration, and install/update/remove of packages into a target
// system root.
package environment

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blimp-pm/blimp/pkg/archive"
	"github.com/blimp-pm/blimp/pkg/blimperr"
	"github.com/blimp-pm/blimp/pkg/model"
)

// blimpDir is the sysroot-relative directory holding Blimp's own state.
const blimpDir = "var/lib/blimp"

const lockFileName = ".lock"
const installedFileName = "installed"
const remotesFileName = "remotes_list"
const mirrorsDirName = "mirrors"

// Environment holds an exclusive lock on a sysroot for the lifetime of the
// process that opened it.
type Environment struct {
	Sysroot  string
	lockPath string
}

// Open canonicalizes sysroot and attempts to exclusively create its
// lockfile. If the lockfile already exists, it returns ErrLockBusy.
func Open(sysroot string) (*Environment, error) {
	abs, err := filepath.Abs(sysroot)
	if err != nil {
		return nil, fmt.Errorf("resolving sysroot %s: %w", sysroot, err)
	}

	stateDir := filepath.Join(abs, blimpDir)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", stateDir, err)
	}

	lockPath := filepath.Join(stateDir, lockFileName)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", blimperr.ErrLockBusy, lockPath)
		}
		return nil, fmt.Errorf("creating lockfile %s: %w", lockPath, err)
	}
	f.Close()

	return &Environment{Sysroot: abs, lockPath: lockPath}, nil
}

// Close releases the sysroot lock by deleting the lockfile.
func (e *Environment) Close() error {
	if err := os.Remove(e.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing lockfile %s: %w", e.lockPath, err)
	}
	return nil
}

func (e *Environment) installedDBPath() string {
	return filepath.Join(e.Sysroot, blimpDir, installedFileName)
}

// RemotesPath is the sysroot-relative path to the persisted remotes list.
func (e *Environment) RemotesPath() string {
	return filepath.Join(e.Sysroot, blimpDir, remotesFileName)
}

// MirrorPath is the sysroot-relative local repository directory that caches
// a remote's fetched package list, keyed by host, so update's results can
// be resolved against by a later install without another round-trip.
func (e *Environment) MirrorPath(host string) string {
	return filepath.Join(e.Sysroot, blimpDir, mirrorsDirName, base64.URLEncoding.EncodeToString([]byte(host)))
}

// loadDB reads the installed-package database, returning an empty map if
// it doesn't exist yet.
func (e *Environment) loadDB() (map[string]model.InstalledPackage, error) {
	data, err := os.ReadFile(e.installedDBPath())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]model.InstalledPackage{}, nil
		}
		return nil, fmt.Errorf("reading installed DB: %w", err)
	}

	db := map[string]model.InstalledPackage{}
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("%w: installed DB: %s", blimperr.ErrInvalidDescriptor, err)
	}
	return db, nil
}

// saveDB rewrites the installed-package database in full.
func (e *Environment) saveDB(db map[string]model.InstalledPackage) error {
	data, err := json.Marshal(db)
	if err != nil {
		return fmt.Errorf("marshaling installed DB: %w", err)
	}
	if err := os.WriteFile(e.installedDBPath(), data, 0o644); err != nil {
		return fmt.Errorf("writing installed DB: %w", err)
	}
	return nil
}

// GetInstalled returns the installed record for name, if any.
func (e *Environment) GetInstalled(name string) (model.InstalledPackage, bool, error) {
	db, err := e.loadDB()
	if err != nil {
		return model.InstalledPackage{}, false, err
	}
	ip, ok := db[name]
	return ip, ok, nil
}

// ListInstalled returns every installed package record.
func (e *Environment) ListInstalled() (map[string]model.InstalledPackage, error) {
	return e.loadDB()
}

// runHook executes the named hook file if it exists, with SYSROOT set to
// the environment's sysroot. It returns true if the hook doesn't exist or
// exits successfully, false on nonzero exit.
func (e *Environment) runHook(hookPath string) (bool, error) {
	if _, err := os.Stat(hookPath); err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("stat %s: %w", hookPath, err)
	}

	cmd := exec.Command(hookPath)
	cmd.Env = append(os.Environ(), "SYSROOT="+e.Sysroot)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run() == nil, nil
}

// Install unpacks archivePath's data/ tree into the sysroot, runs the
// pre/post-install hooks, and records the package in the installed DB.
// Hook failure or extraction failure is fatal and leaves the DB untouched.
func (e *Environment) Install(pkg model.Package, archivePath string) error {
	tmpDir, err := os.MkdirTemp("", "blimp-install-*")
	if err != nil {
		return fmt.Errorf("creating extraction dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := archive.Decompress(archivePath, tmpDir); err != nil {
		return fmt.Errorf("%w: extracting %s: %s", blimperr.ErrExtractionFailed, archivePath, err)
	}

	ok, err := e.runHook(filepath.Join(tmpDir, string(blimperr.PreInstall)))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: pre-install hook for %s", blimperr.ErrHookFailed, pkg.Name)
	}

	files, err := installDataTree(filepath.Join(tmpDir, archive.DataDir), e.Sysroot)
	if err != nil {
		return fmt.Errorf("installing files for %s: %w", pkg.Name, err)
	}

	ok, err = e.runHook(filepath.Join(tmpDir, string(blimperr.PostInstall)))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: post-install hook for %s", blimperr.ErrHookFailed, pkg.Name)
	}

	db, err := e.loadDB()
	if err != nil {
		return err
	}
	db[pkg.Name] = model.InstalledPackage{Desc: pkg, Files: files}
	return e.saveDB(db)
}

// installDataTree copies dataDir's contents into sysroot, returning the
// sysroot-relative paths of every file and directory it created, in the
// order they were visited.
func installDataTree(dataDir, sysroot string) ([]string, error) {
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		return nil, nil
	}

	var files []string
	err := filepath.Walk(dataDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dataDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		target := filepath.Join(sysroot, rel)

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Symlink(link, target); err != nil {
				return err
			}
		case info.IsDir():
			if err := os.MkdirAll(target, info.Mode().Perm()); err != nil {
				return err
			}
		default:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := copyRegularFile(path, target, info.Mode()); err != nil {
				return err
			}
		}

		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func copyRegularFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	os.Remove(dst)
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

// Remove deletes every tracked file of an installed package and drops its
// DB entry. Files are removed deepest-first so directories empty out
// before their parents are attempted. Missing files and non-empty
// directories are tolerated (best-effort).
//
// archivePath, if non-empty, is the package's original archive; its
// pre-remove hook runs before any file is touched and its post-remove hook
// after the files are removed, both with the same fatal-on-failure
// semantics as install. Passing "" skips the hook phase when the archive
// is no longer available.
func (e *Environment) Remove(name, archivePath string) error {
	db, err := e.loadDB()
	if err != nil {
		return err
	}
	installed, ok := db[name]
	if !ok {
		return fmt.Errorf("%w: %s is not installed", blimperr.ErrNotFound, name)
	}

	var hookPostRemove string
	if archivePath != "" {
		tmpDir, err := os.MkdirTemp("", "blimp-remove-*")
		if err != nil {
			return fmt.Errorf("creating extraction dir: %w", err)
		}
		defer os.RemoveAll(tmpDir)

		if err := archive.Decompress(archivePath, tmpDir); err != nil {
			return fmt.Errorf("%w: extracting %s: %s", blimperr.ErrExtractionFailed, archivePath, err)
		}

		if ok, err := e.runHook(filepath.Join(tmpDir, string(blimperr.PreRemove))); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: pre-remove hook for %s", blimperr.ErrHookFailed, name)
		}

		hookPostRemove = filepath.Join(tmpDir, string(blimperr.PostRemove))
	}

	paths := append([]string{}, installed.Files...)
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))

	for _, rel := range paths {
		target := filepath.Join(e.Sysroot, filepath.FromSlash(rel))
		if err := os.Remove(target); err != nil {
			if os.IsNotExist(err) || isDirNotEmpty(err) {
				continue
			}
			return fmt.Errorf("removing %s: %w", target, err)
		}
	}

	if hookPostRemove != "" {
		if ok, err := e.runHook(hookPostRemove); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: post-remove hook for %s", blimperr.ErrHookFailed, name)
		}
	}

	delete(db, name)
	return e.saveDB(db)
}

func isDirNotEmpty(err error) bool {
	return strings.Contains(err.Error(), "directory not empty")
}

// Update removes the currently installed version of pkg (if any, using
// oldArchivePath for its remove hooks) and installs the new archive,
// holding the environment's single lock for the whole operation. Per spec
// §4.10, this is not required to be transactional.
func (e *Environment) Update(pkg model.Package, archivePath, oldArchivePath string) error {
	if _, ok, err := e.GetInstalled(pkg.Name); err != nil {
		return err
	} else if ok {
		if err := e.Remove(pkg.Name, oldArchivePath); err != nil {
			return err
		}
	}
	return e.Install(pkg, archivePath)
}
