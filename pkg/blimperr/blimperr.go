// Package blimperr holds the sentinel error taxonomy shared by every Blimp
// component, so callers can use errors.Is/errors.As instead of matching on
// formatted strings.
package blimperr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidVersion is returned when a version string has a non-decimal
	// or empty component.
	ErrInvalidVersion = errors.New("invalid version")

	// ErrInvalidConstraint is returned when a constraint string doesn't match
	// any of the recognized operator prefixes or a bare version.
	ErrInvalidConstraint = errors.New("invalid version constraint")

	// ErrInvalidPackageName is returned when a package name contains
	// characters outside [A-Za-z0-9-].
	ErrInvalidPackageName = errors.New("invalid package name")

	// ErrInvalidDescriptor is returned when a package or build descriptor
	// fails to parse as JSON, or is missing required fields.
	ErrInvalidDescriptor = errors.New("invalid package descriptor")

	// ErrNotFound is returned by the resolver when a dependency cannot be
	// located in any repository, and by the environment when removing a
	// package that isn't installed.
	ErrNotFound = errors.New("package not found")

	// ErrVersionConflict is returned by the resolver when two dependents
	// require incompatible versions of the same package.
	ErrVersionConflict = errors.New("version conflict")

	// ErrDependencyCycle is returned by the resolver when the dependency
	// graph contains a cycle.
	ErrDependencyCycle = errors.New("dependency cycle")

	// ErrDependencyBreakage is returned when removing a package would leave
	// another installed package's run dependency unsatisfied.
	ErrDependencyBreakage = errors.New("dependency breakage")

	// ErrSourceFetchFailed is returned when fetching a build source fails
	// (git clone non-zero exit, unreadable local path, ...).
	ErrSourceFetchFailed = errors.New("source fetch failed")

	// ErrNetworkDisabled is returned when a Url or Git source is fetched
	// with the network build tag disabled.
	ErrNetworkDisabled = errors.New("network disabled")

	// ErrUnsupportedFormat is returned when an archive's leading bytes don't
	// match any known compression format.
	ErrUnsupportedFormat = errors.New("unsupported archive format")

	// ErrBuildFailed is returned when the build hook exits non-zero.
	ErrBuildFailed = errors.New("build failed")

	// ErrHookFailed is returned when an install/update/remove lifecycle hook
	// exits non-zero.
	ErrHookFailed = errors.New("hook failed")

	// ErrExtractionFailed is returned when unpacking a package archive
	// fails as I/O, distinct from ErrHookFailed's nonzero-exit case.
	ErrExtractionFailed = errors.New("archive extraction failed")

	// ErrLockBusy is returned when a lock file is already held by another
	// process or concurrent caller: opening an Environment for an already
	// locked sysroot, or a sourcecache entry already being fetched.
	ErrLockBusy = errors.New("resource is locked by another process")

	// ErrPathTraversal is returned when an archive member would unpack
	// outside its destination directory.
	ErrPathTraversal = errors.New("archive member escapes destination")
)

// HookPhase names a lifecycle hook for HookFailed-style diagnostics.
type HookPhase string

const (
	PreInstall  HookPhase = "pre-install-hook"
	PostInstall HookPhase = "post-install-hook"
	PreUpdate   HookPhase = "pre-update-hook"
	PostUpdate  HookPhase = "post-update-hook"
	PreRemove   HookPhase = "pre-remove-hook"
	PostRemove  HookPhase = "post-remove-hook"
)

// HTTPError carries a remote status code through the client so that callers
// can distinguish 404 (absent package) from other failures.
type HTTPError struct {
	Status int
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.URL)
}
