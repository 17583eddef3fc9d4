// Package resolver implements the dependency resolver: given a set of root
// packages, it walks their run-dependency graphs and produces the full set
// of packages (each paired with the repository that provides it) needed to
// satisfy every version constraint, detecting conflicts and cycles.
package resolver

import (
	"fmt"
	"strings"

	"github.com/blimp-pm/blimp/pkg/blimperr"
	"github.com/blimp-pm/blimp/pkg/model"
	"github.com/blimp-pm/blimp/pkg/repository"
	"github.com/blimp-pm/blimp/pkg/version"
)

// Root is a package already located in a repository, used as a starting
// point for resolution.
type Root struct {
	Package model.Package
	Repo    repository.Repository
}

// Entry is a resolved package paired with the repository it came from.
type Entry struct {
	Package model.Package
	Repo    repository.Repository
}

// LookupFunc resolves a dependency by name and constraint to a candidate
// package and its repository. found is false when nothing satisfies the
// constraint.
type LookupFunc func(name string, constraint version.Constraint) (pkg model.Package, repo repository.Repository, found bool, err error)

// NotFoundError records a dependency that no configured source could
// satisfy.
type NotFoundError struct {
	Name       string
	Constraint version.Constraint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("package %q satisfying %s not found", e.Name, e.Constraint.String())
}

func (e *NotFoundError) Unwrap() error { return blimperr.ErrNotFound }

// VersionConflictError records two packages sharing a name whose versions
// can't simultaneously satisfy a dependent's constraint.
type VersionConflictError struct {
	Name     string
	Required version.Constraint
	Other    version.Version
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("package %q: %s does not satisfy %s", e.Name, e.Other.String(), e.Required.String())
}

func (e *VersionConflictError) Unwrap() error { return blimperr.ErrVersionConflict }

// DependencyCycleError records a cycle detected in the run-dependency
// graph, with Path naming the packages visited from the cycle's start back
// to itself.
type DependencyCycleError struct {
	Path []string
}

func (e *DependencyCycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " -> "))
}

func (e *DependencyCycleError) Unwrap() error { return blimperr.ErrDependencyCycle }

// Errors aggregates every error emitted during a single resolution.
type Errors []error

func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// resolution holds the mutable state threaded through the recursive walk.
type resolution struct {
	lookup  LookupFunc
	result  map[string]Entry
	visited map[string]bool // currently on the path from a root (cycle detection)
	errs    Errors
}

// Resolve walks the run-dependency graph of every root package via lookup,
// returning the full set of packages (keyed by Package.Name) needed
// to satisfy all constraints, and every repository providing one. Build
// dependencies are never resolved. If any NotFound, VersionConflict, or
// DependencyCycle occurs, all such errors are collected and returned
// together; partial results are still returned alongside them so callers
// MAY inspect what did resolve.
func Resolve(roots []Root, lookup LookupFunc) (map[string]Entry, error) {
	r := &resolution{
		lookup:  lookup,
		result:  map[string]Entry{},
		visited: map[string]bool{},
	}

	for _, root := range roots {
		r.result[root.Package.Name] = Entry{Package: root.Package, Repo: root.Repo}
	}

	for _, root := range roots {
		r.walk(root.Package, []string{root.Package.Name})
	}

	if len(r.errs) > 0 {
		return r.result, r.errs
	}
	return r.result, nil
}

func (r *resolution) walk(pkg model.Package, path []string) {
	if r.visited[pkg.Name] {
		r.errs = append(r.errs, &DependencyCycleError{Path: append(append([]string{}, path...), pkg.Name)})
		return
	}
	r.visited[pkg.Name] = true
	defer delete(r.visited, pkg.Name)

	for _, dep := range pkg.RunDeps {
		if r.visited[dep.Name] {
			r.errs = append(r.errs, &DependencyCycleError{Path: append(append([]string{}, path...), dep.Name)})
			continue
		}
		if existing, ok := r.result[dep.Name]; ok {
			if !dep.Version.IsValid(existing.Package.Version) {
				r.errs = append(r.errs, &VersionConflictError{
					Name:     dep.Name,
					Required: dep.Version,
					Other:    existing.Package.Version,
				})
			}
			continue
		}

		candidate, repo, found, err := r.lookup(dep.Name, dep.Version)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("resolving %s: %w", dep.Name, err))
			continue
		}
		if !found {
			r.errs = append(r.errs, &NotFoundError{Name: dep.Name, Constraint: dep.Version})
			continue
		}

		r.result[dep.Name] = Entry{Package: candidate, Repo: repo}
		r.walk(candidate, append(append([]string{}, path...), dep.Name))
	}
}
