// Package orchestrator implements the install/update/remove/remote-*
// command library that drives the lower-level packages (resolver,
// repository, remote, environment) into the end-user operations described
// in spec §4.12. It does not implement a CLI or interactive prompt; Plan is
// a pure data value a caller renders and confirms before Apply runs.
package orchestrator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"

	"github.com/blimp-pm/blimp/pkg/blimperr"
	"github.com/blimp-pm/blimp/pkg/environment"
	"github.com/blimp-pm/blimp/pkg/fetch"
	"github.com/blimp-pm/blimp/pkg/model"
	"github.com/blimp-pm/blimp/pkg/remote"
	"github.com/blimp-pm/blimp/pkg/repository"
	"github.com/blimp-pm/blimp/pkg/resolver"
	"github.com/blimp-pm/blimp/pkg/version"
)

// Orchestrator wires an Environment, a set of local repositories, and a set
// of configured remotes together for the command operations below.
type Orchestrator struct {
	Env       *environment.Environment
	Repos     []repository.Repository
	Remotes   []remote.Remote
	HTTP      *http.Client
	Log       *logrus.Logger
}

// New builds an Orchestrator. If log is nil, logrus.StandardLogger() is used.
func New(env *environment.Environment, repos []repository.Repository, remotes []remote.Remote, log *logrus.Logger) *Orchestrator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Orchestrator{Env: env, Repos: repos, Remotes: remotes, HTTP: fetch.NewHTTPClient(0), Log: log}
}

// PlanAction tags what a PlanItem represents.
type PlanAction int

const (
	ActionInstall PlanAction = iota
	ActionUpdate
	ActionRemove
)

func (a PlanAction) String() string {
	switch a {
	case ActionInstall:
		return "install"
	case ActionUpdate:
		return "update"
	case ActionRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// PlanItem is one package's worth of work in a Plan.
type PlanItem struct {
	Action     PlanAction
	Package    model.Package
	Repo       repository.Repository
	Cached     bool
	DownloadSize uint64 // only meaningful when !Cached
}

// String renders the item the way the original CLI prints a plan line,
// e.g. "- libm (1.0.0) - download size: 4.2MB" or "- libm (1.0.0) - cached".
// Remove items carry no size information and print just the identity.
func (item PlanItem) String() string {
	if item.Action == ActionRemove {
		return fmt.Sprintf("- %s (%s)", item.Package.Name, item.Package.Version.String())
	}
	if item.Cached {
		return fmt.Sprintf("- %s (%s) - cached", item.Package.Name, item.Package.Version.String())
	}
	return fmt.Sprintf("- %s (%s) - download size: %s", item.Package.Name, item.Package.Version.String(), units.HumanSize(float64(item.DownloadSize)))
}

// Plan is the full set of work an install/update/remove command would
// perform, computed before anything is mutated so a caller can display and
// confirm it.
type Plan struct {
	Items []PlanItem
}

// TotalDownloadSize sums the download size of every non-cached item.
func (p Plan) TotalDownloadSize() uint64 {
	var total uint64
	for _, item := range p.Items {
		if !item.Cached {
			total += item.DownloadSize
		}
	}
	return total
}

// String renders the plan the way the original client CLI does: one line
// per package, followed by a total download size line for install/update
// plans. A plan's action header and size footer are driven by its first
// item, since a single Plan is never a mix of install and remove actions.
func (p Plan) String() string {
	if len(p.Items) == 0 {
		return "Nothing to do.\n"
	}

	var header string
	switch p.Items[0].Action {
	case ActionRemove:
		header = "Packages to be removed:\n"
	case ActionUpdate:
		header = "Packages to be updated:\n"
	default:
		header = "Packages to be installed:\n"
	}

	s := header
	for _, item := range p.Items {
		s += item.String() + "\n"
	}
	if p.Items[0].Action != ActionRemove {
		s += fmt.Sprintf("Total download size: %s\n", units.HumanSize(float64(p.TotalDownloadSize())))
	}
	return s
}

// lookup resolves name against the configured local repositories, then
// falls back to each remote's mirrored package list, per spec.md's
// "resolve each name against the union of local repos and remotes".
func (o *Orchestrator) lookup(name string, constraint version.Constraint) (model.Package, repository.Repository, bool, error) {
	for _, repo := range o.Repos {
		pkg, found, err := repo.GetPackageWithConstraint(name, constraint)
		if err != nil {
			return model.Package{}, repository.Repository{}, false, err
		}
		if found {
			return pkg, repo, true, nil
		}
	}

	for _, r := range o.Remotes {
		repo := o.mirrorRepo(r.Host)
		pkg, found, err := repo.GetPackageWithConstraint(name, constraint)
		if err != nil {
			return model.Package{}, repository.Repository{}, false, err
		}
		if found {
			return pkg, repo, true, nil
		}
	}
	return model.Package{}, repository.Repository{}, false, nil
}

// mirrorRepo is the local repository that caches r's fetched package list
// (populated by Update), linked back to r.Host so a resolved entry can be
// downloaded from the right remote.
func (o *Orchestrator) mirrorRepo(host string) repository.Repository {
	return repository.NewRemoteMirror(o.Env.MirrorPath(host), host)
}

// PlanInstall resolves names against the configured local repositories,
// then the remotes' mirror repositories (see lookup), walking
// run-dependencies, and returns the Plan of everything that would
// need installing. Packages already satisfying an installed version still
// appear in the plan (spec's "reinstall" behavior, per
// original_source/client/src/install.rs).
func (o *Orchestrator) PlanInstall(names []string) (Plan, error) {
	var roots []resolver.Root
	var notFound []string

	for _, name := range names {
		pkg, repo, found, err := o.lookup(name, version.AnyConstraint())
		if err != nil {
			return Plan{}, err
		}
		if !found {
			notFound = append(notFound, name)
			continue
		}
		roots = append(roots, resolver.Root{Package: pkg, Repo: repo})
	}
	if len(notFound) > 0 {
		return Plan{}, fmt.Errorf("%w: %v", blimperr.ErrNotFound, notFound)
	}

	result, err := resolver.Resolve(roots, o.lookup)
	if err != nil {
		return Plan{}, err
	}

	names2 := make([]string, 0, len(result))
	for name := range result {
		names2 = append(names2, name)
	}
	sort.Strings(names2)

	plan := Plan{}
	for _, name := range names2 {
		entry := result[name]
		item := PlanItem{Action: ActionInstall, Package: entry.Package, Repo: entry.Repo}
		if entry.Repo.IsInCache(entry.Package.Name, entry.Package.Version) {
			item.Cached = true
		} else if entry.Repo.Remote != "" {
			size, err := o.remoteByHost(entry.Repo.Remote).GetSize(o.HTTP, entry.Package.Name, entry.Package.Version)
			if err != nil {
				return Plan{}, fmt.Errorf("getting download size for %s: %w", name, err)
			}
			item.DownloadSize = size
		}
		plan.Items = append(plan.Items, item)
	}
	return plan, nil
}

func (o *Orchestrator) remoteByHost(host string) remote.Remote {
	for _, r := range o.Remotes {
		if r.Host == host {
			return r
		}
	}
	return remote.New(host)
}

// ApplyInstall downloads (concurrently) every non-cached plan item from its
// repository's remote, then installs every item sequentially in
// deterministic name order while holding the environment lock, per spec §5's
// ordering guarantee ("all downloads complete before any extraction
// begins").
func (o *Orchestrator) ApplyInstall(plan Plan) error {
	pending := make([]PlanItem, 0, len(plan.Items))
	for _, item := range plan.Items {
		if !item.Cached && item.Repo.Remote != "" {
			pending = append(pending, item)
		}
	}

	if err := o.downloadAll(pending); err != nil {
		return err
	}

	sorted := append([]PlanItem{}, plan.Items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Package.Name < sorted[j].Package.Name })

	for _, item := range sorted {
		archivePath := item.Repo.ArchivePath(item.Package.Name, item.Package.Version)
		o.Log.WithFields(logrus.Fields{"name": item.Package.Name, "version": item.Package.Version.String()}).Info("installing package")
		if err := o.Env.Install(item.Package, archivePath); err != nil {
			return fmt.Errorf("installing %s: %w", item.Package.Name, err)
		}
	}
	return nil
}

func (o *Orchestrator) downloadAll(items []PlanItem) error {
	errs := make(chan error, len(items))
	for _, item := range items {
		item := item
		go func() {
			r := o.remoteByHost(item.Repo.Remote)
			errs <- r.FetchArchive(o.HTTP, item.Package.Name, item.Package.Version, item.Repo, nil)
		}()
	}
	var firstErr error
	for range items {
		if err := <-errs; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PlanRemove checks that removing names would not break any remaining
// installed package's run dependencies, per spec §4.12's DependencyBreakage
// requirement, and returns the removal plan.
func (o *Orchestrator) PlanRemove(names []string) (Plan, error) {
	installed, err := o.Env.ListInstalled()
	if err != nil {
		return Plan{}, err
	}

	toRemove := map[string]bool{}
	var notFound []string
	for _, name := range names {
		if _, ok := installed[name]; !ok {
			notFound = append(notFound, name)
			continue
		}
		toRemove[name] = true
	}
	if len(notFound) > 0 {
		return Plan{}, fmt.Errorf("%w: %v", blimperr.ErrNotFound, notFound)
	}

	remaining := map[string]model.InstalledPackage{}
	for name, ip := range installed {
		if !toRemove[name] {
			remaining[name] = ip
		}
	}

	if broken := unmatchedDependencies(remaining); len(broken) > 0 {
		return Plan{}, fmt.Errorf("%w: %v", blimperr.ErrDependencyBreakage, broken)
	}

	sortedNames := append([]string{}, names...)
	sort.Strings(sortedNames)

	plan := Plan{}
	for _, name := range sortedNames {
		plan.Items = append(plan.Items, PlanItem{Action: ActionRemove, Package: installed[name].Desc})
	}
	return plan, nil
}

// unmatchedDependencies returns a description of every run dependency among
// remaining that remaining itself no longer satisfies.
func unmatchedDependencies(remaining map[string]model.InstalledPackage) []string {
	var broken []string
	for _, ip := range remaining {
		for _, dep := range ip.Desc.RunDeps {
			other, ok := remaining[dep.Name]
			if !ok || !dep.Version.IsValid(other.Desc.Version) {
				broken = append(broken, fmt.Sprintf("%s requires %s %s", ip.Desc.Name, dep.Name, dep.Version.String()))
			}
		}
	}
	sort.Strings(broken)
	return broken
}

// ApplyRemove removes every item in plan from the environment, in any
// order (spec §4.12 does not require an order once breakage is ruled out
// by PlanRemove). archivePaths optionally supplies each package's original
// archive (by name) so remove hooks can run; a name absent from the map
// skips its hook phase.
func (o *Orchestrator) ApplyRemove(plan Plan, archivePaths map[string]string) error {
	for _, item := range plan.Items {
		o.Log.WithField("name", item.Package.Name).Info("removing package")
		if err := o.Env.Remove(item.Package.Name, archivePaths[item.Package.Name]); err != nil {
			return fmt.Errorf("removing %s: %w", item.Package.Name, err)
		}
	}
	return nil
}

// RemoteListEntry pairs a remote with its MOTD (or an error if unreachable),
// mirroring original_source/client/src/remote.rs's "status: UP/DOWN" display.
type RemoteListEntry struct {
	Host string
	MOTD string
	Up   bool
}

// ListRemotes fetches the MOTD of every configured remote concurrently.
func (o *Orchestrator) ListRemotes() []RemoteListEntry {
	entries := make([]RemoteListEntry, len(o.Remotes))
	done := make(chan int, len(o.Remotes))
	for i, r := range o.Remotes {
		i, r := i, r
		go func() {
			motd, err := r.FetchMOTD(o.HTTP)
			entries[i] = RemoteListEntry{Host: r.Host, MOTD: motd, Up: err == nil}
			done <- i
		}()
	}
	for range o.Remotes {
		<-done
	}
	return entries
}

// AddRemotes adds hosts to the persisted remotes set, de-duplicating, per
// original_source/client/src/remote.rs's add().
func (o *Orchestrator) AddRemotes(hosts []string) error {
	set, err := remote.LoadRemotes(o.Env.RemotesPath())
	if err != nil {
		return err
	}
	for _, host := range hosts {
		if _, exists := set[host]; exists {
			o.Log.Warnf("remote %q already exists", host)
			continue
		}
		set[host] = struct{}{}
	}
	return remote.SaveRemotes(o.Env.RemotesPath(), set)
}

// RemoveRemotes removes hosts from the persisted remotes set.
func (o *Orchestrator) RemoveRemotes(hosts []string) error {
	set, err := remote.LoadRemotes(o.Env.RemotesPath())
	if err != nil {
		return err
	}
	for _, host := range hosts {
		if _, exists := set[host]; !exists {
			o.Log.Warnf("remote %q not found", host)
			continue
		}
		delete(set, host)
	}
	return remote.SaveRemotes(o.Env.RemotesPath(), set)
}

// RemoteFetchedList is one remote's package listing, as fetched by Update.
type RemoteFetchedList struct {
	Host     string
	Packages []model.Package
	Err      error
}

// Update fetches every configured remote's package list concurrently and
// reconciles it into that remote's local mirror repository, per spec
// §4.12's update(none) command ("reconcile with local cache: store the
// fetched lists indexed by remote"), so a later install can resolve
// against it without another round-trip.
func (o *Orchestrator) Update() []RemoteFetchedList {
	results := make([]RemoteFetchedList, len(o.Remotes))
	done := make(chan int, len(o.Remotes))
	for i, r := range o.Remotes {
		i, r := i, r
		go func() {
			packages, err := r.FetchList(o.HTTP)
			if err == nil {
				err = o.storeMirrorList(r.Host, packages)
			}
			results[i] = RemoteFetchedList{Host: r.Host, Packages: packages, Err: err}
			done <- i
		}()
	}
	for range o.Remotes {
		<-done
	}
	return results
}

// storeMirrorList writes each fetched package's descriptor into host's
// mirror repository, indexed by name/version the same way a local
// repository stores one, so lookup can find it without a network call.
func (o *Orchestrator) storeMirrorList(host string, packages []model.Package) error {
	repo := o.mirrorRepo(host)
	for _, pkg := range packages {
		descPath := repo.DescPath(pkg.Name, pkg.Version)
		if err := os.MkdirAll(filepath.Dir(descPath), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(descPath), err)
		}
		data, err := json.Marshal(pkg)
		if err != nil {
			return fmt.Errorf("marshaling %s: %w", pkg.Name, err)
		}
		if err := os.WriteFile(descPath, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", descPath, err)
		}
	}
	return nil
}
