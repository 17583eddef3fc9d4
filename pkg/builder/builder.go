// Package builder implements the build pipeline: read a build descriptor,
// fetch its sources concurrently into a staging directory, drive the
// build hook into a fake sysroot, and seal the result into a repository.
package builder

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/blimp-pm/blimp/pkg/archive"
	"github.com/blimp-pm/blimp/pkg/blimperr"
	"github.com/blimp-pm/blimp/pkg/model"
	"github.com/blimp-pm/blimp/pkg/repository"
	"github.com/blimp-pm/blimp/pkg/source"
)

// descriptorFileName and hookFileName are the two required files under a
// build input directory.
const descriptorFileName = "package.json"
const hookFileName = "build-hook"

// defaultBuildTriplet is used when no BUILD env var is set and the
// compiler can't be queried.
const defaultBuildTriplet = "x86_64-linux-gnu"

// Process drives a single package build from an input directory through to
// a sealed archive in an output repository.
type Process struct {
	InputPath string
	Desc      model.BuildDescriptor
	BuildDir  string
	Sysroot   string
}

// New reads the build descriptor from inputPath/package.json and allocates
// fresh build and sysroot staging directories under workDir.
func New(inputPath, workDir string) (*Process, error) {
	descPath := filepath.Join(inputPath, descriptorFileName)
	data, err := os.ReadFile(descPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", descPath, err)
	}

	var desc model.BuildDescriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("%w: %s: %s", blimperr.ErrInvalidDescriptor, descPath, err)
	}

	buildDir, err := createWorkDir(workDir)
	if err != nil {
		return nil, err
	}
	sysroot, err := createWorkDir(workDir)
	if err != nil {
		return nil, err
	}

	return &Process{InputPath: inputPath, Desc: desc, BuildDir: buildDir, Sysroot: sysroot}, nil
}

func createWorkDir(workDir string) (string, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("creating work dir %s: %w", workDir, err)
	}
	dir := filepath.Join(workDir, "blimp-"+uuid.NewString())
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating staging dir %s: %w", dir, err)
	}
	return dir, nil
}

// FetchSources stages every declared Source into p.BuildDir concurrently.
func (p *Process) FetchSources() error {
	var g errgroup.Group
	for _, src := range p.Desc.Sources {
		src := src
		g.Go(func() error {
			return source.Fetch(src, p.BuildDir)
		})
	}
	return g.Wait()
}

// HostTriplet resolves the host triplet per spec §4.9: the BUILD env var,
// else `$CC -dumpmachine` trimmed, else a static default.
func HostTriplet() string {
	if triplet := os.Getenv("BUILD"); triplet != "" {
		return triplet
	}

	cc := os.Getenv("CC")
	if cc == "" {
		cc = "cc"
	}
	out, err := exec.Command(cc, "-dumpmachine").Output()
	if err == nil {
		if triplet := strings.TrimSpace(string(out)); triplet != "" {
			return triplet
		}
	}

	fmt.Fprintf(os.Stderr, "failed to retrieve build triplet, defaulting to %s\n", defaultBuildTriplet)
	return defaultBuildTriplet
}

// JobsCount returns the recommended build parallelism: the JOBS env var if
// set and valid, else the number of available CPUs.
func JobsCount() (int, error) {
	if s := os.Getenv("JOBS"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid JOBS value %q", s)
		}
		return n, nil
	}
	return runtime.NumCPU(), nil
}

// Build invokes the input directory's build-hook with working directory
// BuildDir and the environment contract from spec §4.9. A nonzero exit is
// reported as ErrBuildFailed.
func (p *Process) Build(jobs int, build, host, target string) error {
	absInput, err := filepath.Abs(p.InputPath)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", p.InputPath, err)
	}
	hookPath := filepath.Join(absInput, hookFileName)

	cmd := exec.Command(hookPath)
	cmd.Dir = p.BuildDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(),
		"DESC_PATH="+absInput,
		"BUILD="+build,
		"HOST="+host,
		"TARGET="+target,
		"SYSROOT="+p.Sysroot,
		"PKG_NAME="+p.Desc.Package.Name,
		"PKG_VERSION="+p.Desc.Package.Version.String(),
		"PKG_DESC="+p.Desc.Package.Description,
		"JOBS="+strconv.Itoa(jobs),
	)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s", blimperr.ErrBuildFailed, err)
	}
	return nil
}

// Seal writes the package descriptor and archive into the given output
// repository, per spec §4.9 steps 5-6, and returns the archive path.
func (p *Process) Seal(repo repository.Repository) (string, error) {
	name := p.Desc.Package.Name
	v := p.Desc.Package.Version

	versionDir := filepath.Join(repo.Path, name, v.String())
	if err := os.MkdirAll(versionDir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", versionDir, err)
	}

	descData, err := json.Marshal(p.Desc.Package)
	if err != nil {
		return "", fmt.Errorf("marshaling package descriptor: %w", err)
	}
	if err := os.WriteFile(repo.DescPath(name, v), descData, 0o644); err != nil {
		return "", fmt.Errorf("writing desc: %w", err)
	}

	archivePath := repo.ArchivePath(name, v)
	out, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("creating archive %s: %w", archivePath, err)
	}
	defer out.Close()

	descriptorPath := filepath.Join(p.InputPath, descriptorFileName)
	if err := archive.Compress(out, descriptorPath, p.Sysroot, nil); err != nil {
		return "", fmt.Errorf("sealing archive: %w", err)
	}

	return archivePath, nil
}

// Cleanup removes the build and sysroot staging directories. Callers in
// debug mode should skip calling this so the directories can be inspected.
func (p *Process) Cleanup() error {
	if err := os.RemoveAll(p.BuildDir); err != nil {
		return fmt.Errorf("removing %s: %w", p.BuildDir, err)
	}
	if err := os.RemoveAll(p.Sysroot); err != nil {
		return fmt.Errorf("removing %s: %w", p.Sysroot, err)
	}
	return nil
}
