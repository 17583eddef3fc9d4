package orchestrator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blimp-pm/blimp/pkg/archive"
	"github.com/blimp-pm/blimp/pkg/environment"
	"github.com/blimp-pm/blimp/pkg/model"
	"github.com/blimp-pm/blimp/pkg/remote"
	"github.com/blimp-pm/blimp/pkg/repository"
	"github.com/blimp-pm/blimp/pkg/version"
)

func writeDesc(t *testing.T, repo repository.Repository, pkg model.Package) {
	t.Helper()
	dir := filepath.Dir(repo.DescPath(pkg.Name, pkg.Version))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	data, err := json.Marshal(pkg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(repo.DescPath(pkg.Name, pkg.Version), data, 0o644))
}

func writeArchive(t *testing.T, repo repository.Repository, pkg model.Package, files map[string]string) {
	t.Helper()
	staging := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(staging, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	descPath := filepath.Join(t.TempDir(), "package.json")
	require.NoError(t, os.WriteFile(descPath, []byte(`{}`), 0o644))

	out, err := os.Create(repo.ArchivePath(pkg.Name, pkg.Version))
	require.NoError(t, err)
	require.NoError(t, archive.Compress(out, descPath, staging, nil))
	require.NoError(t, out.Close())
}

func TestPlanInstallCachedPackage(t *testing.T) {
	repoDir := t.TempDir()
	repo := repository.New(repoDir)

	pkg := model.Package{Name: "libm", Version: version.MustParse("1.0")}
	writeDesc(t, repo, pkg)
	writeArchive(t, repo, pkg, map[string]string{"usr/lib/libm.so": "x"})

	sysroot := t.TempDir()
	env, err := environment.Open(sysroot)
	require.NoError(t, err)
	defer env.Close()

	o := New(env, []repository.Repository{repo}, nil, nil)
	plan, err := o.PlanInstall([]string{"libm"})
	require.NoError(t, err)
	require.Len(t, plan.Items, 1)
	assert.True(t, plan.Items[0].Cached)
}

func TestPlanInstallNotFound(t *testing.T) {
	repoDir := t.TempDir()
	repo := repository.New(repoDir)

	sysroot := t.TempDir()
	env, err := environment.Open(sysroot)
	require.NoError(t, err)
	defer env.Close()

	o := New(env, []repository.Repository{repo}, nil, nil)
	_, err = o.PlanInstall([]string{"missing"})
	assert.Error(t, err)
}

func TestApplyInstallInstallsCachedPlan(t *testing.T) {
	repoDir := t.TempDir()
	repo := repository.New(repoDir)

	pkg := model.Package{Name: "libm", Version: version.MustParse("1.0")}
	writeDesc(t, repo, pkg)
	writeArchive(t, repo, pkg, map[string]string{"usr/lib/libm.so": "x"})

	sysroot := t.TempDir()
	env, err := environment.Open(sysroot)
	require.NoError(t, err)
	defer env.Close()

	o := New(env, []repository.Repository{repo}, nil, nil)
	plan, err := o.PlanInstall([]string{"libm"})
	require.NoError(t, err)

	require.NoError(t, o.ApplyInstall(plan))

	data, err := os.ReadFile(filepath.Join(sysroot, "usr", "lib", "libm.so"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestPlanRemoveDetectsDependencyBreakage(t *testing.T) {
	sysroot := t.TempDir()
	env, err := environment.Open(sysroot)
	require.NoError(t, err)
	defer env.Close()

	repoDir := t.TempDir()
	repo := repository.New(repoDir)

	libc := model.Package{Name: "libc", Version: version.MustParse("1.0")}
	writeArchive(t, repo, libc, map[string]string{"lib/libc.so": "c"})
	require.NoError(t, env.Install(libc, repo.ArchivePath(libc.Name, libc.Version)))

	constraint, err := version.ParseConstraint("*")
	require.NoError(t, err)
	libm := model.Package{Name: "libm", Version: version.MustParse("1.0"), RunDeps: []model.Dependency{{Name: "libc", Version: constraint}}}
	writeArchive(t, repo, libm, map[string]string{"lib/libm.so": "m"})
	require.NoError(t, env.Install(libm, repo.ArchivePath(libm.Name, libm.Version)))

	o := New(env, []repository.Repository{repo}, nil, nil)
	_, err = o.PlanRemove([]string{"libc"})
	assert.Error(t, err)
}

func TestPlanAndApplyRemove(t *testing.T) {
	sysroot := t.TempDir()
	env, err := environment.Open(sysroot)
	require.NoError(t, err)
	defer env.Close()

	repoDir := t.TempDir()
	repo := repository.New(repoDir)

	libm := model.Package{Name: "libm", Version: version.MustParse("1.0")}
	writeArchive(t, repo, libm, map[string]string{"lib/libm.so": "m"})
	require.NoError(t, env.Install(libm, repo.ArchivePath(libm.Name, libm.Version)))

	o := New(env, []repository.Repository{repo}, nil, nil)
	plan, err := o.PlanRemove([]string{"libm"})
	require.NoError(t, err)
	require.Len(t, plan.Items, 1)

	require.NoError(t, o.ApplyRemove(plan, nil))

	_, ok, err := env.GetInstalled("libm")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddAndRemoveRemotesDeduplicates(t *testing.T) {
	sysroot := t.TempDir()
	env, err := environment.Open(sysroot)
	require.NoError(t, err)
	defer env.Close()

	o := New(env, nil, nil, nil)
	require.NoError(t, o.AddRemotes([]string{"mirror.example.com"}))
	require.NoError(t, o.AddRemotes([]string{"mirror.example.com"}))

	set, err := remote.LoadRemotes(env.RemotesPath())
	require.NoError(t, err)
	assert.Len(t, set, 1)

	require.NoError(t, o.RemoveRemotes([]string{"mirror.example.com"}))
	set, err = remote.LoadRemotes(env.RemotesPath())
	require.NoError(t, err)
	assert.Len(t, set, 0)
}

func TestUpdateThenPlanInstallResolvesAgainstRemote(t *testing.T) {
	remoteRepoDir := t.TempDir()
	remoteRepo := repository.New(remoteRepoDir)

	pkg := model.Package{Name: "libm", Version: version.MustParse("1.0")}
	writeDesc(t, remoteRepo, pkg)
	writeArchive(t, remoteRepo, pkg, map[string]string{"usr/lib/libm.so": "x"})

	srv := remote.NewServer(remoteRepo, "hello", nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	sysroot := t.TempDir()
	env, err := environment.Open(sysroot)
	require.NoError(t, err)
	defer env.Close()

	o := New(env, nil, []remote.Remote{remote.New(ts.URL)}, nil)

	// No local repo configured: PlanInstall must fail until Update mirrors
	// the remote's package list.
	_, err = o.PlanInstall([]string{"libm"})
	assert.Error(t, err)

	results := o.Update()
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	require.Len(t, results[0].Packages, 1)

	plan, err := o.PlanInstall([]string{"libm"})
	require.NoError(t, err)
	require.Len(t, plan.Items, 1)
	assert.False(t, plan.Items[0].Cached)
	assert.Equal(t, ts.URL, plan.Items[0].Repo.Remote)

	require.NoError(t, o.ApplyInstall(plan))

	data, err := os.ReadFile(filepath.Join(sysroot, "usr", "lib", "libm.so"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestListRemotesReportsUpDown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer ts.Close()

	sysroot := t.TempDir()
	env, err := environment.Open(sysroot)
	require.NoError(t, err)
	defer env.Close()

	o := New(env, nil, []remote.Remote{remote.New(ts.URL), remote.New("http://127.0.0.1:1")}, nil)
	entries := o.ListRemotes()
	require.Len(t, entries, 2)

	var up, down bool
	for _, e := range entries {
		if e.Up {
			up = true
		} else {
			down = true
		}
	}
	assert.True(t, up)
	assert.True(t, down)
}
