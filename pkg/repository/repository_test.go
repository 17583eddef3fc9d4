package repository

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blimp-pm/blimp/pkg/model"
	"github.com/blimp-pm/blimp/pkg/version"
)

func writeDesc(t *testing.T, root, name, ver string) {
	t.Helper()
	dir := filepath.Join(root, name, ver)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	pkg := model.Package{Name: name, Version: version.MustParse(ver)}
	data, err := json.Marshal(pkg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "desc"), data, 0o644))
}

func TestArchiveAndDescPathMinting(t *testing.T) {
	r := New("/repo")
	v := version.MustParse("1.2.3")
	assert.Equal(t, filepath.Join("/repo", "libm", "1.2.3", "archive"), r.ArchivePath("libm", v))
	assert.Equal(t, filepath.Join("/repo", "libm", "1.2.3", "desc"), r.DescPath("libm", v))
}

func TestGetPackageMissingReturnsFalse(t *testing.T) {
	r := New(t.TempDir())
	_, ok, err := r.GetPackage("nope", version.MustParse("1.0"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetPackageInvalidDescriptor(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "libm", "1.0")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "desc"), []byte("not json"), 0o644))

	r := New(root)
	_, _, err := r.GetPackage("libm", version.MustParse("1.0"))
	assert.Error(t, err)
}

func TestListPackages(t *testing.T) {
	root := t.TempDir()
	writeDesc(t, root, "libm", "1.0")
	writeDesc(t, root, "libm", "2.0")
	writeDesc(t, root, "libz", "1.5")
	require.NoError(t, os.WriteFile(filepath.Join(root, "not-a-dir"), []byte("x"), 0o644))

	r := New(root)
	packages, err := r.ListPackages()
	require.NoError(t, err)
	assert.Len(t, packages, 3)
}

func TestIsInCache(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "libm", "1.0")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "archive"), []byte("data"), 0o644))

	r := New(root)
	assert.True(t, r.IsInCache("libm", version.MustParse("1.0")))
	assert.False(t, r.IsInCache("libz", version.MustParse("1.0")))
}

func TestGetPackageWithConstraintPicksMax(t *testing.T) {
	root := t.TempDir()
	writeDesc(t, root, "libm", "1.0")
	writeDesc(t, root, "libm", "1.2.3")
	writeDesc(t, root, "libm", "2.0")

	r := New(root)

	pkg, ok, err := r.GetPackageWithConstraint("libm", version.AnyConstraint())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, pkg.Version.Equal(version.MustParse("2.0")))

	constrained, err := version.ParseConstraint("<=1.2.3")
	require.NoError(t, err)
	pkg, ok, err = r.GetPackageWithConstraint("libm", constrained)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, pkg.Version.Equal(version.MustParse("1.2.3")))
}

func TestGetPackageWithConstraintNoMatch(t *testing.T) {
	root := t.TempDir()
	writeDesc(t, root, "libm", "1.0")

	r := New(root)
	constrained, err := version.ParseConstraint(">2.0")
	require.NoError(t, err)

	_, ok, err := r.GetPackageWithConstraint("libm", constrained)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetPackageWithConstraintUnknownName(t *testing.T) {
	r := New(t.TempDir())
	_, ok, err := r.GetPackageWithConstraint("nope", version.AnyConstraint())
	require.NoError(t, err)
	assert.False(t, ok)
}
