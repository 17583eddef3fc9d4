package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/blimp-pm/blimp/pkg/blimperr"
	"github.com/blimp-pm/blimp/pkg/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidName(t *testing.T) {
	assert.True(t, IsValidName("libfoo-bar2"))
	assert.False(t, IsValidName(""))
	assert.False(t, IsValidName("lib/foo"))
	assert.False(t, IsValidName("lib foo"))
}

func TestIdentity(t *testing.T) {
	pkg := Package{Name: "libfoo", Version: version.MustParse("1.2.3")}
	assert.Equal(t, "libfoo@1.2.3", pkg.Identity())
}

func TestLoadPackageMissing(t *testing.T) {
	_, ok, err := LoadPackage(t.TempDir())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadPackageInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, descFileName), []byte("not json"), 0o644))

	_, _, err := LoadPackage(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, blimperr.ErrInvalidDescriptor)
}

func TestLoadPackageInvalidName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, descFileName), []byte(`{"name":"bad name","version":"1.0.0"}`), 0o644))

	_, _, err := LoadPackage(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, blimperr.ErrInvalidDescriptor)
}

func TestLoadPackageValid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, descFileName), []byte(`{"name":"libfoo","version":"1.0.0","description":"a lib"}`), 0o644))

	pkg, ok, err := LoadPackage(dir)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "libfoo", pkg.Name)
	assert.Equal(t, "1.0.0", pkg.Version.String())
}
