package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blimp-pm/blimp/pkg/blimperr"
)

func writeStagingTree(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "usr", "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "usr", "lib", "libm.so"), []byte("binary-data"), 0o644))
	require.NoError(t, os.Symlink("libm.so", filepath.Join(root, "usr", "lib", "libm.so.1")))
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	stagingRoot := t.TempDir()
	writeStagingTree(t, stagingRoot)

	descPath := filepath.Join(t.TempDir(), "package.json")
	require.NoError(t, os.WriteFile(descPath, []byte(`{"package":{"name":"libm"}}`), 0o644))

	archivePath := filepath.Join(t.TempDir(), "archive")
	out, err := os.Create(archivePath)
	require.NoError(t, err)
	require.NoError(t, Compress(out, descPath, stagingRoot, nil))
	require.NoError(t, out.Close())

	dest := t.TempDir()
	require.NoError(t, Decompress(archivePath, dest))

	data, err := os.ReadFile(filepath.Join(dest, DataDir, "usr", "lib", "libm.so"))
	require.NoError(t, err)
	assert.Equal(t, "binary-data", string(data))

	link, err := os.Readlink(filepath.Join(dest, DataDir, "usr", "lib", "libm.so.1"))
	require.NoError(t, err)
	assert.Equal(t, "libm.so", link)

	desc, err := os.ReadFile(filepath.Join(dest, PackageDescriptorName))
	require.NoError(t, err)
	assert.Contains(t, string(desc), "libm")
}

func TestCompressIncludesHooks(t *testing.T) {
	stagingRoot := t.TempDir()
	writeStagingTree(t, stagingRoot)

	tmp := t.TempDir()
	descPath := filepath.Join(tmp, "package.json")
	require.NoError(t, os.WriteFile(descPath, []byte(`{}`), 0o644))
	hookPath := filepath.Join(tmp, "post-install-hook")
	require.NoError(t, os.WriteFile(hookPath, []byte("#!/bin/sh\n"), 0o755))

	archivePath := filepath.Join(tmp, "archive")
	out, err := os.Create(archivePath)
	require.NoError(t, err)
	require.NoError(t, Compress(out, descPath, stagingRoot, []string{hookPath, ""}))
	require.NoError(t, out.Close())

	dest := t.TempDir()
	require.NoError(t, Decompress(archivePath, dest))

	info, err := os.Stat(filepath.Join(dest, "post-install-hook"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o100)
}

func TestDecompressRejectsUnsupportedFormat(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "archive")
	require.NoError(t, os.WriteFile(archivePath, []byte("not an archive"), 0o644))

	err := Decompress(archivePath, t.TempDir())
	assert.ErrorContains(t, err, "unsupported")
}

func TestDecompressRejectsPathTraversal(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "archive")
	f, err := os.Create(archivePath)
	require.NoError(t, err)

	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "../../etc/passwd",
		Mode: 0o644,
		Size: 0,
	}))
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	require.NoError(t, f.Close())

	err = Decompress(archivePath, t.TempDir())
	assert.ErrorIs(t, err, blimperr.ErrPathTraversal)
}

func TestDecompressStripsLeadingSlash(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "archive")
	f, err := os.Create(archivePath)
	require.NoError(t, err)

	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)
	var buf bytes.Buffer
	buf.WriteString("x")
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "/etc/passwd",
		Mode: 0o644,
		Size: int64(buf.Len()),
	}))
	_, err = tw.Write(buf.Bytes())
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	require.NoError(t, f.Close())

	dest := t.TempDir()
	require.NoError(t, Decompress(archivePath, dest))

	_, err = os.Stat(filepath.Join(dest, "etc", "passwd"))
	assert.NoError(t, err)
}
