//go:build network

// Url and Git origins require outbound network access; this file is only
// built when the network build tag is set.
package source

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/blimp-pm/blimp/pkg/archive"
	"github.com/blimp-pm/blimp/pkg/blimperr"
	"github.com/blimp-pm/blimp/pkg/fetch"
	"github.com/blimp-pm/blimp/pkg/sourcecache"
)

// fetchURL downloads url through the user-local source cache (spec §4.11):
// a prior fetch of the same URL whose checksum still matches is reused
// without touching the network.
func fetchURL(url, dest string) error {
	cacheDir, err := sourcecache.DefaultDir()
	if err != nil {
		return fmt.Errorf("%w: %s", blimperr.ErrSourceFetchFailed, err)
	}
	cache, err := sourcecache.Open(cacheDir)
	if err != nil {
		return fmt.Errorf("%w: %s", blimperr.ErrSourceFetchFailed, err)
	}

	entry, err := cache.GetOrInsert([]byte(url))
	if err != nil {
		return fmt.Errorf("%w: %s", blimperr.ErrSourceFetchFailed, err)
	}

	if !entry.Cached {
		task, err := fetch.NewDownloadTask(nil, url, entry.File)
		if err != nil {
			entry.Close()
			return fmt.Errorf("%w: %s: %s", blimperr.ErrSourceFetchFailed, url, err)
		}
		if _, err := fetch.Run(task, nil); err != nil {
			entry.Close()
			return fmt.Errorf("%w: %s: %s", blimperr.ErrSourceFetchFailed, url, err)
		}
		if err := entry.Flush(); err != nil {
			return fmt.Errorf("%w: %s", blimperr.ErrSourceFetchFailed, err)
		}
	} else if err := entry.Close(); err != nil {
		return fmt.Errorf("%w: %s", blimperr.ErrSourceFetchFailed, err)
	}

	if err := archive.Decompress(entry.File.Name(), dest); err != nil {
		return fmt.Errorf("%w: decompressing %s: %s", blimperr.ErrSourceFetchFailed, url, err)
	}
	return nil
}

func fetchGit(url, branch, dest string) error {
	args := []string{"clone", "--depth", "1", "--single-branch"}
	if branch != "" {
		args = append(args, "-b", branch)
	}
	args = append(args, url, dest)

	cmd := exec.Command("git", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: git clone %s: %s", blimperr.ErrSourceFetchFailed, url, err)
	}
	return nil
}
