package remote

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/blimp-pm/blimp/pkg/blimperr"
	"github.com/blimp-pm/blimp/pkg/fetch"
	"github.com/blimp-pm/blimp/pkg/model"
	"github.com/blimp-pm/blimp/pkg/repository"
	"github.com/blimp-pm/blimp/pkg/version"
)

// Remote is a reference to a mirror server, identified only by its host.
type Remote struct {
	Host string
}

// New wraps host as a Remote. The scheme defaults to https if none is
// given.
func New(host string) Remote {
	return Remote{Host: host}
}

func (r Remote) baseURL() string {
	for _, scheme := range []string{"http://", "https://"} {
		if len(r.Host) >= len(scheme) && r.Host[:len(scheme)] == scheme {
			return r.Host
		}
	}
	return "https://" + r.Host
}

func (r Remote) get(client *http.Client, path string) (*http.Response, error) {
	if client == nil {
		client = fetch.NewHTTPClient(0)
	}
	req, err := http.NewRequest(http.MethodGet, r.baseURL()+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", path, err)
	}
	req.Header.Set("User-Agent", fetch.UserAgent)
	return client.Do(req)
}

// FetchMOTD retrieves the server's message of the day.
func (r Remote) FetchMOTD(client *http.Client) (string, error) {
	resp, err := r.get(client, "/motd")
	if err != nil {
		return "", fmt.Errorf("fetching motd from %s: %w", r.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &blimperr.HTTPError{Status: resp.StatusCode, URL: r.Host + "/motd"}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading motd from %s: %w", r.Host, err)
	}
	return string(body), nil
}

// FetchList retrieves the full list of packages published on this remote.
func (r Remote) FetchList(client *http.Client) ([]model.Package, error) {
	resp, err := r.get(client, "/package")
	if err != nil {
		return nil, fmt.Errorf("fetching package list from %s: %w", r.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &blimperr.HTTPError{Status: resp.StatusCode, URL: r.Host + "/package"}
	}

	var packages []model.Package
	if err := json.NewDecoder(resp.Body).Decode(&packages); err != nil {
		return nil, fmt.Errorf("decoding package list from %s: %w", r.Host, err)
	}
	return packages, nil
}

func archivePath(name string, v version.Version) string {
	return "/package/" + name + "/version/" + v.String() + "/archive"
}

// DownloadURL returns the fully qualified archive URL for a package on
// this remote.
func (r Remote) DownloadURL(name string, v version.Version) string {
	return r.baseURL() + archivePath(name, v)
}

// GetSize issues a HEAD request for the package's archive and returns its
// Content-Length. It errors if the header is absent.
func (r Remote) GetSize(client *http.Client, name string, v version.Version) (uint64, error) {
	if client == nil {
		client = fetch.NewHTTPClient(0)
	}
	req, err := http.NewRequest(http.MethodHead, r.baseURL()+archivePath(name, v), nil)
	if err != nil {
		return 0, fmt.Errorf("building HEAD request: %w", err)
	}
	req.Header.Set("User-Agent", fetch.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetching archive size from %s: %w", r.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &blimperr.HTTPError{Status: resp.StatusCode, URL: r.Host + archivePath(name, v)}
	}

	lengthHeader := resp.Header.Get("Content-Length")
	if lengthHeader == "" {
		return 0, fmt.Errorf("no Content-Length header from %s", r.Host)
	}
	size, err := strconv.ParseUint(lengthHeader, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing Content-Length from %s: %w", r.Host, err)
	}
	return size, nil
}

// FetchArchive downloads the package's archive into its owning local
// repository, composing C4's DownloadTask with the repository's archive
// path. The download is written to a temp file and renamed into place so
// a cancelled or failed fetch never leaves a partial archive visible.
func (r Remote) FetchArchive(client *http.Client, name string, v version.Version, repo repository.Repository, progress fetch.Progress) error {
	destPath := repo.ArchivePath(name, v)
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(destPath), err)
	}

	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmpPath, err)
	}
	defer os.Remove(tmpPath)

	task, err := fetch.NewDownloadTask(client, r.DownloadURL(name, v), f)
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: %s", blimperr.ErrSourceFetchFailed, err)
	}
	if _, err := fetch.Run(task, progress); err != nil {
		f.Close()
		return fmt.Errorf("%w: %s", blimperr.ErrSourceFetchFailed, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", tmpPath, destPath, err)
	}
	return nil
}
