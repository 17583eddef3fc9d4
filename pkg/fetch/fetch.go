// Package fetch implements the streaming download runtime: a pull-model
// DownloadTask that writes one chunk at a time to a destination file,
// decoupled from any progress-reporting side channel.
package fetch

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// UserAgent identifies the package manager and its version on outgoing
// requests, per spec §4.4.
const UserAgent = "blimp/0.1"

// chunkSize is the size of one DownloadTask.Next() pull.
const chunkSize = 64 * 1024

// Progress is the side-channel interface a caller MAY implement to observe
// a DownloadTask's advancement. The codec never depends on it directly.
type Progress interface {
	OnProgress(current, total uint64)
}

// NewHTTPClient builds the client used for all outbound fetch requests,
// capping redirect chains and applying a generous default timeout so large
// archive downloads aren't cut short.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects (limit: 10)")
			}
			return nil
		},
	}
}

// DownloadTask streams an HTTP GET response body into an open file one
// chunk at a time. Next returns the number of bytes written on each pull,
// and 0 once the stream is exhausted; further calls after EOF keep
// returning 0 without error.
type DownloadTask struct {
	client      *http.Client
	resp        *http.Response
	file        io.Writer
	totalSize   *uint64
	currentSize uint64
	done        bool
}

// NewDownloadTask issues the GET request against url and prepares to
// stream its body into file, which the caller must have opened (and
// truncated) for writing. The client may be nil, in which case a default
// one is constructed via NewHTTPClient.
func NewDownloadTask(client *http.Client, url string, file io.Writer) (*DownloadTask, error) {
	if client == nil {
		client = NewHTTPClient(0)
	}

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetching %s: unexpected status %s", url, resp.Status)
	}

	t := &DownloadTask{
		client: client,
		resp:   resp,
		file:   file,
	}
	if resp.ContentLength >= 0 {
		total := uint64(resp.ContentLength)
		t.totalSize = &total
	}
	return t, nil
}

// TotalSize returns the Content-Length advertised by the server, if any.
func (t *DownloadTask) TotalSize() (uint64, bool) {
	if t.totalSize == nil {
		return 0, false
	}
	return *t.totalSize, true
}

// CurrentSize returns the number of bytes written to the destination file
// so far.
func (t *DownloadTask) CurrentSize() uint64 { return t.currentSize }

// Next pulls one chunk from the response body and writes it to the
// destination file, returning the number of bytes written. It returns 0,
// nil once the body is exhausted; subsequent calls keep returning 0, nil.
// Network or file I/O errors abort the task and are returned as-is.
func (t *DownloadTask) Next() (int, error) {
	if t.done {
		return 0, nil
	}

	buf := make([]byte, chunkSize)
	n, readErr := t.resp.Body.Read(buf)
	if n > 0 {
		written, err := t.file.Write(buf[:n])
		if err != nil {
			return written, fmt.Errorf("writing download chunk: %w", err)
		}
		t.currentSize += uint64(written)
	}

	if readErr == io.EOF {
		t.done = true
		t.resp.Body.Close()
		return n, nil
	}
	if readErr != nil {
		t.done = true
		t.resp.Body.Close()
		return n, fmt.Errorf("reading download stream: %w", readErr)
	}
	return n, nil
}

// Close releases the underlying response body if the task was abandoned
// before reaching EOF.
func (t *DownloadTask) Close() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.resp.Body.Close()
}

// Run drains task to completion, reporting each chunk to progress (if
// non-nil) as it goes, and returns the total bytes written.
func Run(task *DownloadTask, progress Progress) (uint64, error) {
	for {
		n, err := task.Next()
		if err != nil {
			return task.CurrentSize(), err
		}
		if n == 0 {
			break
		}
		if progress != nil {
			total, _ := task.TotalSize()
			progress.OnProgress(task.CurrentSize(), total)
		}
	}
	return task.CurrentSize(), nil
}
