package fetch

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadTaskStreamsToCompletion(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), chunkSize*2+17)

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write(payload)
	}))
	defer srv.Close()

	var dest bytes.Buffer
	task, err := NewDownloadTask(nil, srv.URL, &dest)
	require.NoError(t, err)

	for {
		n, err := task.Next()
		require.NoError(t, err)
		if n == 0 {
			break
		}
	}

	assert.Equal(t, UserAgent, gotUA)
	assert.Equal(t, payload, dest.Bytes())
	assert.Equal(t, uint64(len(payload)), task.CurrentSize())

	// EOF is terminal: further calls keep returning 0, nil.
	n, err := task.Next()
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDownloadTaskTotalSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	var dest bytes.Buffer
	task, err := NewDownloadTask(nil, srv.URL, &dest)
	require.NoError(t, err)

	total, ok := task.TotalSize()
	require.True(t, ok)
	assert.Equal(t, uint64(5), total)
}

func TestDownloadTaskRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	var dest bytes.Buffer
	_, err := NewDownloadTask(nil, srv.URL, &dest)
	assert.ErrorContains(t, err, "404")
}

type recordingProgress struct {
	calls []uint64
}

func (r *recordingProgress) OnProgress(current, total uint64) {
	r.calls = append(r.calls, current)
}

func TestRunReportsProgress(t *testing.T) {
	payload := bytes.Repeat([]byte("y"), chunkSize+5)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	var dest bytes.Buffer
	task, err := NewDownloadTask(nil, srv.URL, &dest)
	require.NoError(t, err)

	rp := &recordingProgress{}
	written, err := Run(task, rp)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(payload)), written)
	assert.NotEmpty(t, rp.calls)
	assert.Equal(t, uint64(len(payload)), rp.calls[len(rp.calls)-1])
}
