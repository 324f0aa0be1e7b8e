package steps

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitepress/internal/custody"
)

func fetchServer(t *testing.T, etag, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeFetchDescriptor(t *testing.T, url string) string {
	t.Helper()
	return writeSource(t, "remote.fetch", fmt.Sprintf("url = %q\n", url))
}

func TestFetchStepDownloadsAndRecordsETag(t *testing.T) {
	srv := fetchServer(t, `"v1"`, "payload")
	desc := writeFetchDescriptor(t, srv.URL)
	out := filepath.Join(t.TempDir(), "remote.dat")

	step := &FetchStep{Client: srv.Client()}
	result, err := step.Run(context.Background(), desc, []string{out})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NotNil(t, result)
	require.Len(t, result.Sources, 2, "descriptor file plus the remote resource")
	assert.Equal(t, desc, result.Sources[0].String())
	assert.Equal(t, "url:"+srv.URL, result.Sources[1].String())
}

func TestFetchCheckerUsesConditionalGet(t *testing.T) {
	srv := fetchServer(t, `"v1"`, "payload")
	step := &FetchStep{Client: srv.Client()}

	fresh, err := step.checkURL(custody.NewEntry(EntryTypeURL, srv.URL,
		map[string]any{fieldETag: `"v1"`}))
	require.NoError(t, err)
	assert.True(t, fresh, "matching ETag yields 304")

	fresh, err = step.checkURL(custody.NewEntry(EntryTypeURL, srv.URL,
		map[string]any{fieldETag: `"v0"`}))
	require.NoError(t, err)
	assert.False(t, fresh, "stale ETag yields 200")

	fresh, err = step.checkURL(custody.NewEntry(EntryTypeURL, srv.URL, nil))
	require.NoError(t, err)
	assert.False(t, fresh, "no recorded ETag always refetches")
}

func TestFetchStepRejectsBadDescriptor(t *testing.T) {
	desc := writeSource(t, "bad.fetch", "not toml at all [")
	step := &FetchStep{}
	_, err := step.Run(context.Background(), desc, []string{filepath.Join(t.TempDir(), "o")})
	require.Error(t, err)

	empty := writeSource(t, "empty.fetch", "")
	_, err = step.Run(context.Background(), empty, []string{filepath.Join(t.TempDir(), "o")})
	require.Error(t, err, "descriptor without url is rejected")
}
