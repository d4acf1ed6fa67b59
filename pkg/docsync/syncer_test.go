package docsync

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jingkaihe/llmsync/pkg/logger"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResponse struct {
	body string
	err  error
}

type fakeFetcher struct {
	responses map[string]fakeResponse
	calls     []string
}

func (f *fakeFetcher) Fetch(_ context.Context, u string) (string, error) {
	f.calls = append(f.calls, u)
	resp, ok := f.responses[u]
	if !ok {
		return "", errors.Errorf("unexpected url %s", u)
	}
	return resp.body, resp.err
}

type recordingReporter struct {
	events []string
}

func (r *recordingReporter) Fetching(u string) {
	r.events = append(r.events, "fetching "+u)
}

func (r *recordingReporter) FetchFailed(u string, err error) {
	r.events = append(r.events, fmt.Sprintf("failed %s: %v", u, err))
}

func (r *recordingReporter) Saved(path string) {
	r.events = append(r.events, "saved "+path)
}

func newTestSyncer(t *testing.T, fetcher Fetcher, opts ...Option) *Syncer {
	t.Helper()
	s, err := NewSyncer(fetcher, opts...)
	require.NoError(t, err)
	s.newRunID = func() string { return "run-1" }
	return s
}

func TestNewSyncer_RequiresFetcher(t *testing.T) {
	s, err := NewSyncer(nil)
	assert.Nil(t, s)
	assert.Equal(t, ErrNoFetcher, err)
}

func TestTargetValidate(t *testing.T) {
	assert.Error(t, Target{Name: "empty", OutputPath: "out.txt"}.Validate())
	assert.Error(t, Target{Name: "nopath", URLs: []string{"https://a.example/llms.txt"}}.Validate())
	assert.NoError(t, Target{Name: "ok", URLs: []string{"https://a.example/llms.txt"}, OutputPath: "out.txt"}.Validate())
}

func TestSyncerRun_SingleSource(t *testing.T) {
	out := filepath.Join(t.TempDir(), OutputFileName)
	fetcher := &fakeFetcher{responses: map[string]fakeResponse{
		"https://a.example/llms.txt": {body: "Hello"},
	}}
	reporter := &recordingReporter{}
	s := newTestSyncer(t, fetcher, WithReporter(reporter))

	result, err := s.Run(context.Background(), Target{
		Name:       "a",
		URLs:       []string{"https://a.example/llms.txt"},
		OutputPath: out,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "# Source: https://a.example/llms.txt\n\nHello", string(data))

	assert.Equal(t, "run-1", result.RunID)
	assert.True(t, result.Written)
	assert.Len(t, result.Blocks, 1)
	assert.Empty(t, result.Failures)
	assert.Equal(t, []string{
		"fetching https://a.example/llms.txt",
		"saved " + out,
	}, reporter.events)
}

func TestSyncerRun_FirstFailsSecondSucceeds(t *testing.T) {
	out := filepath.Join(t.TempDir(), OutputFileName)
	fetcher := &fakeFetcher{responses: map[string]fakeResponse{
		"https://a.example/llms.txt": {err: context.DeadlineExceeded},
		"https://b.example/llms.txt": {body: "World"},
	}}
	reporter := &recordingReporter{}
	s := newTestSyncer(t, fetcher, WithReporter(reporter))

	result, err := s.Run(context.Background(), Target{
		Name:       "ab",
		URLs:       []string{"https://a.example/llms.txt", "https://b.example/llms.txt"},
		OutputPath: out,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "# Source: https://b.example/llms.txt\n\nWorld", string(data))

	require.Len(t, result.Failures, 1)
	assert.Equal(t, "https://a.example/llms.txt", result.Failures[0].URL)
	assert.Equal(t, []string{
		"fetching https://a.example/llms.txt",
		"failed https://a.example/llms.txt: context deadline exceeded",
		"fetching https://b.example/llms.txt",
		"saved " + out,
	}, reporter.events)
}

func TestSyncerRun_AllFail(t *testing.T) {
	out := filepath.Join(t.TempDir(), OutputFileName)
	require.NoError(t, os.WriteFile(out, []byte("from a previous run"), 0o644))

	fetcher := &fakeFetcher{responses: map[string]fakeResponse{
		"https://a.example/llms.txt": {err: errors.New("connection refused")},
		"https://b.example/llms.txt": {err: &StatusError{StatusCode: 503, Status: "503 Service Unavailable"}},
	}}
	reporter := &recordingReporter{}
	s := newTestSyncer(t, fetcher, WithReporter(reporter))

	result, err := s.Run(context.Background(), Target{
		Name:       "ab",
		URLs:       []string{"https://a.example/llms.txt", "https://b.example/llms.txt"},
		OutputPath: out,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoContent))
	assert.Equal(t, "no content fetched for ab", err.Error())

	var noContent *NoContentError
	require.True(t, errors.As(err, &noContent))
	require.NotNil(t, noContent.Failures)
	assert.Len(t, noContent.Failures.Errors, 2)

	var statusErr *StatusError
	assert.True(t, errors.As(err, &statusErr), "per-URL causes are reachable")

	require.NotNil(t, result)
	assert.False(t, result.Written)
	assert.Empty(t, result.Content)
	assert.Len(t, result.Failures, 2)

	// prior output is left untouched
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "from a previous run", string(data))

	for _, event := range reporter.events {
		assert.NotContains(t, event, "saved")
	}
}

func TestSyncerRun_AllFailNoPriorFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), OutputFileName)
	fetcher := &fakeFetcher{responses: map[string]fakeResponse{
		"https://a.example/llms.txt": {err: errors.New("no such host")},
	}}
	s := newTestSyncer(t, fetcher)

	_, err := s.Run(context.Background(), Target{Name: "a", URLs: []string{"https://a.example/llms.txt"}, OutputPath: out})
	require.Error(t, err)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSyncerRun_EmptyBodyIsExcluded(t *testing.T) {
	out := filepath.Join(t.TempDir(), OutputFileName)
	fetcher := &fakeFetcher{responses: map[string]fakeResponse{
		"https://a.example/llms.txt": {body: ""},
		"https://b.example/llms.txt": {body: "World"},
	}}
	s := newTestSyncer(t, fetcher)

	result, err := s.Run(context.Background(), Target{
		Name:       "ab",
		URLs:       []string{"https://a.example/llms.txt", "https://b.example/llms.txt"},
		OutputPath: out,
	})
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	assert.True(t, errors.Is(result.Failures[0].Err, ErrEmptyBody))
	assert.Equal(t, "# Source: https://b.example/llms.txt\n\nWorld", result.Content)
}

func TestSyncerRun_OrderPreserved(t *testing.T) {
	urls := []string{
		"https://c.example/llms.txt",
		"https://a.example/llms.txt",
		"https://d.example/llms.txt",
		"https://b.example/llms.txt",
	}
	fetcher := &fakeFetcher{responses: map[string]fakeResponse{
		urls[0]: {body: "C"},
		urls[1]: {err: errors.New("down")},
		urls[2]: {body: "D"},
		urls[3]: {body: "B"},
	}}
	s := newTestSyncer(t, fetcher)

	result, err := s.Run(context.Background(), Target{
		Name:       "ordered",
		URLs:       urls,
		OutputPath: filepath.Join(t.TempDir(), OutputFileName),
	})
	require.NoError(t, err)

	assert.Equal(t, urls, fetcher.calls, "every URL is attempted in order")
	assert.Equal(t,
		"# Source: https://c.example/llms.txt\n\nC\n\n"+
			"# Source: https://d.example/llms.txt\n\nD\n\n"+
			"# Source: https://b.example/llms.txt\n\nB",
		result.Content)
}

func TestSyncerRun_RerunOverwrites(t *testing.T) {
	out := filepath.Join(t.TempDir(), OutputFileName)
	target := Target{Name: "a", URLs: []string{"https://a.example/llms.txt"}, OutputPath: out}

	fetcher := &fakeFetcher{responses: map[string]fakeResponse{
		"https://a.example/llms.txt": {body: "version one"},
	}}
	s := newTestSyncer(t, fetcher)
	_, err := s.Run(context.Background(), target)
	require.NoError(t, err)

	fetcher.responses["https://a.example/llms.txt"] = fakeResponse{body: "v2"}
	result, err := s.Run(context.Background(), target)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "# Source: https://a.example/llms.txt\n\nv2", string(data))
	assert.Equal(t, "# Source: https://a.example/llms.txt\n\nversion one", result.Previous)
	assert.True(t, result.Changed())
	assert.Contains(t, result.Diff(), "-version one")
	assert.Contains(t, result.Diff(), "+v2")
}

func TestSyncerRun_DryRun(t *testing.T) {
	out := filepath.Join(t.TempDir(), OutputFileName)
	require.NoError(t, os.WriteFile(out, []byte("old"), 0o644))

	fetcher := &fakeFetcher{responses: map[string]fakeResponse{
		"https://a.example/llms.txt": {body: "Hello"},
	}}
	reporter := &recordingReporter{}
	s := newTestSyncer(t, fetcher, WithDryRun(true), WithReporter(reporter))

	result, err := s.Run(context.Background(), Target{Name: "a", URLs: []string{"https://a.example/llms.txt"}, OutputPath: out})
	require.NoError(t, err)
	assert.False(t, result.Written)
	assert.Equal(t, "old", result.Previous)
	assert.Equal(t, "# Source: https://a.example/llms.txt\n\nHello", result.Content)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
	assert.Equal(t, []string{"fetching https://a.example/llms.txt"}, reporter.events)
}

func TestSyncerRun_WriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	fetcher := &fakeFetcher{responses: map[string]fakeResponse{
		"https://a.example/llms.txt": {body: "Hello"},
	}}
	s := newTestSyncer(t, fetcher)

	result, err := s.Run(context.Background(), Target{
		Name:       "a",
		URLs:       []string{"https://a.example/llms.txt"},
		OutputPath: filepath.Join(blocker, OutputFileName),
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoContent))
	assert.Contains(t, err.Error(), "failed to save docs to")
	assert.False(t, result.Written)
}

func TestSyncerRun_InvalidTarget(t *testing.T) {
	s := newTestSyncer(t, &fakeFetcher{})

	result, err := s.Run(context.Background(), Target{Name: "empty", OutputPath: "x"})
	require.Error(t, err)
	assert.Nil(t, result)
}

func TestSyncerRun_HTTPEndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/slow/llms.txt":
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		case "/b/llms.txt":
			_, _ = w.Write([]byte("World"))
		}
	}))
	defer server.Close()

	out := filepath.Join(t.TempDir(), "skill", OutputFileName)
	s := newTestSyncer(t, NewHTTPFetcher(WithTimeout(100*time.Millisecond)))

	result, err := s.Run(context.Background(), Target{
		Name:       "http",
		URLs:       []string{server.URL + "/slow/llms.txt", server.URL + "/b/llms.txt"},
		OutputPath: out,
	})
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "# Source: "+server.URL+"/b/llms.txt\n\nWorld", string(data))
}

func TestSyncerRun_RequireDir(t *testing.T) {
	root := t.TempDir()
	fetcher := &fakeFetcher{responses: map[string]fakeResponse{
		"https://a.example/llms.txt": {body: "Hello"},
	}}
	s := newTestSyncer(t, fetcher)

	t.Run("missing directory fails before fetching", func(t *testing.T) {
		missing := filepath.Join(root, ".github", "skills", "demo")
		_, err := s.Run(context.Background(), Target{
			Name:       "demo",
			URLs:       []string{"https://a.example/llms.txt"},
			OutputPath: filepath.Join(missing, OutputFileName),
			RequireDir: true,
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMissingOutputDir))
		assert.Empty(t, fetcher.calls)

		_, statErr := os.Stat(filepath.Join(root, ".github"))
		assert.True(t, os.IsNotExist(statErr), "no directories are created")
	})

	t.Run("existing directory is written", func(t *testing.T) {
		dir := filepath.Join(root, "convex-patterns")
		require.NoError(t, os.MkdirAll(dir, 0o755))

		result, err := s.Run(context.Background(), Target{
			Name:       "convex",
			URLs:       []string{"https://a.example/llms.txt"},
			OutputPath: filepath.Join(dir, OutputFileName),
			RequireDir: true,
		})
		require.NoError(t, err)
		assert.True(t, result.Written)
	})
}

func TestSyncerRun_FetchFailureLoggedAtDebug(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetLevel(logrus.InfoLevel)
	ctx := logger.WithLogger(context.Background(), logrus.NewEntry(l))

	out := filepath.Join(t.TempDir(), OutputFileName)
	fetcher := &fakeFetcher{responses: map[string]fakeResponse{
		"https://a.example/llms.txt": {err: context.DeadlineExceeded},
		"https://b.example/llms.txt": {body: "World"},
	}}
	s := newTestSyncer(t, fetcher)

	_, err := s.Run(ctx, Target{
		Name:       "ab",
		URLs:       []string{"https://a.example/llms.txt", "https://b.example/llms.txt"},
		OutputPath: out,
	})
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "failed to fetch source")

	buf.Reset()
	l.SetLevel(logrus.DebugLevel)
	_, err = s.Run(ctx, Target{
		Name:       "ab",
		URLs:       []string{"https://a.example/llms.txt", "https://b.example/llms.txt"},
		OutputPath: out,
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "failed to fetch source")
}
