package mirror

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vertextoedge/asyncfetch/internal/adapter/filesystem"
	"github.com/vertextoedge/asyncfetch/internal/adapter/httpremote"
	"github.com/vertextoedge/asyncfetch/internal/domain"
	"github.com/vertextoedge/asyncfetch/internal/port"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

const baseURL = "https://data.example.org/async_results/alice/20200101T000000-STREAM"

// fakeRemote serves canned pages keyed by absolute URL
type fakeRemote struct {
	mu        sync.Mutex
	pages     map[string]string
	redirects map[string]string
	fail      map[string]error
	gets      []string
	heads     []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		pages: map[string]string{
			baseURL + "/": `<html><body><h1>Index of /async_results/alice/20200101T000000-STREAM</h1>
<a href="?C=N;O=D">Name</a>
<a href="/async_results/alice/">Parent Directory</a>
<a href="deployment0001/">deployment0001/</a>
<a href="status.txt">status.txt</a>
<a href="index.html">index.html</a>
<a href="https://elsewhere.example.org/file.nc">mirror</a>
</body></html>`,
			baseURL + "/deployment0001/": `<html><body>
<a href="../">Parent Directory</a>
<a href="data.nc#top">data.nc</a>
<a href="index.txt">index.txt</a>
</body></html>`,
			baseURL + "/deployment0001/data.nc": "CDF-DATA",
			baseURL + "/status.txt":             "request completed",
			baseURL + "/index.html":             "should never be fetched",
		},
		fail: map[string]error{},
	}
}

func (f *fakeRemote) Get(ctx context.Context, url string) (io.ReadCloser, *port.ResourceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, url)

	if err := f.fail[url]; err != nil {
		return nil, nil, err
	}
	if target, ok := f.redirects[url]; ok {
		url = target
	}
	body, ok := f.pages[url]
	if !ok {
		return nil, &port.ResourceInfo{URL: url, StatusCode: 404}, &port.StatusError{URL: url, StatusCode: 404}
	}
	return io.NopCloser(strings.NewReader(body)), &port.ResourceInfo{URL: url, StatusCode: 200, ContentLength: int64(len(body))}, nil
}

func (f *fakeRemote) Head(ctx context.Context, url string) (*port.ResourceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heads = append(f.heads, url)

	if err := f.fail[url]; err != nil {
		return nil, err
	}
	body, ok := f.pages[url]
	if !ok {
		return &port.ResourceInfo{URL: url, StatusCode: 404}, &port.StatusError{URL: url, StatusCode: 404}
	}
	return &port.ResourceInfo{URL: url, StatusCode: 200, ContentLength: int64(len(body))}, nil
}

func (f *fakeRemote) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.gets) + len(f.heads)
}

// countingFS counts mutating calls on top of a real filesystem manager
type countingFS struct {
	*filesystem.Manager
	mu     sync.Mutex
	writes int
}

func (c *countingFS) WriteFile(path string, r io.Reader) (int64, error) {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.Manager.WriteFile(path, r)
}

func (c *countingFS) CleanTempFiles(root string) (int, error) {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.Manager.CleanTempFiles(root)
}

func testRef(t *testing.T) domain.ResultReference {
	t.Helper()
	ref, err := domain.ParseReference(baseURL)
	require.NoError(t, err)
	return ref
}

func countEntries(t *testing.T, root string) int {
	t.Helper()
	n := 0
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path != root {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func TestMirror_Run(t *testing.T) {
	root := t.TempDir()
	remote := newFakeRemote()
	m := New(remote, filesystem.NewManager(), DefaultOptions(), zap.NewNop())

	outcome := m.Run(context.Background(), "response.json", testRef(t), root)

	require.NoError(t, outcome.Err)
	assert.Equal(t, domain.FetchStatusFetched, outcome.Status)
	dest := filepath.Join(root, "alice", "20200101T000000-STREAM")
	assert.Equal(t, dest, outcome.Destination)

	data, err := os.ReadFile(filepath.Join(dest, "deployment0001", "data.nc"))
	require.NoError(t, err)
	assert.Equal(t, "CDF-DATA", string(data))

	data, err = os.ReadFile(filepath.Join(dest, "status.txt"))
	require.NoError(t, err)
	assert.Equal(t, "request completed", string(data))

	assert.NoFileExists(t, filepath.Join(dest, "index.html"))
	assert.NoFileExists(t, filepath.Join(dest, "deployment0001", "index.txt"))

	require.NotNil(t, outcome.Result)
	assert.Equal(t, 2, outcome.Result.Directories)
	assert.Equal(t, 2, outcome.Result.Files)
	assert.Equal(t, 0, outcome.Result.Failed)
	assert.Equal(t, 2, outcome.Result.Rejected)
	assert.Equal(t, int64(len("CDF-DATA")+len("request completed")), outcome.Result.BytesWritten)

	for _, u := range remote.gets {
		assert.True(t, strings.HasPrefix(u, baseURL+"/"), "fetched outside base: %s", u)
		assert.NotContains(t, u, "index")
	}
}

func TestMirror_ExistingDestinationSkips(t *testing.T) {
	root := t.TempDir()
	dest := filepath.Join(root, "alice", "20200101T000000-STREAM")
	require.NoError(t, os.MkdirAll(dest, 0755))

	remote := newFakeRemote()
	fs := &countingFS{Manager: filesystem.NewManager()}
	m := New(remote, fs, DefaultOptions(), zap.NewNop())

	outcome := m.Run(context.Background(), "response.json", testRef(t), root)

	assert.Equal(t, domain.FetchStatusSkippedExists, outcome.Status)
	assert.True(t, outcome.Skipped())
	assert.ErrorIs(t, outcome.Err, domain.ErrDestinationExists)
	assert.True(t, domain.IsSkippable(outcome.Err))
	assert.Equal(t, 0, fs.writes, "no filesystem writes expected")
	assert.Equal(t, 0, remote.calls(), "no network calls expected")
	assert.Equal(t, 0, countEntries(t, dest))
}

func TestMirror_ForceProceeds(t *testing.T) {
	root := t.TempDir()
	dest := filepath.Join(root, "alice", "20200101T000000-STREAM")
	require.NoError(t, os.MkdirAll(dest, 0755))
	stale := filepath.Join(dest, "status.txt"+filesystem.TempSuffix)
	require.NoError(t, os.WriteFile(stale, []byte("partial"), 0644))

	opts := DefaultOptions()
	opts.Force = true
	m := New(newFakeRemote(), filesystem.NewManager(), opts, zap.NewNop())

	outcome := m.Run(context.Background(), "response.json", testRef(t), root)

	require.NoError(t, outcome.Err)
	assert.Equal(t, domain.FetchStatusFetched, outcome.Status)
	assert.FileExists(t, filepath.Join(dest, "status.txt"))
	assert.FileExists(t, filepath.Join(dest, "deployment0001", "data.nc"))
	assert.NoFileExists(t, stale)
}

func TestMirror_DryRunWritesNothing(t *testing.T) {
	root := t.TempDir()
	remote := newFakeRemote()
	fs := &countingFS{Manager: filesystem.NewManager()}

	opts := DefaultOptions()
	opts.DryRun = true
	m := New(remote, fs, opts, zap.NewNop())

	outcome := m.Run(context.Background(), "response.json", testRef(t), root)

	require.NoError(t, outcome.Err)
	assert.Equal(t, domain.FetchStatusDryRun, outcome.Status)
	assert.Equal(t, 2, outcome.Result.Files)
	assert.Equal(t, int64(0), outcome.Result.BytesWritten)
	assert.Equal(t, 0, fs.writes)
	assert.Equal(t, 0, countEntries(t, root))

	// files are only probed, listings are still read
	assert.ElementsMatch(t, []string{
		baseURL + "/status.txt",
		baseURL + "/deployment0001/data.nc",
	}, remote.heads)
	assert.ElementsMatch(t, []string{
		baseURL + "/",
		baseURL + "/deployment0001/",
	}, remote.gets)
}

func TestMirror_BaseListingFailure(t *testing.T) {
	root := t.TempDir()
	remote := newFakeRemote()
	remote.fail[baseURL+"/"] = errors.New("connection refused")

	m := New(remote, filesystem.NewManager(), DefaultOptions(), zap.NewNop())
	outcome := m.Run(context.Background(), "response.json", testRef(t), root)

	assert.Equal(t, domain.FetchStatusFailed, outcome.Status)
	require.Error(t, outcome.Err)
	assert.Contains(t, outcome.Err.Error(), "connection refused")
	assert.Equal(t, 0, countEntries(t, root), "a failed run must not leave the destination behind")
}

func TestMirror_PartialFailureIsCounted(t *testing.T) {
	root := t.TempDir()
	remote := newFakeRemote()
	delete(remote.pages, baseURL+"/deployment0001/")

	m := New(remote, filesystem.NewManager(), DefaultOptions(), zap.NewNop())
	outcome := m.Run(context.Background(), "response.json", testRef(t), root)

	require.NoError(t, outcome.Err)
	assert.Equal(t, domain.FetchStatusFetched, outcome.Status)
	assert.Equal(t, 1, outcome.Result.Files)
	assert.Equal(t, 1, outcome.Result.Failed)
}

func TestMirror_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := New(newFakeRemote(), filesystem.NewManager(), DefaultOptions(), zap.NewNop())
	outcome := m.Run(ctx, "response.json", testRef(t), t.TempDir())

	assert.Equal(t, domain.FetchStatusFailed, outcome.Status)
	assert.ErrorIs(t, outcome.Err, context.Canceled)
}

func TestMirror_SameDestinationIsSerialized(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	m := New(newFakeRemote(), filesystem.NewManager(), DefaultOptions(), zap.NewNop())
	ref := testRef(t)

	const runs = 8
	outcomes := make([]*domain.FetchOutcome, runs)
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = m.Run(context.Background(), "response.json", ref, root)
		}(i)
	}
	wg.Wait()

	fetched, skipped := 0, 0
	for _, o := range outcomes {
		switch o.Status {
		case domain.FetchStatusFetched:
			fetched++
		case domain.FetchStatusSkippedExists:
			skipped++
		}
	}
	assert.Equal(t, 1, fetched)
	assert.Equal(t, runs-1, skipped)
	assert.Equal(t, 0, m.locks.Len())
}

func TestMirror_OverHTTP(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/async_results/bob/s1/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/async_results/bob/s1/":
			io.WriteString(w, `<a href="../">up</a><a href="a.nc">a.nc</a><a href="sub/">sub/</a>`)
		case "/async_results/bob/s1/a.nc":
			io.WriteString(w, "A")
		case "/async_results/bob/s1/sub/":
			io.WriteString(w, `<a href="b.nc">b.nc</a>`)
		case "/async_results/bob/s1/sub/b.nc":
			io.WriteString(w, "BB")
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ref, err := domain.ParseReference(srv.URL + "/async_results/bob/s1/")
	require.NoError(t, err)

	root := t.TempDir()
	client := httpremote.NewClient(&httpremote.ClientConfig{}, zap.NewNop())
	m := New(client, filesystem.NewManager(), DefaultOptions(), zap.NewNop())

	outcome := m.Run(context.Background(), "response.json", ref, root)
	require.NoError(t, outcome.Err)

	dest := filepath.Join(root, "bob", "s1")
	assert.Equal(t, dest, outcome.Destination)
	assert.FileExists(t, filepath.Join(dest, "a.nc"))
	assert.FileExists(t, filepath.Join(dest, "sub", "b.nc"))
	assert.Equal(t, int64(3), outcome.Result.BytesWritten)
}

func TestLocalPath(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		cutDirs int
		want    string
	}{
		{"file in base", "/async_results/alice/s1/status.txt", 3, "/dest/status.txt"},
		{"nested", "/async_results/alice/s1/dep/ncml/a.ncml", 3, "/dest/dep/ncml/a.ncml"},
		{"no cut", "/async_results/alice/s1/a.nc", 0, "/dest/async_results/alice/s1/a.nc"},
		{"cut beyond depth", "/a/b.nc", 3, "/dest/b.nc"},
		{"dot segments dropped", "/x/y/z/../w.nc", 3, "/dest/w.nc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := localPath("/dest", tt.remote, tt.cutDirs)
			if got != filepath.FromSlash(tt.want) {
				t.Errorf("localPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMirror_WalksIndexPrefixedDirectories(t *testing.T) {
	root := t.TempDir()
	remote := newFakeRemote()
	remote.pages[baseURL+"/"] = `<html><body>
<a href="index.html">index.html</a>
<a href="index_2020/">index_2020/</a>
</body></html>`
	remote.pages[baseURL+"/index_2020/"] = `<html><body>
<a href="../">Parent Directory</a>
<a href="index.html">index.html</a>
<a href="data.nc">data.nc</a>
</body></html>`
	remote.pages[baseURL+"/index_2020/data.nc"] = "CDF-2020"

	m := New(remote, filesystem.NewManager(), DefaultOptions(), zap.NewNop())
	outcome := m.Run(context.Background(), "response.json", testRef(t), root)

	require.NoError(t, outcome.Err)
	dest := filepath.Join(root, "alice", "20200101T000000-STREAM")
	data, err := os.ReadFile(filepath.Join(dest, "index_2020", "data.nc"))
	require.NoError(t, err)
	assert.Equal(t, "CDF-2020", string(data))

	assert.Equal(t, 2, outcome.Result.Directories)
	assert.Equal(t, 1, outcome.Result.Files)
	assert.Equal(t, 2, outcome.Result.Rejected)
	assert.NoFileExists(t, filepath.Join(dest, "index_2020", "index.html"))
}

func TestMirror_ResolvesLinksAgainstRedirectedListing(t *testing.T) {
	root := t.TempDir()
	remote := newFakeRemote()
	moved := baseURL + "/deployment0001-r2/"
	remote.redirects = map[string]string{baseURL + "/deployment0001/": moved}
	remote.pages[moved] = `<html><body><a href="data.nc">data.nc</a></body></html>`
	remote.pages[moved+"data.nc"] = "CDF-R2"

	m := New(remote, filesystem.NewManager(), DefaultOptions(), zap.NewNop())
	outcome := m.Run(context.Background(), "response.json", testRef(t), root)

	require.NoError(t, outcome.Err)
	assert.Equal(t, 0, outcome.Result.Failed)
	data, err := os.ReadFile(filepath.Join(root, "alice", "20200101T000000-STREAM", "deployment0001-r2", "data.nc"))
	require.NoError(t, err)
	assert.Equal(t, "CDF-R2", string(data))
}

func TestMirror_FollowsRedirectedBaseListing(t *testing.T) {
	root := t.TempDir()
	moved := "https://files.example.org/async_results/alice/20200101T000000-STREAM/"
	remote := &fakeRemote{
		pages: map[string]string{
			moved:             `<html><body><a href="../">up</a><a href="a.nc">a.nc</a></body></html>`,
			moved + "a.nc":    "CDF-A",
			baseURL + "/a.nc": "wrong host",
		},
		redirects: map[string]string{baseURL + "/": moved},
		fail:      map[string]error{},
	}

	m := New(remote, filesystem.NewManager(), DefaultOptions(), zap.NewNop())
	outcome := m.Run(context.Background(), "response.json", testRef(t), root)

	require.NoError(t, outcome.Err)
	assert.Equal(t, 1, outcome.Result.Files)
	data, err := os.ReadFile(filepath.Join(root, "alice", "20200101T000000-STREAM", "a.nc"))
	require.NoError(t, err)
	assert.Equal(t, "CDF-A", string(data))
}

func TestMirror_PlainFileAtDestinationDoesNotSkip(t *testing.T) {
	root := t.TempDir()
	dest := filepath.Join(root, "alice", "20200101T000000-STREAM")
	require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0755))
	require.NoError(t, os.WriteFile(dest, []byte("stray file"), 0644))

	remote := newFakeRemote()
	m := New(remote, filesystem.NewManager(), DefaultOptions(), zap.NewNop())
	outcome := m.Run(context.Background(), "response.json", testRef(t), root)

	assert.NotEqual(t, domain.FetchStatusSkippedExists, outcome.Status)
	assert.False(t, domain.IsSkippable(outcome.Err))
	assert.NotZero(t, remote.calls())
	// files cannot be written below a plain file
	assert.Equal(t, 2, outcome.Result.Failed)
}
