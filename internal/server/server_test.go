package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/htmlc/internal/build"
	"github.com/conneroisu/htmlc/internal/errors"
	"github.com/conneroisu/htmlc/internal/testutils"
)

func newTestServer(t *testing.T) (*PreviewServer, *httptest.Server) {
	t.Helper()

	fsys := afero.NewMemMapFs()
	testutils.WriteTree(t, fsys, "/dist", testutils.Tree{
		"index.html":      "<html><head><title>Home</title></head><body><h1>Home</h1></body></html>",
		"blog/index.html": "<h1>Blog</h1>",
		"blog/post.html":  "<p>post</p>",
		"style.css":       "body{}",
		"empty/":          "",
	})

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "htmlc_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s := New(Config{Host: "localhost", Port: 0, Root: "/dist", Fs: fsys, Gatherer: reg})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	return s, ts
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(body)
}

func TestStatic(t *testing.T) {
	_, ts := newTestServer(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		contains   []string
		reload     bool
	}{
		{"root index", "/", http.StatusOK, []string{"<h1>Home</h1>", "<title>Home</title>"}, true},
		{"html file", "/blog/post.html", http.StatusOK, []string{"<p>post</p>"}, true},
		{"dir index", "/blog/", http.StatusOK, []string{"<h1>Blog</h1>"}, true},
		{"asset", "/style.css", http.StatusOK, []string{"body{}"}, false},
		{"missing", "/nope.html", http.StatusNotFound, nil, false},
		{"dir without index", "/empty/", http.StatusNotFound, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, ts.URL+tt.path)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			for _, s := range tt.contains {
				assert.Contains(t, body, s)
			}
			assert.Equal(t, tt.reload, strings.Contains(body, RouteWS), "reload script")
		})
	}
}

func TestStatic_RedirectsDirectories(t *testing.T) {
	_, ts := newTestServer(t)

	resp, _ := get(t, ts.URL+"/blog")
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "/blog/", resp.Header.Get("Location"))
}

func TestStatic_HTMLIsNotCached(t *testing.T) {
	_, ts := newTestServer(t)

	resp, _ := get(t, ts.URL+"/blog/post.html")
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestHealth(t *testing.T) {
	s, ts := newTestServer(t)

	resp, body := get(t, ts.URL+RouteHealth)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.NotContains(t, health, "last_build")

	s.NotifyBuild(&build.Report{ID: "b1", FinishedAt: time.Now()})

	_, body = get(t, ts.URL+RouteHealth)
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	assert.Contains(t, health, "last_build")
}

func TestReport(t *testing.T) {
	s, ts := newTestServer(t)

	resp, _ := get(t, ts.URL+RouteReport)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	report := &build.Report{
		ID:        "b2",
		Succeeded: []build.Output{{Source: "/src/a.ejs", Path: "/dist/a.html", Bytes: 3}},
		Failures:  []build.Failure{{Path: "/src/b.ejs", Op: "render", Err: stderrors.New("boom")}},
	}
	s.NotifyBuild(report)
	assert.Same(t, report, s.LastReport())

	resp, body := get(t, ts.URL+RouteReport)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got struct {
		ID       string `json:"id"`
		Failures []struct {
			Path  string `json:"path"`
			Error string `json:"error"`
		} `json:"failures"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, "b2", got.ID)
	require.Len(t, got.Failures, 1)
	assert.Equal(t, "boom", got.Failures[0].Error)
}

func TestMetrics(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := get(t, ts.URL+RouteMetrics)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "htmlc_test_total 1")
}

func TestNotifyBuild_Nil(t *testing.T) {
	s, _ := newTestServer(t)
	s.NotifyBuild(nil)
	assert.Nil(t, s.LastReport())
}

func dialWS(ctx context.Context, t *testing.T, ts *httptest.Server, origin string) (*websocket.Conn, error) {
	t.Helper()

	opts := &websocket.DialOptions{HTTPHeader: http.Header{}}
	if origin != "" {
		opts.HTTPHeader.Set("Origin", origin)
	}
	conn, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+RouteWS, opts)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	return conn, err
}

func TestWebSocket_BroadcastsBuilds(t *testing.T) {
	s, ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go s.RunHub(ctx)

	conn, err := dialWS(ctx, t, ts, ts.URL)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	mixed := &build.Report{ID: "mixed", Failures: []build.Failure{
		{Path: "/dist/a", Err: errors.NewIOError(errors.OpMkdir, "/dist/a", stderrors.New("denied"))},
		{Path: "/src/y.ejs", Err: errors.NewRenderError("/src/y.ejs", stderrors.New("bad"))},
		{Path: "/src/z.ejs", Err: errors.NewRenderError("/src/z.ejs", stderrors.New("bad"))},
	}}

	tests := []struct {
		report     *build.Report
		wantType   string
		wantRender int
		wantIO     int
	}{
		{&build.Report{ID: "ok", Succeeded: []build.Output{{Path: "/dist/a.html"}}}, MessageReload, 0, 0},
		{&build.Report{ID: "bad", Failures: []build.Failure{{Path: "/src/x", Err: stderrors.New("x")}}}, MessageBuildFailed, 0, 0},
		{mixed, MessageBuildFailed, 2, 1},
	}

	for _, tt := range tests {
		s.NotifyBuild(tt.report)

		_, data, err := conn.Read(ctx)
		require.NoError(t, err)

		var msg UpdateMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, tt.wantType, msg.Type)
		assert.Equal(t, tt.report.ID, msg.BuildID)
		assert.Equal(t, len(tt.report.Succeeded), msg.Files)
		assert.Equal(t, len(tt.report.Failures), msg.Failures)
		assert.Equal(t, tt.wantRender, msg.RenderFailures)
		assert.Equal(t, tt.wantIO, msg.IOFailures)
	}

	conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return s.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	s, ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go s.RunHub(ctx)

	_, err := dialWS(ctx, t, ts, "http://evil.example.com")
	assert.Error(t, err)
	assert.Equal(t, 0, s.ClientCount())
}

func TestCheckOrigin(t *testing.T) {
	s := New(Config{Root: "/dist", Fs: afero.NewMemMapFs()})

	tests := []struct {
		name   string
		host   string
		origin string
		want   bool
	}{
		{"no origin", "localhost:8080", "", true},
		{"same origin", "localhost:8080", "http://localhost:8080", true},
		{"loopback alias", "localhost:8080", "http://127.0.0.1:8080", true},
		{"loopback other port", "localhost:8080", "http://127.0.0.1:9090", false},
		{"foreign host", "localhost:8080", "http://evil.example.com", false},
		{"bad scheme", "localhost:8080", "file://localhost:8080", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, RouteWS, nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, s.checkOrigin(r))
		})
	}
}

func TestShutdown(t *testing.T) {
	s, ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go s.RunHub(ctx)

	conn, err := dialWS(ctx, t, ts, "")
	require.NoError(t, err)
	defer conn.CloseNow()
	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, s.Shutdown(ctx))
	assert.Equal(t, 0, s.ClientCount())

	_, _, err = conn.Read(ctx)
	assert.Error(t, err)
}
