package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/htmlc/internal/errors"
)

// chdir changes the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

// setupCommandTest runs the test in a fresh working directory with clean
// global configuration.
func setupCommandTest(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	chdir(t, dir)

	viper.Reset()
	cfgFile = ""
	configErr = nil
	buildRenderOptions = nil
	initTemplate, initName, initForce, initList = "basic", "", false, false
	versionFormat, versionShort, versionDetailed = "text", false, false
	t.Cleanup(viper.Reset)

	return dir
}

func newTestCommand() (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&out)
	c.SetErr(io.Discard)
	return c, &out
}

// syncBuffer is a bytes.Buffer safe to write from a running command while
// the test reads it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var listenURL = regexp.MustCompile(`url=(http://\S+)`)

// startCommand runs fn in the background under a cancellable context. The
// returned stop cancels it and returns its error.
func startCommand(t *testing.T, c *cobra.Command, fn func() error) (stop func() error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	c.SetContext(ctx)

	errc := make(chan error, 1)
	go func() { errc <- fn() }()

	return func() error {
		cancel()
		select {
		case err := <-errc:
			return err
		case <-time.After(10 * time.Second):
			t.Fatal("command did not stop after cancel")
			return nil
		}
	}
}

func writeFiles(t *testing.T, files map[string]string) {
	t.Helper()
	for path, content := range files {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestBuildCommand(t *testing.T) {
	setupCommandTest(t)
	writeFiles(t, map[string]string{
		"src/index.tmpl":   "<h1>{{if true}}Home{{end}}</h1>",
		"src/blog/post.md": "# Post",
		"dist/stale.html":  "old",
	})
	initConfig()

	c, out := newTestCommand()
	require.NoError(t, runBuild(c, nil))

	assert.Equal(t, "<h1>Home</h1>", readFile(t, "dist/index.html"))
	assert.Contains(t, readFile(t, "dist/blog/post.html"), "<h1>Post</h1>")
	assert.NoFileExists(t, "dist/stale.html")
	assert.Contains(t, out.String(), "Built 2 files, 1 directories, 0 failures")
}

func TestBuildCommand_PositionalArgs(t *testing.T) {
	setupCommandTest(t)
	writeFiles(t, map[string]string{"pages/a.tmpl": "a"})
	initConfig()

	c, _ := newTestCommand()
	require.NoError(t, runBuild(c, []string{"pages", "public"}))

	assert.Equal(t, "a", readFile(t, "public/a.html"))
}

func TestBuildCommand_ExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		args     []string
		wantCode int
	}{
		{
			name:     "render failure",
			files:    map[string]string{"src/bad.tmpl": "{{"},
			wantCode: errors.ExitFailure,
		},
		{
			name:     "overlapping roots",
			files:    map[string]string{"src/a.tmpl": "a"},
			args:     []string{"src", "src/out"},
			wantCode: errors.ExitConfigError,
		},
		{
			name:     "destination parent missing",
			files:    map[string]string{"src/a.tmpl": "a"},
			args:     []string{"src", "missing/dist"},
			wantCode: errors.ExitConfigError,
		},
		{
			name:     "unknown engine",
			files:    map[string]string{"src/a.tmpl": "a", ".htmlc.yml": "engine: jade\n"},
			wantCode: errors.ExitConfigError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupCommandTest(t)
			writeFiles(t, tt.files)
			initConfig()

			c, _ := newTestCommand()
			err := runBuild(c, tt.args)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.ExitCode(err))
		})
	}
}

func TestBuildCommand_ConfigFile(t *testing.T) {
	setupCommandTest(t)
	writeFiles(t, map[string]string{
		"pages/index.tmpl": "<<if true>>yes<<end>>",
		".htmlc.yml": `source: pages
destination: public
options:
  left_delim: "<<"
  right_delim: ">>"
`,
	})
	initConfig()

	c, _ := newTestCommand()
	require.NoError(t, runBuild(c, nil))

	assert.Equal(t, "yes", readFile(t, "public/index.html"))
}

func TestBuildCommand_OptionFlag(t *testing.T) {
	setupCommandTest(t)
	writeFiles(t, map[string]string{"src/index.tmpl": "[[ if true ]]ok[[ end ]]"})
	initConfig()

	buildRenderOptions = map[string]string{"left_delim": "[[", "right_delim": "]]"}
	c, _ := newTestCommand()
	require.NoError(t, runBuild(c, nil))

	assert.Equal(t, "ok", readFile(t, "dist/index.html"))
}

func TestBuildCommand_EnvironmentAndDotEnv(t *testing.T) {
	setupCommandTest(t)
	t.Cleanup(func() { os.Unsetenv("HTMLC_DESTINATION") })
	writeFiles(t, map[string]string{
		"src/a.tmpl": "a",
		".env":       "HTMLC_DESTINATION=site\n",
	})
	initConfig()

	c, _ := newTestCommand()
	require.NoError(t, runBuild(c, nil))

	assert.FileExists(t, "site/a.html")
	assert.NoDirExists(t, "dist")
}

func TestBuildCommand_MissingExplicitConfig(t *testing.T) {
	setupCommandTest(t)
	cfgFile = "nope.yml"
	initConfig()

	c, _ := newTestCommand()
	err := runBuild(c, nil)
	require.Error(t, err)
	assert.Equal(t, errors.ExitConfigError, errors.ExitCode(err))
}

func TestBuildCommand_FlagsBindToConfig(t *testing.T) {
	setupCommandTest(t)
	writeFiles(t, map[string]string{
		"src/bad.tmpl":  "{{",
		"src/good.tmpl": "good",
	})
	initConfig()

	c, out := newTestCommand()
	addBuildFlags(c)
	require.NoError(t, c.Flags().Parse([]string{"--continue-on-error", "-j", "1"}))

	err := runBuild(c, nil)
	require.Error(t, err)
	assert.Equal(t, "good", readFile(t, "dist/good.html"))
	assert.Contains(t, out.String(), "Build failed: 1 files, 0 directories, 1 failures")
	assert.Contains(t, out.String(), "✗ [render] ")
	assert.Contains(t, out.String(), "1 render, 0 io, 0 config")
	assert.Equal(t, 1, viper.GetInt("build.jobs"))
}

func TestWatchCommand_RebuildsAndServesUntilCancelled(t *testing.T) {
	setupCommandTest(t)
	writeFiles(t, map[string]string{"src/index.tmpl": "<h1>one</h1>"})
	initConfig()

	c := &cobra.Command{}
	out, logs := &syncBuffer{}, &syncBuffer{}
	c.SetOut(out)
	c.SetErr(logs)
	addBuildFlags(c)
	addServerFlags(c)
	c.Flags().Bool("serve", false, "")
	c.Flags().Duration("debounce", 0, "")
	require.NoError(t, c.Flags().Parse([]string{"--serve", "--port", "0", "--debounce", "20ms"}))

	stop := startCommand(t, c, func() error { return runWatch(c, nil) })

	require.Eventually(t, func() bool {
		return listenURL.MatchString(logs.String()) && strings.Contains(out.String(), "Watching src")
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "<h1>one</h1>", readFile(t, "dist/index.html"))

	resp, err := http.Get(listenURL.FindStringSubmatch(logs.String())[1] + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "<h1>one</h1>")

	require.NoError(t, os.WriteFile("src/index.tmpl", []byte("<h1>two</h1>"), 0o644))
	require.Eventually(t, func() bool {
		data, err := os.ReadFile("dist/index.html")
		return err == nil && string(data) == "<h1>two</h1>"
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, stop())
}

func TestWatchCommand_FirstBuildConfigErrorExits(t *testing.T) {
	setupCommandTest(t)
	writeFiles(t, map[string]string{"src/a.tmpl": "a"})
	initConfig()

	c, _ := newTestCommand()
	errc := make(chan error, 1)
	go func() { errc <- runWatch(c, []string{"src", "missing/dist"}) }()

	select {
	case err := <-errc:
		require.Error(t, err)
		assert.Equal(t, errors.ExitConfigError, errors.ExitCode(err))
	case <-time.After(10 * time.Second):
		t.Fatal("watch kept running after a config error")
	}
	assert.NoDirExists(t, "missing")
}

func TestServeCommand_ServesUntilCancelled(t *testing.T) {
	setupCommandTest(t)
	writeFiles(t, map[string]string{"public/index.html": "<html><body>hi</body></html>"})
	initConfig()

	c := &cobra.Command{}
	logs := &syncBuffer{}
	c.SetOut(io.Discard)
	c.SetErr(logs)
	addServerFlags(c)
	require.NoError(t, c.Flags().Parse([]string{"--port", "0"}))

	stop := startCommand(t, c, func() error { return runServe(c, []string{"public"}) })

	require.Eventually(t, func() bool { return listenURL.MatchString(logs.String()) }, 5*time.Second, 20*time.Millisecond)
	resp, err := http.Get(listenURL.FindStringSubmatch(logs.String())[1] + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "hi")

	require.NoError(t, stop())
}

func TestInitCommand(t *testing.T) {
	dir := setupCommandTest(t)

	c, out := newTestCommand()
	require.NoError(t, runInit(c, []string{"my-site"}))

	for _, f := range []string{".htmlc.yml", "src/index.tmpl", "src/about.md", "partials/header.tmpl"} {
		assert.FileExists(t, filepath.Join(dir, "my-site", f))
	}
	assert.Contains(t, out.String(), "Next: cd my-site")

	// The scaffolded project builds as is.
	chdir(t, filepath.Join(dir, "my-site"))
	viper.Reset()
	initConfig()

	c, _ = newTestCommand()
	require.NoError(t, runBuild(c, nil))
	index := readFile(t, "dist/index.html")
	assert.Contains(t, index, "<title>My Site</title>")
	assert.Contains(t, index, "<header>")
	assert.FileExists(t, "dist/about.html")
}

func TestInitCommand_RefusesToOverwrite(t *testing.T) {
	setupCommandTest(t)
	writeFiles(t, map[string]string{".htmlc.yml": "source: mine\n"})

	c, _ := newTestCommand()
	require.Error(t, runInit(c, nil))
	assert.Equal(t, "source: mine\n", readFile(t, ".htmlc.yml"))

	initForce = true
	require.NoError(t, runInit(c, nil))
	assert.NotEqual(t, "source: mine\n", readFile(t, ".htmlc.yml"))
}

func TestInitCommand_List(t *testing.T) {
	setupCommandTest(t)
	initList = true

	c, out := newTestCommand()
	require.NoError(t, runInit(c, nil))
	assert.Contains(t, out.String(), "basic")
	assert.Contains(t, out.String(), "minimal")
	assert.NoFileExists(t, ".htmlc.yml")
}

func TestEnginesCommand(t *testing.T) {
	c, out := newTestCommand()
	require.NoError(t, runEngines(c, nil))

	for _, want := range []string{"ENGINE", "auto", "markdown", ".md", "template", ".ejs"} {
		assert.Contains(t, out.String(), want)
	}
}

func TestVersionCommand(t *testing.T) {
	setupCommandTest(t)

	c, out := newTestCommand()
	require.NoError(t, runVersionCommand(c, nil))
	assert.Contains(t, out.String(), "htmlc ")

	versionFormat = "json"
	out.Reset()
	require.NoError(t, runVersionCommand(c, nil))
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "go_version")

	versionFormat = "xml"
	assert.Error(t, runVersionCommand(c, nil))
}
