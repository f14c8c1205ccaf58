package testing

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorInjector_BasicInjection(t *testing.T) {
	injector := NewErrorInjector()
	testErr := errors.New("test error")
	injector.InjectError(OpStat, "/src/a", testErr)

	assert.Equal(t, testErr, injector.ShouldFail(OpStat, "/src/a"))
	assert.Equal(t, testErr, injector.ShouldFail(OpStat, "/src/./a"), "paths are cleaned")
	assert.NoError(t, injector.ShouldFail(OpStat, "/src/b"))
	assert.NoError(t, injector.ShouldFail(OpMkdir, "/src/a"))
}

func TestErrorInjector_AnyPath(t *testing.T) {
	injector := NewErrorInjector()
	injector.InjectError(OpWrite, AnyPath, ErrDiskFull)

	assert.ErrorIs(t, injector.ShouldFail(OpWrite, "/x"), ErrDiskFull)
	assert.ErrorIs(t, injector.ShouldFail(OpWrite, "/y/z"), ErrDiskFull)
	assert.NoError(t, injector.ShouldFail(OpStat, "/x"))
}

func TestErrorInjector_CountedInjection(t *testing.T) {
	injector := NewErrorInjector()
	injector.InjectErrorOnce(OpMkdir, "/d", ErrPermissionDenied)

	assert.Error(t, injector.ShouldFail(OpMkdir, "/d"))
	assert.NoError(t, injector.ShouldFail(OpMkdir, "/d"))

	injector.InjectErrorCount(OpMkdir, "/e", ErrIO, 3)
	for i := 0; i < 3; i++ {
		assert.Error(t, injector.ShouldFail(OpMkdir, "/e"), "call %d", i+1)
	}
	assert.NoError(t, injector.ShouldFail(OpMkdir, "/e"))

	stats := injector.GetStats()
	assert.Equal(t, 2, stats.TotalTargets)
	assert.Equal(t, 0, stats.ActiveTargets)
	assert.Equal(t, int64(4), stats.TotalInjections)
}

func TestErrorInjector_EnableDisable(t *testing.T) {
	injector := NewErrorInjector()
	injector.InjectError(OpStat, AnyPath, ErrIO)

	injector.Disable()
	assert.NoError(t, injector.ShouldFail(OpStat, "/a"))
	injector.Enable()
	assert.Error(t, injector.ShouldFail(OpStat, "/a"))

	injector.Clear()
	assert.NoError(t, injector.ShouldFail(OpStat, "/a"))
}

func TestFaultFs(t *testing.T) {
	fsys := NewFaultFs(nil)
	require.NoError(t, fsys.MkdirAll("/src/sub", 0o755))
	require.NoError(t, afero.WriteFile(fsys, "/src/a.tmpl", []byte("a"), 0o644))

	t.Run("readdir", func(t *testing.T) {
		fsys.Fail(OpReadDir, "/src", ErrIO)
		defer fsys.Injector.Clear()

		_, err := afero.ReadDir(fsys, "/src")
		var pe *os.PathError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, OpReadDir, pe.Op)
		assert.ErrorIs(t, err, ErrIO)
	})

	t.Run("stat", func(t *testing.T) {
		fsys.Fail(OpStat, "/src/a.tmpl", ErrPermissionDenied)
		defer fsys.Injector.Clear()

		_, err := fsys.Stat("/src/a.tmpl")
		assert.ErrorIs(t, err, ErrPermissionDenied)
		_, err = fsys.Stat("/src/sub")
		assert.NoError(t, err)
	})

	t.Run("write", func(t *testing.T) {
		fsys.Fail(OpWrite, AnyPath, ErrDiskFull)
		defer fsys.Injector.Clear()

		err := afero.WriteFile(fsys, "/out.html", []byte("x"), 0o644)
		assert.ErrorIs(t, err, ErrDiskFull)

		data, err := afero.ReadFile(fsys, "/src/a.tmpl")
		require.NoError(t, err, "reads are not writes")
		assert.Equal(t, "a", string(data))
	})

	t.Run("mkdir and removeall", func(t *testing.T) {
		fsys.Fail(OpMkdir, "/dist", ErrPermissionDenied)
		fsys.Fail(OpRemoveAll, "/old", ErrIO)
		defer fsys.Injector.Clear()

		assert.Error(t, fsys.Mkdir("/dist", 0o755))
		assert.Error(t, fsys.RemoveAll("/old"))
		assert.NoError(t, fsys.Mkdir(filepath.Join("/src", "other"), 0o755))
	})
}
