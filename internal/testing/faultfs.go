package testing

import (
	"os"

	"github.com/spf13/afero"
)

// FaultFs wraps an afero.Fs and fails the operations configured on its
// injector. Writes are any OpenFile or Create with a write flag.
type FaultFs struct {
	afero.Fs
	Injector *ErrorInjector
}

// NewFaultFs wraps base. A nil base is replaced by an in-memory filesystem.
func NewFaultFs(base afero.Fs) *FaultFs {
	if base == nil {
		base = afero.NewMemMapFs()
	}
	return &FaultFs{Fs: base, Injector: NewErrorInjector()}
}

// Fail makes op on path fail with err until cleared.
func (f *FaultFs) Fail(op, path string, err error) *FaultFs {
	f.Injector.InjectError(op, path, err)
	return f
}

func pathErr(op, path string, err error) error {
	return &os.PathError{Op: op, Path: path, Err: err}
}

// Name implements afero.Fs.
func (f *FaultFs) Name() string { return "FaultFs" }

// Open implements afero.Fs. Directory listings on the returned file are
// subject to OpReadDir.
func (f *FaultFs) Open(name string) (afero.File, error) {
	if err := f.Injector.ShouldFail(OpOpen, name); err != nil {
		return nil, pathErr(OpOpen, name, err)
	}
	file, err := f.Fs.Open(name)
	if err != nil {
		return nil, err
	}
	return &faultFile{File: file, fs: f, name: name}, nil
}

// OpenFile implements afero.Fs.
func (f *FaultFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR) != 0 {
		if err := f.Injector.ShouldFail(OpWrite, name); err != nil {
			return nil, pathErr(OpWrite, name, err)
		}
	} else if err := f.Injector.ShouldFail(OpOpen, name); err != nil {
		return nil, pathErr(OpOpen, name, err)
	}
	file, err := f.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &faultFile{File: file, fs: f, name: name}, nil
}

// Create implements afero.Fs.
func (f *FaultFs) Create(name string) (afero.File, error) {
	return f.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
}

// Stat implements afero.Fs.
func (f *FaultFs) Stat(name string) (os.FileInfo, error) {
	if err := f.Injector.ShouldFail(OpStat, name); err != nil {
		return nil, pathErr(OpStat, name, err)
	}
	return f.Fs.Stat(name)
}

// Mkdir implements afero.Fs.
func (f *FaultFs) Mkdir(name string, perm os.FileMode) error {
	if err := f.Injector.ShouldFail(OpMkdir, name); err != nil {
		return pathErr(OpMkdir, name, err)
	}
	return f.Fs.Mkdir(name, perm)
}

// MkdirAll implements afero.Fs.
func (f *FaultFs) MkdirAll(name string, perm os.FileMode) error {
	if err := f.Injector.ShouldFail(OpMkdir, name); err != nil {
		return pathErr(OpMkdir, name, err)
	}
	return f.Fs.MkdirAll(name, perm)
}

// Remove implements afero.Fs.
func (f *FaultFs) Remove(name string) error {
	if err := f.Injector.ShouldFail(OpRemove, name); err != nil {
		return pathErr(OpRemove, name, err)
	}
	return f.Fs.Remove(name)
}

// RemoveAll implements afero.Fs.
func (f *FaultFs) RemoveAll(name string) error {
	if err := f.Injector.ShouldFail(OpRemoveAll, name); err != nil {
		return pathErr(OpRemoveAll, name, err)
	}
	return f.Fs.RemoveAll(name)
}

type faultFile struct {
	afero.File
	fs   *FaultFs
	name string
}

func (f *faultFile) Readdir(count int) ([]os.FileInfo, error) {
	if err := f.fs.Injector.ShouldFail(OpReadDir, f.name); err != nil {
		return nil, pathErr(OpReadDir, f.name, err)
	}
	return f.File.Readdir(count)
}

func (f *faultFile) Readdirnames(n int) ([]string, error) {
	if err := f.fs.Injector.ShouldFail(OpReadDir, f.name); err != nil {
		return nil, pathErr(OpReadDir, f.name, err)
	}
	return f.File.Readdirnames(n)
}
