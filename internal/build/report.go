package build

import (
	"encoding/json"
	stderrors "errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conneroisu/htmlc/internal/errors"
)

// Output describes one rendered file.
type Output struct {
	Source   string        `json:"source"`
	Path     string        `json:"path"`
	Bytes    int           `json:"bytes"`
	Duration time.Duration `json:"duration"`
}

// Failure describes one failed operation.
type Failure struct {
	Path string
	Op   string
	Err  error
}

// Kind classifies the failure by the BuildErrors anywhere in its error
// tree. A render error wins over the I/O error that wraps it.
func (f Failure) Kind() errors.ErrorType {
	switch {
	case errors.IsConfigError(f.Err):
		return errors.ErrorTypeConfig
	case errors.IsRenderError(f.Err):
		return errors.ErrorTypeRender
	case errors.IsIOError(f.Err):
		return errors.ErrorTypeIO
	default:
		return errors.ErrorTypeInternal
	}
}

// MarshalJSON renders the error as its message.
func (f Failure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		Path  string `json:"path"`
		Op    string `json:"op"`
		Kind  string `json:"kind"`
		Error string `json:"error"`
	}{f.Path, f.Op, string(f.Kind()), msg})
}

// Report is the outcome of one Build. It is safe for concurrent use while
// the build runs; once Build returns it is no longer mutated.
type Report struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Succeeded   []Output  `json:"succeeded"`
	Directories []string  `json:"directories"`
	Failures    []Failure `json:"failures"`

	mu sync.Mutex
}

func newReport(src, dest string) *Report {
	return &Report{
		ID:          uuid.NewString(),
		Source:      src,
		Destination: dest,
		StartedAt:   time.Now(),
		Succeeded:   make([]Output, 0),
		Directories: make([]string, 0),
		Failures:    make([]Failure, 0),
	}
}

func (r *Report) addOutput(o Output) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Succeeded = append(r.Succeeded, o)
}

func (r *Report) addDirectory(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Directories = append(r.Directories, path)
}

func (r *Report) addFailure(f Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failures = append(r.Failures, f)
}

// finish stamps the end time and sorts the lists so reports of the same
// tree compare equal regardless of scheduling.
func (r *Report) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = time.Now()
	sort.Slice(r.Succeeded, func(i, j int) bool { return r.Succeeded[i].Path < r.Succeeded[j].Path })
	sort.Strings(r.Directories)
	sort.SliceStable(r.Failures, func(i, j int) bool { return r.Failures[i].Path < r.Failures[j].Path })
}

// Duration returns the wall time of the build.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// OK reports whether the build finished without failures.
func (r *Report) OK() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Failures) == 0
}

// Err joins the errors of all failures, or returns nil.
func (r *Report) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, f.Err)
	}
	return stderrors.Join(errs...)
}

// CountKind returns how many failures are of the given kind.
func (r *Report) CountKind(kind errors.ErrorType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, f := range r.Failures {
		if f.Kind() == kind {
			n++
		}
	}
	return n
}

// OutputPaths returns the written file paths.
func (r *Report) OutputPaths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := make([]string, 0, len(r.Succeeded))
	for _, o := range r.Succeeded {
		paths = append(paths, o.Path)
	}
	return paths
}
