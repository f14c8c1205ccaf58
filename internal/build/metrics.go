package build

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// BuildMetrics accumulates counters across builds run by one Builder.
type BuildMetrics struct {
	TotalBuilds     int64
	FailedBuilds    int64
	CompiledFiles   int64
	FailedFiles     int64
	Directories     int64
	TotalDuration   time.Duration
	AverageDuration time.Duration
	mutex           sync.RWMutex
}

// NewBuildMetrics creates a new build metrics tracker
func NewBuildMetrics() *BuildMetrics {
	return &BuildMetrics{}
}

// RecordBuild records the outcome of a whole build.
func (bm *BuildMetrics) RecordBuild(duration time.Duration, err error) {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.TotalBuilds++
	bm.TotalDuration += duration
	if err != nil {
		bm.FailedBuilds++
	}
	bm.AverageDuration = bm.TotalDuration / time.Duration(bm.TotalBuilds)
}

// RecordFile records one compiled or failed file.
func (bm *BuildMetrics) RecordFile(err error) {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	if err != nil {
		bm.FailedFiles++
	} else {
		bm.CompiledFiles++
	}
}

// RecordDirectory records one created destination directory.
func (bm *BuildMetrics) RecordDirectory() {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()
	bm.Directories++
}

// GetSnapshot returns a snapshot of current metrics
func (bm *BuildMetrics) GetSnapshot() BuildMetrics {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()
	return BuildMetrics{
		TotalBuilds:     bm.TotalBuilds,
		FailedBuilds:    bm.FailedBuilds,
		CompiledFiles:   bm.CompiledFiles,
		FailedFiles:     bm.FailedFiles,
		Directories:     bm.Directories,
		TotalDuration:   bm.TotalDuration,
		AverageDuration: bm.AverageDuration,
	}
}

// Reset resets all metrics
func (bm *BuildMetrics) Reset() {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.TotalBuilds = 0
	bm.FailedBuilds = 0
	bm.CompiledFiles = 0
	bm.FailedFiles = 0
	bm.Directories = 0
	bm.TotalDuration = 0
	bm.AverageDuration = 0
}

// GetSuccessRate returns the file success rate as a percentage
func (bm *BuildMetrics) GetSuccessRate() float64 {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()

	total := bm.CompiledFiles + bm.FailedFiles
	if total == 0 {
		return 0.0
	}
	return float64(bm.CompiledFiles) / float64(total) * 100.0
}

// Recorder receives build events for an external metrics backend.
type Recorder interface {
	ObserveCompile(engine string, d time.Duration, err error)
	IncDirectory()
	ObserveBuild(d time.Duration, err error)
}

// NoopRecorder discards all events.
type NoopRecorder struct{}

func (NoopRecorder) ObserveCompile(string, time.Duration, error) {}
func (NoopRecorder) IncDirectory()                               {}
func (NoopRecorder) ObserveBuild(time.Duration, error)           {}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	compileDuration *prom.HistogramVec
	files           *prom.CounterVec
	directories     prom.Counter
	buildDuration   prom.Histogram
	buildOutcome    *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the htmlc metrics on reg.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		compileDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "htmlc",
			Name:      "compile_duration_seconds",
			Help:      "Duration of individual file compilations",
			Buckets:   prom.DefBuckets,
		}, []string{"engine", "result"}),
		files: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "htmlc",
			Name:      "files_total",
			Help:      "Compiled files by outcome",
		}, []string{"result"}),
		directories: prom.NewCounter(prom.CounterOpts{
			Namespace: "htmlc",
			Name:      "directories_total",
			Help:      "Destination directories created",
		}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "htmlc",
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "htmlc",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"}),
	}
	reg.MustRegister(pr.compileDuration, pr.files, pr.directories, pr.buildDuration, pr.buildOutcome)
	return pr
}

func resultLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}

// ObserveCompile implements Recorder.
func (p *PrometheusRecorder) ObserveCompile(engine string, d time.Duration, err error) {
	p.compileDuration.WithLabelValues(engine, resultLabel(err)).Observe(d.Seconds())
	p.files.WithLabelValues(resultLabel(err)).Inc()
}

// IncDirectory implements Recorder.
func (p *PrometheusRecorder) IncDirectory() {
	p.directories.Inc()
}

// ObserveBuild implements Recorder.
func (p *PrometheusRecorder) ObserveBuild(d time.Duration, err error) {
	p.buildDuration.Observe(d.Seconds())
	p.buildOutcome.WithLabelValues(resultLabel(err)).Inc()
}
