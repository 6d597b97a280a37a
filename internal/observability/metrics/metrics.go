// Package metrics aggregates in-memory counters and gauges for the
// orchestrator: reconcile outcomes, application lifecycle fan-outs, pull
// dispatches by scheme, active streams, module registrations, and admin API
// requests. The recorder renders Prometheus text format on /metrics without
// pulling a client library into the control plane.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates orchestrator metrics. All methods are safe for
// concurrent use; a RWMutex guards the label maps (including the module
// gauge) while the active-stream gauge is atomic.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	reconciles      map[string]uint64
	appEvents       map[string]uint64
	pullAttempts    map[string]uint64
	pullFailures    map[string]uint64
	streamEvents    map[string]uint64
	moduleGauge     map[string]int64
	activeStreams   atomic.Int64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		reconciles:      make(map[string]uint64),
		appEvents:       make(map[string]uint64),
		pullAttempts:    make(map[string]uint64),
		pullFailures:    make(map[string]uint64),
		streamEvents:    make(map[string]uint64),
		moduleGauge:     make(map[string]int64),
	}
}

// Default returns the singleton Recorder shared by packages that do not
// carry their own instrumentation pipeline.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest accumulates request count and cumulative duration by HTTP
// method, path, and status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   path,
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObserveReconcile records the outcome of an origin-map apply ("applied" or
// "failed").
func (r *Recorder) ObserveReconcile(outcome string) {
	r.increment(r.reconciles, outcome)
}

// ApplicationEvent records an application lifecycle outcome such as
// "created", "deleted", "rollback", or "exists".
func (r *Recorder) ApplicationEvent(event string) {
	r.increment(r.appEvents, event)
}

// ObservePullAttempt records a pull dispatch keyed by URL scheme.
func (r *Recorder) ObservePullAttempt(scheme string) {
	r.increment(r.pullAttempts, scheme)
}

// ObservePullFailure records a pull whose every candidate was rejected.
func (r *Recorder) ObservePullFailure(scheme string) {
	r.increment(r.pullFailures, scheme)
}

// StreamStarted records a stream birth and bumps the active-stream gauge.
func (r *Recorder) StreamStarted() {
	r.increment(r.streamEvents, "start")
	r.activeStreams.Add(1)
}

// StreamStopped records a stream death, guarding the gauge against going
// negative when events race.
func (r *Recorder) StreamStopped() {
	r.increment(r.streamEvents, "stop")
	for {
		current := r.activeStreams.Load()
		if current <= 0 {
			return
		}
		if r.activeStreams.CompareAndSwap(current, current-1) {
			return
		}
	}
}

// ActiveStreams exposes the current live-stream gauge.
func (r *Recorder) ActiveStreams() int64 {
	return r.activeStreams.Load()
}

// ModuleRegistered bumps the per-kind registration gauge.
func (r *Recorder) ModuleRegistered(kind string) {
	r.addGauge(kind, 1)
}

// ModuleUnregistered decrements the per-kind registration gauge.
func (r *Recorder) ModuleUnregistered(kind string) {
	r.addGauge(kind, -1)
}

func (r *Recorder) addGauge(kind string, delta int64) {
	key := normalizeName(kind)
	r.mu.Lock()
	r.moduleGauge[key] += delta
	if r.moduleGauge[key] < 0 {
		r.moduleGauge[key] = 0
	}
	r.mu.Unlock()
}

func (r *Recorder) increment(counters map[string]uint64, key string) {
	normalized := normalizeName(key)
	r.mu.Lock()
	counters[normalized]++
	r.mu.Unlock()
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// Reset clears every counter and gauge. Intended for tests.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.reconciles = make(map[string]uint64)
	r.appEvents = make(map[string]uint64)
	r.pullAttempts = make(map[string]uint64)
	r.pullFailures = make(map[string]uint64)
	r.streamEvents = make(map[string]uint64)
	r.moduleGauge = make(map[string]int64)
	r.mu.Unlock()
	r.activeStreams.Store(0)
}

// Handler serves the recorder in Prometheus text exposition format.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the metrics with sorted label sets for stable scrapes.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := sortedRequestLabels(r.requestCount)

	fmt.Fprintln(w, "# HELP emberlive_http_requests_total Total number of admin API requests")
	fmt.Fprintln(w, "# TYPE emberlive_http_requests_total counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "emberlive_http_requests_total{method=%q,path=%q,status=%q} %d\n", label.method, label.path, label.status, r.requestCount[label])
	}

	fmt.Fprintln(w, "# HELP emberlive_http_request_duration_seconds_sum Cumulative admin API request duration in seconds")
	fmt.Fprintln(w, "# TYPE emberlive_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "emberlive_http_request_duration_seconds_sum{method=%q,path=%q,status=%q} %f\n", label.method, label.path, label.status, r.requestDuration[label].Seconds())
	}

	fmt.Fprintln(w, "# HELP emberlive_reconciles_total Origin-map reconciles by outcome")
	fmt.Fprintln(w, "# TYPE emberlive_reconciles_total counter")
	for _, key := range sortedKeys(r.reconciles) {
		fmt.Fprintf(w, "emberlive_reconciles_total{outcome=%q} %d\n", key, r.reconciles[key])
	}

	fmt.Fprintln(w, "# HELP emberlive_application_events_total Application lifecycle events by type")
	fmt.Fprintln(w, "# TYPE emberlive_application_events_total counter")
	for _, key := range sortedKeys(r.appEvents) {
		fmt.Fprintf(w, "emberlive_application_events_total{event=%q} %d\n", key, r.appEvents[key])
	}

	fmt.Fprintln(w, "# HELP emberlive_pull_attempts_total Pull dispatches by URL scheme")
	fmt.Fprintln(w, "# TYPE emberlive_pull_attempts_total counter")
	for _, key := range sortedKeys(r.pullAttempts) {
		fmt.Fprintf(w, "emberlive_pull_attempts_total{scheme=%q} %d\n", key, r.pullAttempts[key])
	}

	fmt.Fprintln(w, "# HELP emberlive_pull_failures_total Pulls rejected by every provider, by URL scheme")
	fmt.Fprintln(w, "# TYPE emberlive_pull_failures_total counter")
	for _, key := range sortedKeys(r.pullFailures) {
		fmt.Fprintf(w, "emberlive_pull_failures_total{scheme=%q} %d\n", key, r.pullFailures[key])
	}

	fmt.Fprintln(w, "# HELP emberlive_stream_events_total Stream lifecycle events by type")
	fmt.Fprintln(w, "# TYPE emberlive_stream_events_total counter")
	for _, key := range sortedKeys(r.streamEvents) {
		fmt.Fprintf(w, "emberlive_stream_events_total{event=%q} %d\n", key, r.streamEvents[key])
	}

	fmt.Fprintln(w, "# HELP emberlive_active_streams Current number of live streams")
	fmt.Fprintln(w, "# TYPE emberlive_active_streams gauge")
	fmt.Fprintf(w, "emberlive_active_streams %d\n", r.activeStreams.Load())

	fmt.Fprintln(w, "# HELP emberlive_registered_modules Registered modules by kind")
	fmt.Fprintln(w, "# TYPE emberlive_registered_modules gauge")
	keys := make([]string, 0, len(r.moduleGauge))
	for key := range r.moduleGauge {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(w, "emberlive_registered_modules{kind=%q} %d\n", key, r.moduleGauge[key])
	}
}

func sortedKeys(counters map[string]uint64) []string {
	keys := make([]string, 0, len(counters))
	for key := range counters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortedRequestLabels(counts map[requestLabel]uint64) []requestLabel {
	labels := make([]requestLabel, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		return labels[i].status < labels[j].status
	})
	return labels
}
