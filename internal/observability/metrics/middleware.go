package metrics

import (
	"net/http"
	"time"
)

// statusRecorder captures the final status code written by a handler. The
// admin API serves JSON only, so the exotic ResponseWriter extensions
// (hijacking, push) are not forwarded.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func (sr *statusRecorder) Flush() {
	if flusher, ok := sr.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// HTTPMiddleware records request count and duration around the handler,
// falling back to the default recorder when none is supplied.
func HTTPMiddleware(recorder *Recorder, next http.Handler) http.Handler {
	rec := recorder
	if rec == nil {
		rec = Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sr, r)
		rec.ObserveRequest(r.Method, r.URL.Path, sr.status, time.Since(start))
	})
}
