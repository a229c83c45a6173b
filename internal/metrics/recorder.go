package metrics

import "time"

// Record captures the outcome of one synthesis or proxy request.
type Record struct {
	ProcessID   string
	Source      string
	Text        string
	AudioFormat string
	Cached      bool
	Elapsed     time.Duration
}

// Recorder accepts performance records without blocking the request path.
// Close drains pending records before returning.
type Recorder interface {
	Record(rec Record)
	Close()
}

// NoopRecorder discards all records; used when no datastore is configured.
type NoopRecorder struct{}

func (NoopRecorder) Record(Record) {}
func (NoopRecorder) Close()        {}
