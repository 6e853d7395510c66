package stats

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Event describes one answered request.
type Event struct {
	Backend  string
	Method   string
	Path     string
	Status   int
	Kind     string
	Duration time.Duration
	At       time.Time
}

// Class returns the status class of the event, e.g. "5xx".
func (e Event) Class() string {
	return StatusClass(e.Status)
}

// StatusClass maps a status code to its class.
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}

// Recorder persists events.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Summarizer reports aggregated counters.
type Summarizer interface {
	Summary(ctx context.Context) (Summary, error)
}

// Store records and summarizes events.
type Store interface {
	Recorder
	Summarizer
	Close() error
}

// Summary is the aggregated view of recorded events.
type Summary struct {
	Requests   int64                       `json:"requests"`
	ByClass    map[string]int64            `json:"byClass"`
	DurationMs int64                       `json:"durationMs"`
	ByBackend  map[string]map[string]int64 `json:"byBackend"`
}

func newSummary() Summary {
	return Summary{
		ByClass:   make(map[string]int64),
		ByBackend: make(map[string]map[string]int64),
	}
}

// NopRecorder discards events.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(context.Context, Event) error { return nil }

func routeField(method, path string) string {
	return strings.TrimSpace(strings.TrimSpace(method) + " " + strings.TrimSpace(path))
}
