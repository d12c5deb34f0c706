package logging

import (
	"fmt"
	"strings"
	"sync"
)

// Entry is one message captured by a Recorder.
type Entry struct {
	Level     string
	Message   string
	KeyValues []any
}

// String renders the entry as "level: message k=v ...".
func (e Entry) String() string {
	var b strings.Builder
	b.WriteString(e.Level)
	b.WriteString(": ")
	b.WriteString(e.Message)
	for i := 0; i+1 < len(e.KeyValues); i += 2 {
		fmt.Fprintf(&b, " %v=%v", e.KeyValues[i], e.KeyValues[i+1])
	}
	return b.String()
}

// Recorder is a Logger that keeps every entry in memory. Tests use it to
// assert that recoverable anomalies were reported.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(level, msg string, keyValues []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Message: msg, KeyValues: keyValues})
}

func (r *Recorder) Info(msg string, keyValues ...any)  { r.record("info", msg, keyValues) }
func (r *Recorder) Error(msg string, keyValues ...any) { r.record("error", msg, keyValues) }
func (r *Recorder) Debug(msg string, keyValues ...any) { r.record("debug", msg, keyValues) }
func (r *Recorder) Warn(msg string, keyValues ...any)  { r.record("warn", msg, keyValues) }

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Count returns how many entries at level contain substr in their message.
// An empty level matches every level.
func (r *Recorder) Count(level, substr string) int {
	n := 0
	for _, e := range r.Entries() {
		if (level == "" || e.Level == level) && strings.Contains(e.Message, substr) {
			n++
		}
	}
	return n
}

// Reset drops all recorded entries.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}
