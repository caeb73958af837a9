// Package diagnostics drains pipeline bus messages into a cumulative,
// human-readable failure report and answers registry availability queries.
package diagnostics

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/engine"
	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/metrics"
)

// Drain window bounds. The collector never waits longer than MaxWindow for
// a message that may never arrive.
const (
	MinWindow     = 100 * time.Millisecond
	MaxWindow     = 500 * time.Millisecond
	DefaultWindow = 250 * time.Millisecond
)

// Entry is a classified error or warning taken off the bus.
type Entry struct {
	Kind     engine.MessageType
	Source   string
	Text     string
	Debug    string
	Category Category
}

// String formats the entry as "<KIND> from <source>: <text> (<debug>) [<category>]".
func (e Entry) String() string {
	debug := e.Debug
	if debug == "" {
		debug = "no debug"
	}
	return fmt.Sprintf("%s from %s: %s (%s) [%s]",
		strings.ToUpper(e.Kind.String()), e.Source, e.Text, debug, e.Category)
}

// Report is the cumulative last-error text of the current build attempt.
// Safe for concurrent use.
type Report struct {
	mu      sync.Mutex
	lines   []string
	entries []Entry
}

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{}
}

// Reset clears the report. Called at the start of every build.
func (r *Report) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = nil
	r.entries = nil
}

// Append adds a free-form line (error text, diagnose snapshot).
func (r *Report) Append(text string) {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, text)
}

// Record adds a classified bus entry.
func (r *Report) Record(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	r.lines = append(r.lines, e.String())
}

// LastError returns the newline-separated report, "" when nothing failed.
func (r *Report) LastError() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.lines, "\n")
}

// Entries returns a copy of the classified bus entries.
func (r *Report) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Collector drains buses into a report.
type Collector struct {
	report        *Report
	defaultWindow time.Duration
}

// NewCollector returns a collector writing into report. defaultWindow is
// used when Drain is called with a zero window; it is clamped like any
// other window.
func NewCollector(report *Report, defaultWindow time.Duration) *Collector {
	if defaultWindow <= 0 {
		defaultWindow = DefaultWindow
	}
	return &Collector{
		report:        report,
		defaultWindow: ClampWindow(defaultWindow),
	}
}

// Report returns the report the collector writes into.
func (c *Collector) Report() *Report {
	return c.report
}

// ClampWindow bounds a drain window to [MinWindow, MaxWindow].
func ClampWindow(window time.Duration) time.Duration {
	switch {
	case window < MinWindow:
		return MinWindow
	case window > MaxWindow:
		return MaxWindow
	default:
		return window
	}
}

// Drain pops bus messages until the window elapses or the bus is empty.
//
// This function:
//  1. Clamps the window (zero or negative uses the collector default)
//  2. Pops messages with the remaining window as timeout
//  3. Records errors and warnings, classified, into the report
//  4. Logs info, state-changed and async-done messages only
//
// Returns the number of entries recorded.
func (c *Collector) Drain(bus engine.Bus, window time.Duration) int {
	if bus == nil {
		return 0
	}
	if window <= 0 {
		window = c.defaultWindow
	}
	window = ClampWindow(window)

	start := time.Now()
	recorded := 0

	for {
		remaining := window - time.Since(start)
		if remaining <= 0 {
			break
		}
		msg := bus.TimedPop(remaining)
		if msg == nil {
			break
		}

		switch msg.Type {
		case engine.MessageError, engine.MessageWarning:
			entry := Entry{
				Kind:     msg.Type,
				Source:   msg.Source,
				Text:     msg.Text,
				Debug:    msg.Debug,
				Category: Classify(msg.Text, msg.Debug),
			}
			c.report.Record(entry)
			recorded++
			metrics.IncBusMessage(msg.Type.String(), entry.Category.String())

			slog.Warn("diagnostics: bus "+msg.Type.String(),
				"source", msg.Source,
				"text", msg.Text,
				"debug", msg.Debug,
				"category", entry.Category.String(),
			)

		case engine.MessageInfo:
			metrics.IncBusMessage(msg.Type.String(), "")
			slog.Info("diagnostics: bus info", "source", msg.Source, "text", msg.Text)

		case engine.MessageStateChanged:
			metrics.IncBusMessage(msg.Type.String(), "")
			slog.Debug("diagnostics: state changed",
				"source", msg.Source,
				"from", msg.OldState,
				"to", msg.NewState,
			)

		case engine.MessageAsyncDone:
			metrics.IncBusMessage(msg.Type.String(), "")
			slog.Debug("diagnostics: async done", "source", msg.Source)
		}
	}

	return recorded
}

// Snapshot reports, for each well-known element and plugin name, whether
// the registry currently has it. The first line is the runtime version.
func Snapshot(registry engine.Registry, elements, plugins []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "runtime: %s", registry.Version())

	for _, name := range elements {
		fmt.Fprintf(&b, "\nelement %s: %s", name, availability(registry.HasElementType(name)))
	}
	for _, name := range plugins {
		fmt.Fprintf(&b, "\nplugin %s: %s", name, availability(registry.HasPlugin(name)))
	}
	return b.String()
}

func availability(ok bool) string {
	if ok {
		return "available"
	}
	return "missing"
}
