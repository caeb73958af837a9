// Package builder turns a textual pipeline description into an element graph.
package builder

import (
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/engine"
	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/failure"
)

// Builder parses descriptions against a runtime.
type Builder struct {
	rt engine.Runtime
}

// New returns a builder bound to rt.
func New(rt engine.Runtime) *Builder {
	return &Builder{rt: rt}
}

// Build parses description into a pipeline in the NULL state.
//
// Before the full parse, the first element token is checked against the
// runtime registry. A missing type fails immediately with
// MissingElementTypeError instead of surfacing later as a multi-second
// preroll timeout.
//
// Returns:
//   - failure.ErrEmptyDescription for empty or whitespace-only input
//   - *failure.MissingElementTypeError when any element type is unknown,
//     found either by the first-token check or by the parser
//   - *failure.ParseError carrying the parser's message otherwise
func (b *Builder) Build(description string) (engine.Pipeline, error) {
	desc := strings.TrimSpace(description)
	if desc == "" {
		return nil, failure.ErrEmptyDescription
	}

	if name := FirstElementToken(desc); name != "" && !b.rt.HasElementType(name) {
		slog.Warn("builder: first element type not registered, failing fast", "element", name)
		return nil, &failure.MissingElementTypeError{Name: name}
	}

	start := time.Now()
	p, err := b.rt.ParseLaunch(desc)
	if err != nil {
		if p != nil {
			// Partial graph from a recoverable parse error.
			p.SetState(engine.StateNull)
			p.Release()
		}
		var noElement *engine.NoSuchElementError
		if errors.As(err, &noElement) {
			slog.Warn("builder: element type not registered", "element", noElement.Name)
			return nil, &failure.MissingElementTypeError{Name: noElement.Name}
		}
		return nil, &failure.ParseError{Message: err.Error()}
	}
	if p == nil {
		return nil, &failure.ParseError{Message: "parser returned no pipeline"}
	}

	slog.Debug("builder: pipeline parsed",
		"pipeline", p.Name(),
		"elements", len(p.Elements()),
		"elapsed", time.Since(start),
	)
	return p, nil
}

// FirstElementToken returns the element type name that starts description,
// or "" when the first token is not a plain type name (pad reference,
// caps string, property assignment or bin).
func FirstElementToken(description string) string {
	desc := strings.TrimSpace(description)
	end := strings.IndexFunc(desc, func(r rune) bool {
		return r == '!' || unicode.IsSpace(r)
	})
	if end >= 0 {
		desc = desc[:end]
	}

	if desc == "" || strings.ContainsAny(desc, ".=/(),:\"'") {
		return ""
	}
	return desc
}
