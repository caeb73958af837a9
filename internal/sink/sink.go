// Package sink discovers the output sink of a pipeline and binds it to its
// output target.
package sink

import (
	"fmt"
	"log/slog"

	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/engine"
	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/failure"
)

// Kind identifies the output path of a pipeline.
type Kind int

const (
	KindNone Kind = iota
	KindOverlay
	KindFrame
)

// String returns a human-readable representation of the sink kind.
func (k Kind) String() string {
	switch k {
	case KindOverlay:
		return "overlay"
	case KindFrame:
		return "frame"
	default:
		return "none"
	}
}

// Classification is the result of a single walk over the pipeline graph.
type Classification struct {
	Kind    Kind
	Overlay engine.OverlaySink
	Frame   engine.FrameSink
}

// Element returns the discovered sink element, or nil for KindNone.
func (c Classification) Element() engine.Element {
	switch c.Kind {
	case KindOverlay:
		return c.Overlay
	case KindFrame:
		return c.Frame
	default:
		return nil
	}
}

// Window is the native surface an overlay sink renders into.
type Window interface {
	Handle() uintptr
}

// Classify walks the elements of p once, in insertion order.
//
// The first element able to render into a native window wins. Without one,
// the first pull-based frame sink is picked. Otherwise the result is
// KindNone.
func Classify(p engine.Pipeline) Classification {
	var frame engine.FrameSink

	for _, el := range p.Elements() {
		if overlay, ok := el.(engine.OverlaySink); ok {
			return Classification{Kind: KindOverlay, Overlay: overlay}
		}
		if fs, ok := el.(engine.FrameSink); ok && frame == nil {
			frame = fs
		}
	}

	if frame != nil {
		return Classification{Kind: KindFrame, Frame: frame}
	}
	return Classification{Kind: KindNone}
}

// Bind connects the classified sink to its output target.
//
//   - Overlay: window must be non-nil, its handle is handed to the sink.
//   - Frame: the sink is tuned for latest-frame delivery and handler is
//     registered as its new-sample callback. window is ignored.
//   - None: failure.ErrNoCompatibleSink.
func Bind(c Classification, window Window, handler engine.SampleHandler) error {
	switch c.Kind {
	case KindOverlay:
		if window == nil {
			return failure.ErrNoWindowBound
		}
		if err := c.Overlay.SetWindowHandle(window.Handle()); err != nil {
			return fmt.Errorf("bind overlay sink %s: %w", c.Overlay.Name(), err)
		}
		slog.Debug("sink: overlay bound", "element", c.Overlay.Name(), "handle", window.Handle())
		return nil

	case KindFrame:
		if err := c.Frame.ConfigureLatestOnly(); err != nil {
			// Defaults still deliver frames, only with more latency.
			slog.Warn("sink: failed to tune frame sink, keeping defaults",
				"element", c.Frame.Name(),
				"error", err,
			)
		}
		if handler != nil {
			c.Frame.SetSampleHandler(handler)
		}
		slog.Debug("sink: frame sink bound", "element", c.Frame.Name())
		return nil

	default:
		return failure.ErrNoCompatibleSink
	}
}
