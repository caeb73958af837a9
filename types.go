package nativeinference

import (
	"time"

	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/engine"
	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/framebridge"
	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/sink"
)

// Window is a native display surface owned by the host (X11 window id,
// HWND, ANativeWindow pointer). The controller never frees it: it calls
// Release when it stops using the window.
type Window interface {
	Handle() uintptr
	Release()
}

// HandleWindow adapts a bare native handle to Window. Release is a no-op.
type HandleWindow uintptr

// Handle returns the native handle.
func (w HandleWindow) Handle() uintptr { return uintptr(w) }

// Release does nothing: the host keeps ownership of the handle.
func (w HandleWindow) Release() {}

// FrameListener is notified when a new frame can be copied out. It runs on
// a runtime streaming thread and must not block or call back into the
// controller's commands; CopyOutFrame is safe to call from it.
type FrameListener func()

// State is the lifecycle state of the active pipeline.
type State = engine.State

// Pipeline states.
const (
	StateNull    = engine.StateNull
	StateReady   = engine.StateReady
	StatePaused  = engine.StatePaused
	StatePlaying = engine.StatePlaying
)

// SinkKind is the output path of the active pipeline.
type SinkKind = sink.Kind

// Sink kinds.
const (
	SinkNone    = sink.KindNone
	SinkOverlay = sink.KindOverlay
	SinkFrame   = sink.KindFrame
)

// FrameStats holds frame delivery statistics.
type FrameStats = framebridge.Stats

// Stats is a snapshot of the controller.
type Stats struct {
	Initialized bool
	HasPipeline bool
	PipelineID  string
	Description string
	State       State
	SinkKind    SinkKind
	WindowBound bool
	BuiltAt     time.Time
	LastError   string
	Frames      FrameStats
}
