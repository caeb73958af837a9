// Package engine describes the media runtime the pipeline controller drives.
//
// The controller never talks to GStreamer directly. It talks to a Runtime:
// a registry of element types that can parse a launch description into a
// Pipeline, expose the pipeline's elements, its state machine and its
// message bus. The go-gst backed implementation lives in gstengine; an
// in-memory implementation for tests lives in enginetest.
//
// Sink capabilities are expressed as interfaces (OverlaySink, FrameSink)
// and discovered with type assertions, so the set of available element
// types is whatever the runtime's registry reports at run time.
package engine

import (
	"fmt"
	"time"
)

// HostContext is the opaque value handed over by the host glue on Init
// (application context, thread-attachment handle, ...). Runtimes that need
// it latch it before their first use of a platform sink.
type HostContext any

// Registry answers capability lookups keyed by name.
type Registry interface {
	// HasElementType reports whether an element factory with this name is
	// registered (e.g. "videotestsrc", "appsink").
	HasElementType(name string) bool
	// HasPlugin reports whether a plugin with this name is loaded
	// (e.g. "coreelements", "androidmedia").
	HasPlugin(name string) bool
	// Version returns a human-readable runtime version string.
	Version() string
}

// Runtime is a media runtime that can build pipelines from text.
type Runtime interface {
	Registry

	// Init initializes the runtime. Must be idempotent.
	Init(host HostContext) error

	// StartEventLoop starts the background event loop some sink and source
	// implementations need for their own callbacks. Fire-and-forget: the
	// loop lives for the rest of the process.
	StartEventLoop()

	// ParseLaunch parses a textual pipeline description into a pipeline in
	// the NULL state.
	ParseLaunch(description string) (Pipeline, error)
}

// NoSuchElementError is returned by ParseLaunch when the description names
// an element type the registry cannot instantiate, wherever it appears in
// the chain.
type NoSuchElementError struct {
	Name string
}

func (e *NoSuchElementError) Error() string {
	return fmt.Sprintf("no element %q", e.Name)
}

// Pipeline is a constructed element graph.
type Pipeline interface {
	// Name returns the runtime's name for the pipeline object.
	Name() string

	// Elements returns every element of the graph in insertion order.
	Elements() []Element

	// SetState requests a transition and returns immediately.
	SetState(target State) StateChangeReturn

	// QueryState returns the current and pending state without blocking.
	// The return value is StateChangeAsync while a transition is in flight
	// and StateChangeFailure once an asynchronous transition has failed.
	QueryState() (ret StateChangeReturn, current, pending State)

	// Bus returns the pipeline's message bus.
	Bus() Bus

	// Release drops the controller's reference to the pipeline. The
	// pipeline must already be in the NULL state.
	Release()
}

// Element is a node of the pipeline graph.
type Element interface {
	// Name returns the instance name (e.g. "videotestsrc0").
	Name() string
	// TypeName returns the factory name (e.g. "videotestsrc").
	TypeName() string
	// SetProperty sets a property on the element.
	SetProperty(name string, value any) error
}

// OverlaySink is an element able to render into a native window handle.
type OverlaySink interface {
	Element
	SetWindowHandle(handle uintptr) error
}

// SampleHandler is invoked on a runtime-owned thread every time a frame
// sink has a new sample ready to be pulled.
type SampleHandler func(sink FrameSink)

// FrameSink is an element that exposes decoded frames by pull.
type FrameSink interface {
	Element
	// ConfigureLatestOnly tunes the sink to keep a single, most recent
	// buffer and to skip clock synchronization.
	ConfigureLatestOnly() error
	// SetSampleHandler registers the new-sample callback.
	SetSampleHandler(fn SampleHandler)
	// PullSample pulls the sample that triggered the callback. Returns nil
	// if nothing is available.
	PullSample() Sample
}

// Sample is a decoded frame owned by the runtime.
type Sample interface {
	// Width and Height of the frame in pixels, 0 if the caps don't say.
	Width() int
	Height() int
	// Map maps the backing memory read-only. Every successful Map must be
	// paired with Unmap.
	Map() ([]byte, error)
	Unmap()
	// Release drops the reference held on the sample.
	Release()
}

// MessageType classifies bus messages.
type MessageType int

const (
	MessageUnknown MessageType = iota
	MessageError
	MessageWarning
	MessageInfo
	MessageStateChanged
	MessageAsyncDone
	MessageEOS
)

// String returns the lower-case name of the message type.
func (t MessageType) String() string {
	switch t {
	case MessageError:
		return "error"
	case MessageWarning:
		return "warning"
	case MessageInfo:
		return "info"
	case MessageStateChanged:
		return "state-changed"
	case MessageAsyncDone:
		return "async-done"
	case MessageEOS:
		return "eos"
	default:
		return "unknown"
	}
}

// Message is a bus message copied out of the runtime.
type Message struct {
	Type   MessageType
	Source string
	// Text is the error/warning/info message. Empty for other types.
	Text string
	// Debug is the auxiliary debug string, may be empty.
	Debug string
	// OldState and NewState are set for MessageStateChanged.
	OldState State
	NewState State
}

// Bus is the pipeline's message channel.
type Bus interface {
	// TimedPop waits at most timeout for the next message. Returns nil when
	// nothing arrived in time.
	TimedPop(timeout time.Duration) *Message
}
