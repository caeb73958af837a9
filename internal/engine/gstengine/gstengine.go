//go:build cgo

// Package gstengine implements engine.Runtime on top of GStreamer via go-gst.
//
// Pipelines are built with gst_parse_launch, elements are classified by the
// GObject interfaces they implement (GstVideoOverlay, GstAppSink) rather
// than by factory name, and frames are pulled from appsink callbacks.
package gstengine

import (
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/tinyzimmer/go-glib/glib"
	"github.com/tinyzimmer/go-gst/gst"

	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/engine"
)

// Runtime implements engine.Runtime using the process-wide GStreamer instance
type Runtime struct {
	initOnce sync.Once
	loopOnce sync.Once

	mu   sync.Mutex
	host engine.HostContext
	loop *glib.MainLoop
}

var _ engine.Runtime = (*Runtime)(nil)

// New returns a runtime. GStreamer itself is initialized by Init.
func New() *Runtime {
	return &Runtime{}
}

// Init initializes GStreamer once per process and latches the host context.
func (r *Runtime) Init(host engine.HostContext) error {
	r.mu.Lock()
	if host != nil {
		r.host = host
	}
	r.mu.Unlock()

	r.initOnce.Do(func() {
		gst.Init(nil)
		slog.Info("gstengine: GStreamer initialized", "version", versionString())
	})
	return nil
}

// Host returns the latched host context.
func (r *Runtime) Host() engine.HostContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.host
}

// StartEventLoop runs a GLib main loop on the default context in a
// dedicated goroutine. Started at most once and never stopped.
func (r *Runtime) StartEventLoop() {
	r.loopOnce.Do(func() {
		r.mu.Lock()
		r.loop = glib.NewMainLoop(glib.MainContextDefault(), false)
		loop := r.loop
		r.mu.Unlock()

		go loop.Run()
		slog.Debug("gstengine: background main loop started")
	})
}

// HasElementType looks the factory up in the GStreamer registry.
func (r *Runtime) HasElementType(name string) bool {
	return gst.Find(name) != nil
}

// HasPlugin looks the plugin up in the GStreamer registry.
func (r *Runtime) HasPlugin(name string) bool {
	return hasPlugin(name)
}

// Version returns gst_version_string().
func (r *Runtime) Version() string {
	return versionString()
}

// noSuchElement matches the message of GST_PARSE_ERROR_NO_SUCH_ELEMENT.
// go-gst surfaces only the GError message, not its code.
var noSuchElement = regexp.MustCompile(`no element "([^"]+)"`)

// ParseLaunch wraps gst_parse_launch.
func (r *Runtime) ParseLaunch(description string) (engine.Pipeline, error) {
	p, err := gst.NewPipelineFromString(description)
	if err != nil {
		if m := noSuchElement.FindStringSubmatch(err.Error()); m != nil {
			return nil, &engine.NoSuchElementError{Name: m[1]}
		}
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("gst_parse_launch returned no pipeline")
	}
	return &pipeline{p: p}, nil
}

type pipeline struct {
	p *gst.Pipeline
}

func (p *pipeline) Name() string {
	return p.p.GetName()
}

// Elements returns the top-level children. gst_bin_iterate_elements walks
// children newest first, so the slice is reversed into insertion order.
func (p *pipeline) Elements() []engine.Element {
	children, err := p.p.GetElements()
	if err != nil {
		slog.Warn("gstengine: failed to iterate pipeline elements", "error", err)
		return nil
	}
	slices.Reverse(children)

	out := make([]engine.Element, 0, len(children))
	for _, child := range children {
		out = append(out, wrapElement(child))
	}
	return out
}

func (p *pipeline) SetState(target engine.State) engine.StateChangeReturn {
	return setState(p.p.Unsafe(), target)
}

func (p *pipeline) QueryState() (engine.StateChangeReturn, engine.State, engine.State) {
	return queryState(p.p.Unsafe())
}

func (p *pipeline) Bus() engine.Bus {
	return &bus{b: p.p.GetPipelineBus()}
}

// Release drops the Go reference; go-gst's finalizer owns the unref.
func (p *pipeline) Release() {
	p.p = nil
}

type bus struct {
	b *gst.Bus
}

// drainMask selects the messages diagnostics cares about; EOS and the rest
// stay queued on the bus.
const drainMask = gst.MessageError | gst.MessageWarning | gst.MessageInfo |
	gst.MessageAsyncDone | gst.MessageStateChanged

func (b *bus) TimedPop(timeout time.Duration) *engine.Message {
	msg := b.b.TimedPopFiltered(timeout, drainMask)
	if msg == nil {
		return nil
	}
	return convertMessage(msg)
}

func convertMessage(msg *gst.Message) *engine.Message {
	out := &engine.Message{Source: msg.Source()}

	switch msg.Type() {
	case gst.MessageError:
		out.Type = engine.MessageError
		if gerr := msg.ParseError(); gerr != nil {
			out.Text = gerr.Error()
			out.Debug = gerr.DebugString()
		}
	case gst.MessageWarning:
		out.Type = engine.MessageWarning
		if gerr := msg.ParseWarning(); gerr != nil {
			out.Text = gerr.Error()
			out.Debug = gerr.DebugString()
		}
	case gst.MessageInfo:
		out.Type = engine.MessageInfo
		if gerr := msg.ParseInfo(); gerr != nil {
			out.Text = gerr.Error()
			out.Debug = gerr.DebugString()
		}
	case gst.MessageStateChanged:
		out.Type = engine.MessageStateChanged
		oldState, newState := msg.ParseStateChanged()
		out.OldState = engine.State(oldState)
		out.NewState = engine.State(newState)
	case gst.MessageAsyncDone:
		out.Type = engine.MessageAsyncDone
	case gst.MessageEOS:
		out.Type = engine.MessageEOS
	default:
		out.Type = engine.MessageUnknown
	}

	return out
}
