// Package enginetest provides an in-memory engine.Runtime for tests.
//
// It understands a subset of the gst-launch grammar ("type key=value ! type"),
// keeps a scriptable registry of element types and simulates the GStreamer
// state machine, including asynchronous transitions that complete after a
// number of state queries, live sources (NO_PREROLL) and failing elements
// that post an ERROR message on the bus.
package enginetest

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/engine"
)

// Kind selects the capabilities of a fake element type.
type Kind int

const (
	KindPlain Kind = iota
	KindOverlaySink
	KindFrameSink
)

// Behavior scripts how elements of a type react to state changes.
type Behavior struct {
	// FailAt makes any transition to FailAt or above fail immediately.
	// Zero means never.
	FailAt engine.State
	// AsyncPolls is the number of QueryState calls an upward transition to
	// PAUSED or PLAYING stays pending for.
	AsyncPolls int
	// NeverComplete keeps upward transitions pending forever.
	NeverComplete bool
	// Live makes PAUSED answer NO_PREROLL, like a live capture source.
	Live bool
	// ErrorText and ErrorDebug are posted on the bus when failing.
	ErrorText  string
	ErrorDebug string
}

// ElementType is a registry entry.
type ElementType struct {
	Name     string
	Kind     Kind
	Behavior Behavior
}

// Runtime is a fake engine.Runtime. Safe for concurrent use.
type Runtime struct {
	mu         sync.Mutex
	types      map[string]ElementType
	plugins    map[string]bool
	version    string
	host       engine.HostContext
	initCalls  int
	loopStarts int
	instances  map[string]int
	pipelines  []*Pipeline
}

var _ engine.Runtime = (*Runtime)(nil)

// NewRuntime returns a runtime with a desktop-like default registry.
func NewRuntime() *Runtime {
	r := &Runtime{
		types:     make(map[string]ElementType),
		plugins:   make(map[string]bool),
		version:   "GStreamer 1.24.0 (enginetest)",
		instances: make(map[string]int),
	}

	for _, name := range []string{"videotestsrc", "videoconvert", "videoscale", "queue", "capsfilter", "decodebin", "fakesink", "tee"} {
		r.Register(ElementType{Name: name, Kind: KindPlain})
	}
	for _, name := range []string{"autovideosink", "glimagesink", "xvimagesink", "ximagesink"} {
		r.Register(ElementType{Name: name, Kind: KindOverlaySink})
	}
	r.Register(ElementType{Name: "appsink", Kind: KindFrameSink})
	r.Register(ElementType{Name: "v4l2src", Kind: KindPlain, Behavior: Behavior{Live: true}})

	for _, name := range []string{"coreelements", "videotestsrc", "videoconvertscale", "app", "playback", "opengl", "autodetect"} {
		r.plugins[name] = true
	}

	return r
}

// Register adds or replaces an element type.
func (r *Runtime) Register(t ElementType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[t.Name] = t
}

// Unregister removes an element type, simulating a build without it.
func (r *Runtime) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.types, name)
}

// AddPlugin marks a plugin as loaded.
func (r *Runtime) AddPlugin(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[name] = true
}

// HasElementType implements engine.Registry.
func (r *Runtime) HasElementType(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.types[name]
	return ok
}

// HasPlugin implements engine.Registry.
func (r *Runtime) HasPlugin(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.plugins[name]
}

// Version implements engine.Registry.
func (r *Runtime) Version() string {
	return r.version
}

// Init implements engine.Runtime.
func (r *Runtime) Init(host engine.HostContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initCalls++
	if host != nil {
		r.host = host
	}
	return nil
}

// StartEventLoop implements engine.Runtime. The fake needs no loop; it only
// counts the calls.
func (r *Runtime) StartEventLoop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loopStarts++
}

// InitCalls returns how many times Init ran.
func (r *Runtime) InitCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initCalls
}

// EventLoopStarts returns how many times StartEventLoop ran.
func (r *Runtime) EventLoopStarts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loopStarts
}

// Host returns the latched host context.
func (r *Runtime) Host() engine.HostContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.host
}

// Pipelines returns every pipeline parsed so far, oldest first.
func (r *Runtime) Pipelines() []*Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Pipeline, len(r.pipelines))
	copy(out, r.pipelines)
	return out
}

// LastPipeline returns the most recently parsed pipeline, or nil.
func (r *Runtime) LastPipeline() *Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pipelines) == 0 {
		return nil
	}
	return r.pipelines[len(r.pipelines)-1]
}

// ParseLaunch implements engine.Runtime for the "type k=v ! type" subset.
func (r *Runtime) ParseLaunch(description string) (engine.Pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(description) == "" {
		return nil, errors.New("empty pipeline not allowed")
	}

	p := &Pipeline{
		name:    fmt.Sprintf("pipeline%d", len(r.pipelines)),
		current: engine.StateNull,
		bus:     &Bus{},
	}

	for _, segment := range strings.Split(description, "!") {
		fields := strings.Fields(segment)
		if len(fields) == 0 {
			return nil, errors.New("syntax error")
		}

		typ, ok := r.types[fields[0]]
		if !ok {
			return nil, &engine.NoSuchElementError{Name: fields[0]}
		}

		base := &Element{
			name:     fmt.Sprintf("%s%d", typ.Name, r.instances[typ.Name]),
			typeName: typ.Name,
			behavior: typ.Behavior,
			props:    make(map[string]any),
		}
		r.instances[typ.Name]++

		for _, kv := range fields[1:] {
			key, value, found := strings.Cut(kv, "=")
			if !found || key == "" {
				return nil, fmt.Errorf("syntax error near %q", kv)
			}
			if key == "name" {
				base.name = value
				continue
			}
			base.props[key] = value
		}

		switch typ.Kind {
		case KindOverlaySink:
			p.elements = append(p.elements, &OverlaySink{Element: base})
		case KindFrameSink:
			p.elements = append(p.elements, &FrameSink{Element: base})
		default:
			p.elements = append(p.elements, base)
		}
	}

	r.pipelines = append(r.pipelines, p)
	return p, nil
}
