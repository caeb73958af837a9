package enginetest

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/engine"
)

// Element is a plain fake element.
type Element struct {
	mu       sync.Mutex
	name     string
	typeName string
	behavior Behavior
	props    map[string]any
}

var _ engine.Element = (*Element)(nil)

// Name implements engine.Element.
func (e *Element) Name() string { return e.name }

// TypeName implements engine.Element.
func (e *Element) TypeName() string { return e.typeName }

// SetProperty implements engine.Element.
func (e *Element) SetProperty(name string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.props[name] = value
	return nil
}

// Property returns a property previously set or parsed from the description.
func (e *Element) Property(name string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.props[name]
	return v, ok
}

// OverlaySink is a fake window-capable sink.
type OverlaySink struct {
	*Element
	handle atomic.Uintptr
}

var _ engine.OverlaySink = (*OverlaySink)(nil)

// SetWindowHandle implements engine.OverlaySink.
func (s *OverlaySink) SetWindowHandle(handle uintptr) error {
	s.handle.Store(handle)
	return nil
}

// WindowHandle returns the bound handle.
func (s *OverlaySink) WindowHandle() uintptr {
	return s.handle.Load()
}

// FrameSink is a fake pull-based sink. Push plays the role of the runtime
// streaming thread.
type FrameSink struct {
	*Element

	sinkMu     sync.Mutex
	handler    engine.SampleHandler
	queue      []*Sample
	latestOnly bool
}

var _ engine.FrameSink = (*FrameSink)(nil)

// ConfigureLatestOnly implements engine.FrameSink.
func (s *FrameSink) ConfigureLatestOnly() error {
	s.sinkMu.Lock()
	s.latestOnly = true
	s.sinkMu.Unlock()

	_ = s.SetProperty("sync", false)
	_ = s.SetProperty("max-buffers", 1)
	return s.SetProperty("drop", true)
}

// LatestOnly reports whether ConfigureLatestOnly ran.
func (s *FrameSink) LatestOnly() bool {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	return s.latestOnly
}

// SetSampleHandler implements engine.FrameSink.
func (s *FrameSink) SetSampleHandler(fn engine.SampleHandler) {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	s.handler = fn
}

// HasHandler reports whether a sample handler is registered.
func (s *FrameSink) HasHandler() bool {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	return s.handler != nil
}

// PullSample implements engine.FrameSink.
func (s *FrameSink) PullSample() engine.Sample {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	sample := s.queue[0]
	s.queue = s.queue[1:]
	return sample
}

// Push queues a sample and invokes the handler on the calling goroutine.
func (s *FrameSink) Push(sample *Sample) {
	s.sinkMu.Lock()
	s.queue = append(s.queue, sample)
	handler := s.handler
	s.sinkMu.Unlock()

	if handler != nil {
		handler(s)
	}
}

// ErrReleased is returned by Map on a released sample.
var ErrReleased = errors.New("enginetest: sample already released")

// Sample is a fake engine.Sample that tracks its mapping and release.
type Sample struct {
	data     []byte
	width    int
	height   int
	mapped   atomic.Int32
	released atomic.Bool
}

var _ engine.Sample = (*Sample)(nil)

// NewSample wraps raw bytes.
func NewSample(width, height int, data []byte) *Sample {
	return &Sample{data: data, width: width, height: height}
}

// NewSolidSample returns an RGBA sample filled with one colour.
func NewSolidSample(width, height int, r, g, b, a byte) *Sample {
	data := make([]byte, width*height*4)
	for i := 0; i < len(data); i += 4 {
		data[i], data[i+1], data[i+2], data[i+3] = r, g, b, a
	}
	return NewSample(width, height, data)
}

// Width implements engine.Sample.
func (s *Sample) Width() int { return s.width }

// Height implements engine.Sample.
func (s *Sample) Height() int { return s.height }

// Map implements engine.Sample.
func (s *Sample) Map() ([]byte, error) {
	if s.released.Load() {
		return nil, ErrReleased
	}
	s.mapped.Add(1)
	return s.data, nil
}

// Unmap implements engine.Sample.
func (s *Sample) Unmap() { s.mapped.Add(-1) }

// Release implements engine.Sample.
func (s *Sample) Release() { s.released.Store(true) }

// Released reports whether Release was called.
func (s *Sample) Released() bool { return s.released.Load() }

// Mapped reports whether the sample is currently mapped.
func (s *Sample) Mapped() bool { return s.mapped.Load() > 0 }
