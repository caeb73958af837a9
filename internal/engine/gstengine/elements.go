//go:build cgo

package gstengine

import (
	"fmt"
	"log/slog"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/engine"
)

// wrapElement picks the wrapper matching the interfaces the GObject implements
func wrapElement(e *gst.Element) engine.Element {
	base := &element{e: e}

	switch {
	case isOverlay(e.Unsafe()):
		return &overlaySink{element: base}
	case isAppSink(e.Unsafe()):
		return &frameSink{element: base, sink: app.SinkFromElement(e)}
	default:
		return base
	}
}

type element struct {
	e *gst.Element
}

func (el *element) Name() string {
	return el.e.GetName()
}

func (el *element) TypeName() string {
	factory := el.e.GetFactory()
	if factory == nil {
		return ""
	}
	return factory.GetName()
}

func (el *element) SetProperty(name string, value any) error {
	if err := el.e.SetProperty(name, value); err != nil {
		return fmt.Errorf("set %s on %s: %w", name, el.e.GetName(), err)
	}
	return nil
}

type overlaySink struct {
	*element
}

func (s *overlaySink) SetWindowHandle(handle uintptr) error {
	if handle == 0 {
		return fmt.Errorf("window handle is zero")
	}
	setWindowHandle(s.e.Unsafe(), handle)
	slog.Debug("gstengine: window handle bound", "element", s.e.GetName(), "handle", handle)
	return nil
}

type frameSink struct {
	*element
	sink *app.Sink
}

// ConfigureLatestOnly applies the low-latency appsink settings: no clock
// sync, a single queued buffer, old buffers dropped.
func (s *frameSink) ConfigureLatestOnly() error {
	for _, prop := range []struct {
		name  string
		value any
	}{
		{"sync", false},
		{"max-buffers", uint(1)},
		{"drop", true},
	} {
		if err := s.SetProperty(prop.name, prop.value); err != nil {
			return err
		}
	}
	return nil
}

func (s *frameSink) SetSampleHandler(fn engine.SampleHandler) {
	s.sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(_ *app.Sink) gst.FlowReturn {
			fn(s)
			return gst.FlowOK
		},
	})
}

func (s *frameSink) PullSample() engine.Sample {
	sample := s.sink.PullSample()
	if sample == nil {
		return nil
	}
	out := &frameSample{sample: sample}
	out.width, out.height = capsDimensions(sample)
	return out
}

type frameSample struct {
	sample *gst.Sample
	buffer *gst.Buffer
	width  int
	height int
}

func (f *frameSample) Width() int  { return f.width }
func (f *frameSample) Height() int { return f.height }

func (f *frameSample) Map() ([]byte, error) {
	if f.sample == nil {
		return nil, fmt.Errorf("sample released")
	}
	buffer := f.sample.GetBuffer()
	if buffer == nil {
		return nil, fmt.Errorf("sample has no buffer")
	}
	mapInfo := buffer.Map(gst.MapRead)
	if mapInfo == nil {
		return nil, fmt.Errorf("failed to map buffer")
	}
	f.buffer = buffer
	return mapInfo.Bytes(), nil
}

func (f *frameSample) Unmap() {
	if f.buffer != nil {
		f.buffer.Unmap()
		f.buffer = nil
	}
}

// Release drops the Go references; go-gst's finalizer owns the unref.
func (f *frameSample) Release() {
	f.Unmap()
	f.sample = nil
}

func capsDimensions(sample *gst.Sample) (int, int) {
	caps := sample.GetCaps()
	if caps == nil || caps.GetSize() == 0 {
		return 0, 0
	}
	structure := caps.GetStructureAt(0)
	if structure == nil {
		return 0, 0
	}
	return intField(structure, "width"), intField(structure, "height")
}

func intField(structure *gst.Structure, name string) int {
	v, err := structure.GetValue(name)
	if err != nil {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case uint:
		return int(n)
	default:
		return 0
	}
}
