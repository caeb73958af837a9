// Package framebridge moves decoded frames from the runtime's streaming
// thread to a host consumer.
//
// The push side (runtime thread) deposits samples into a single-slot
// mailbox that always keeps the latest one; an unconsumed sample is
// released when a newer one arrives. The pull side (host render thread)
// copies the pending sample into a stable RGBA buffer under the bridge's
// own lock and hands back a snapshot. Neither side ever waits on the other.
package framebridge

import (
	"fmt"
	"image/color"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/engine"
	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/metrics"
)

// BytesPerPixel is the fixed RGBA layout of the host buffer.
const BytesPerPixel = 4

// arrivalWindow bounds the number of arrival times kept for FPS statistics.
const arrivalWindow = 120

// Listener is notified, on the runtime thread, whenever a new frame (or a
// new placeholder fill) is ready to be copied out. It must not block.
type Listener func()

// Config sizes the host buffer and sets its placeholder colour.
type Config struct {
	Width       int
	Height      int
	Placeholder color.RGBA
}

// Bridge is the frame delivery bridge. Safe for concurrent use.
type Bridge struct {
	mailbox chan engine.Sample

	mu     sync.Mutex // guards buf, width, height
	buf    []byte
	width  int
	height int

	listenerMu sync.RWMutex
	listener   Listener

	delivered atomic.Uint64
	replaced  atomic.Uint64
	copied    atomic.Uint64

	statsMu     sync.Mutex
	arrivals    []time.Time
	lastTraceID string

	replaceLog rate.Sometimes
}

// New creates a bridge whose buffer holds the placeholder colour.
func New(cfg Config) (*Bridge, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %dx%d", cfg.Width, cfg.Height)
	}

	b := &Bridge{
		mailbox:    make(chan engine.Sample, 1),
		buf:        make([]byte, cfg.Width*cfg.Height*BytesPerPixel),
		width:      cfg.Width,
		height:     cfg.Height,
		arrivals:   make([]time.Time, 0, arrivalWindow),
		replaceLog: rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
	paint(b.buf, cfg.Placeholder)
	return b, nil
}

// SetListener registers the frame-available notification. nil clears it.
func (b *Bridge) SetListener(fn Listener) {
	b.listenerMu.Lock()
	defer b.listenerMu.Unlock()
	b.listener = fn
}

// OnNewSample is the frame sink's new-sample handler.
//
// This function:
//  1. Pulls the sample that triggered the callback
//  2. Evicts and releases any sample the consumer has not copied yet
//  3. Deposits the new sample in the mailbox
//  4. Notifies the listener
//
// Never blocks: the mailbox has capacity 1 and is emptied before each send.
func (b *Bridge) OnNewSample(sink engine.FrameSink) {
	sample := sink.PullSample()
	if sample == nil {
		return
	}
	b.Deliver(sample)
}

// Deliver deposits a sample as the latest frame. Ownership of sample moves
// to the bridge.
func (b *Bridge) Deliver(sample engine.Sample) {
	for {
		select {
		case b.mailbox <- sample:
			b.recordArrival()
			b.notify()
			return
		default:
		}

		select {
		case old := <-b.mailbox:
			old.Release()
			n := b.replaced.Add(1)
			metrics.FramesReplaced.Inc()
			b.replaceLog.Do(func() {
				slog.Debug("framebridge: frame replaced before consumption", "replaced_total", n)
			})
		default:
			// Consumer took it between the two selects; retry the send.
		}
	}
}

// CopyOut copies the latest frame, if a new one arrived, into the stable
// buffer and returns a snapshot of that buffer with its dimensions.
//
// Before the first frame the snapshot holds the placeholder fill. The
// pending sample is mapped read-only, copied, unmapped and released while
// the bridge lock is held, so the caller never observes a half-written or
// released frame.
func (b *Bridge) CopyOut() ([]byte, int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case sample := <-b.mailbox:
		b.copySample(sample)
	default:
	}

	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out, b.width, b.height
}

func (b *Bridge) copySample(sample engine.Sample) {
	defer sample.Release()

	data, err := sample.Map()
	if err != nil {
		slog.Warn("framebridge: failed to map sample", "error", err)
		return
	}
	defer sample.Unmap()

	if w, h := sample.Width(), sample.Height(); w > 0 && h > 0 && (w != b.width || h != b.height) {
		slog.Info("framebridge: frame size changed, reallocating buffer",
			"from", fmt.Sprintf("%dx%d", b.width, b.height),
			"to", fmt.Sprintf("%dx%d", w, h),
		)
		b.width, b.height = w, h
		b.buf = make([]byte, w*h*BytesPerPixel)
	}

	n := copy(b.buf, data)
	if n < len(b.buf) {
		slog.Debug("framebridge: short frame", "bytes", n, "expected", len(b.buf))
	}
	b.copied.Add(1)
	metrics.FrameCopies.Inc()
}

// Fill repaints the buffer with a solid colour and notifies the listener.
func (b *Bridge) Fill(c color.RGBA) {
	b.mu.Lock()
	paint(b.buf, c)
	b.mu.Unlock()

	b.notify()
}

// Reset releases any sample still waiting in the mailbox.
func (b *Bridge) Reset() {
	for {
		select {
		case old := <-b.mailbox:
			old.Release()
		default:
			return
		}
	}
}

func (b *Bridge) notify() {
	b.listenerMu.RLock()
	fn := b.listener
	b.listenerMu.RUnlock()

	if fn != nil {
		fn()
	}
}

func (b *Bridge) recordArrival() {
	b.delivered.Add(1)
	metrics.FramesDelivered.Inc()

	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	if len(b.arrivals) == arrivalWindow {
		copy(b.arrivals, b.arrivals[1:])
		b.arrivals = b.arrivals[:arrivalWindow-1]
	}
	b.arrivals = append(b.arrivals, time.Now())
	b.lastTraceID = uuid.New().String()
}

func paint(buf []byte, c color.RGBA) {
	for i := 0; i+BytesPerPixel <= len(buf); i += BytesPerPixel {
		buf[i], buf[i+1], buf[i+2], buf[i+3] = c.R, c.G, c.B, c.A
	}
}
