//go:build cgo

package gstengine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinyzimmer/go-gst/gst"

	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/engine"
)

// TestRuntime_TestSourceToAppSink exercises the real runtime when the
// GStreamer base plugins are installed.
func TestRuntime_TestSourceToAppSink(t *testing.T) {
	rt := New()
	require.NoError(t, rt.Init(nil))

	if !rt.HasElementType("videotestsrc") || !rt.HasElementType("appsink") {
		t.Skip("Skipping test: GStreamer base plugins not available")
	}
	assert.False(t, rt.HasElementType("nosuchsrc"))
	assert.NotEmpty(t, rt.Version())

	p, err := rt.ParseLaunch("videotestsrc num-buffers=5 ! videoconvert ! appsink")
	require.NoError(t, err)

	elements := p.Elements()
	require.Len(t, elements, 3)
	assert.Equal(t, "videotestsrc", elements[0].TypeName(), "elements must come back in insertion order")

	_, isFrameSink := elements[2].(engine.FrameSink)
	assert.True(t, isFrameSink, "appsink must be classified as a frame sink")

	p.SetState(engine.StatePaused)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ret, current, _ := p.QueryState()
		if ret != engine.StateChangeAsync && current == engine.StatePaused {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	assert.Equal(t, engine.StateChangeSuccess, p.SetState(engine.StateNull))
	p.Release()
}

func TestRuntime_ParseErrorIsReported(t *testing.T) {
	rt := New()
	require.NoError(t, rt.Init(nil))

	_, err := rt.ParseLaunch("videotestsrc ! ! fakesink")
	assert.Error(t, err)
}

func TestRuntime_UnknownElementMidChain(t *testing.T) {
	rt := New()
	require.NoError(t, rt.Init(nil))

	if !rt.HasElementType("videotestsrc") || !rt.HasElementType("appsink") {
		t.Skip("Skipping test: GStreamer base plugins not available")
	}

	_, err := rt.ParseLaunch("videotestsrc ! nosuchfilter ! appsink")
	require.Error(t, err)

	var noElement *engine.NoSuchElementError
	require.True(t, errors.As(err, &noElement), "got %v", err)
	assert.Equal(t, "nosuchfilter", noElement.Name)
}

func TestDrainMask_LeavesEOSQueued(t *testing.T) {
	for _, mt := range []gst.MessageType{
		gst.MessageError, gst.MessageWarning, gst.MessageInfo,
		gst.MessageAsyncDone, gst.MessageStateChanged,
	} {
		assert.NotZero(t, drainMask&mt, "message type %v must be drained", mt)
	}
	assert.Zero(t, drainMask&gst.MessageEOS)
}
