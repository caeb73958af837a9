package nativeinference

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/engine"
	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/engine/enginetest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testWindow counts its releases.
type testWindow struct {
	handle   uintptr
	released atomic.Int32
}

func (w *testWindow) Handle() uintptr { return w.handle }
func (w *testWindow) Release()        { w.released.Add(1) }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond
	cfg.DrainWindow = 100 * time.Millisecond
	cfg.FrameWidth = 2
	cfg.FrameHeight = 2
	return cfg
}

func newController(t *testing.T, rt *enginetest.Runtime, mutate ...func(*Config)) *Controller {
	t.Helper()
	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}
	c, err := New(rt, cfg)
	require.NoError(t, err)
	return c
}

func lastPipeline(t *testing.T, rt *enginetest.Runtime) *enginetest.Pipeline {
	t.Helper()
	p := rt.LastPipeline()
	require.NotNil(t, p)
	return p
}

func TestNew_FailFast(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.FrameWidth = 0
	_, err = New(enginetest.NewRuntime(), cfg)
	assert.Error(t, err)
}

// TestBuild_ValidDescriptionThenPlay covers every sink path: build leaves
// no error behind and play succeeds.
func TestBuild_ValidDescriptionThenPlay(t *testing.T) {
	tests := []struct {
		name     string
		desc     string
		window   bool
		wantSink SinkKind
	}{
		{"frame sink", "videotestsrc ! videoconvert ! appsink", false, SinkFrame},
		{"overlay sink with window", "videotestsrc ! autovideosink", true, SinkOverlay},
		{"live source", "v4l2src ! videoconvert ! appsink", false, SinkFrame},
		{"properties and names", "videotestsrc pattern=ball is-live=true ! queue ! appsink name=out", false, SinkFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := enginetest.NewRuntime()
			c := newController(t, rt)
			defer c.Dispose()

			if tt.window {
				require.NoError(t, c.BindWindow(&testWindow{handle: 0x1234}))
			}

			require.NoError(t, c.Build(tt.desc))
			assert.Empty(t, c.LastError())
			assert.Equal(t, StatePaused, c.State())
			assert.Equal(t, tt.wantSink, c.Stats().SinkKind)

			require.NoError(t, c.Play())
			assert.Equal(t, StatePlaying, c.State())
			t.Logf("✅ %s: build + play", tt.desc)
		})
	}
}

func TestBuild_AsyncPreroll(t *testing.T) {
	rt := enginetest.NewRuntime()
	rt.Register(enginetest.ElementType{Name: "slowsrc", Behavior: enginetest.Behavior{AsyncPolls: 5}})
	c := newController(t, rt)

	require.NoError(t, c.Build("slowsrc ! appsink"))
	assert.Greater(t, lastPipeline(t, rt).Queries(), 1)
	require.NoError(t, c.Play())
	require.NoError(t, c.Pause())
	assert.Equal(t, StatePaused, c.State())
}

// TestBuild_MissingElementFailsFast verifies that an unknown element type
// anywhere in the chain fails without a preroll wait and carries the
// taxonomy name plus the diagnose snapshot in the last error.
func TestBuild_MissingElementFailsFast(t *testing.T) {
	tests := []struct {
		name    string
		desc    string
		missing string
	}{
		{"source", "nosuchsrc ! autovideosink", "nosuchsrc"},
		{"mid chain", "videotestsrc ! nosuchfilter ! appsink", "nosuchfilter"},
		{"sink", "videotestsrc ! videoconvert ! nosuchsink", "nosuchsink"},
		{"after properties", "videotestsrc pattern=ball ! queue ! nosuchfilter ! appsink", "nosuchfilter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := enginetest.NewRuntime()
			c := newController(t, rt, func(cfg *Config) { cfg.PrerollTimeout = 5 * time.Second })
			require.NoError(t, c.BindWindow(&testWindow{handle: 1}))

			start := time.Now()
			err := c.Build(tt.desc)
			elapsed := time.Since(start)

			require.Error(t, err)
			var missing *MissingElementTypeError
			require.True(t, errors.As(err, &missing), "got %v", err)
			assert.Equal(t, tt.missing, missing.Name)
			assert.Less(t, elapsed, time.Second)

			lastErr := c.LastError()
			assert.Contains(t, lastErr, "MissingElementType: "+tt.missing)
			assert.NotContains(t, lastErr, "ParseError")
			assert.Contains(t, lastErr, "element videotestsrc: available", "diagnose snapshot must be appended")
			assert.Contains(t, lastErr, "plugin androidmedia: missing")
			assert.Empty(t, rt.Pipelines(), "no pipeline may reach preroll")
			assert.False(t, c.Stats().HasPipeline)
		})
	}
}

func TestBuild_OverlayWithoutWindow(t *testing.T) {
	for _, desc := range []string{
		"videotestsrc ! autovideosink",
		"videotestsrc ! videoconvert ! glimagesink",
		"videotestsrc ! tee ! xvimagesink",
	} {
		t.Run(desc, func(t *testing.T) {
			rt := enginetest.NewRuntime()
			c := newController(t, rt)

			err := c.Build(desc)
			assert.ErrorIs(t, err, ErrNoWindowBound)
			assert.Contains(t, c.LastError(), "NoWindowBound")

			p := lastPipeline(t, rt)
			assert.True(t, p.Released(), "partial pipeline must be released")
			assert.Equal(t, engine.StateNull, p.CurrentState())
			assert.False(t, c.Stats().HasPipeline)
		})
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name    string
		desc    string
		wantErr error
		wantMsg string
	}{
		{"empty", "", ErrEmptyDescription, "EmptyDescription"},
		{"whitespace", "   ", ErrEmptyDescription, "EmptyDescription"},
		{"no sink", "videotestsrc ! fakesink", ErrNoCompatibleSink, "NoCompatibleSink"},
		{"malformed", "videotestsrc ! ! appsink", nil, "ParseError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newController(t, enginetest.NewRuntime())

			err := c.Build(tt.desc)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Contains(t, c.LastError(), tt.wantMsg)
		})
	}
}

func TestBuild_PrerollTimeout(t *testing.T) {
	rt := enginetest.NewRuntime()
	rt.Register(enginetest.ElementType{Name: "stuckcam", Behavior: enginetest.Behavior{NeverComplete: true}})
	c := newController(t, rt, func(cfg *Config) { cfg.PrerollTimeout = 30 * time.Millisecond })

	start := time.Now()
	err := c.Build("stuckcam ! appsink")
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrAsyncTimeout)
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
	assert.Less(t, elapsed, 5*time.Second)

	lastErr := c.LastError()
	assert.Contains(t, lastErr, "AsyncTimeout")
	assert.Contains(t, lastErr, "runtime: GStreamer", "diagnose snapshot must be appended")

	p := lastPipeline(t, rt)
	assert.True(t, p.Released())
	assert.Equal(t, engine.StateNull, p.CurrentState())
	assert.Equal(t, StateNull, c.State())
}

func TestBuild_PrerollFailureDrainsBus(t *testing.T) {
	rt := enginetest.NewRuntime()
	rt.Register(enginetest.ElementType{
		Name: "brokencam",
		Behavior: enginetest.Behavior{
			FailAt:     engine.StatePaused,
			ErrorText:  "Could not open device '/dev/video9' for reading",
			ErrorDebug: "v4l2_calls.c(629)",
		},
	})
	c := newController(t, rt)

	err := c.Build("brokencam ! appsink")
	assert.ErrorIs(t, err, ErrTransitionFailure)

	lastErr := c.LastError()
	assert.Contains(t, lastErr, "Failure:")
	assert.Contains(t, lastErr, "ERROR from brokencam0: Could not open device '/dev/video9' for reading (v4l2_calls.c(629)) [resource]")
	assert.NotContains(t, lastErr, "runtime:", "snapshot is only appended for missing elements and timeouts")
	assert.True(t, lastPipeline(t, rt).Released())
}

func TestBuild_ReleasesPreviousAndResetsReport(t *testing.T) {
	rt := enginetest.NewRuntime()
	c := newController(t, rt)

	require.Error(t, c.Build("nosuchsrc ! appsink"))
	require.NotEmpty(t, c.LastError())

	require.NoError(t, c.Build("videotestsrc ! appsink"))
	assert.Empty(t, c.LastError(), "report must reset at the start of each build")
	first := lastPipeline(t, rt)
	firstID := c.Stats().PipelineID

	require.NoError(t, c.Build("videotestsrc ! appsink"))
	assert.True(t, first.Released(), "previous pipeline must be released")
	assert.Equal(t, engine.StateNull, first.CurrentState())
	assert.NotEqual(t, firstID, c.Stats().PipelineID)
}

func TestDispose_Idempotent(t *testing.T) {
	rt := enginetest.NewRuntime()
	c := newController(t, rt)
	w := &testWindow{handle: 7}

	require.NoError(t, c.BindWindow(w))
	require.NoError(t, c.Build("videotestsrc ! autovideosink"))
	p := lastPipeline(t, rt)

	c.Dispose()
	assert.True(t, c.Initialized())
	assert.True(t, p.Released())
	assert.Equal(t, int32(1), w.released.Load())

	c.Dispose()
	assert.True(t, c.Initialized())
	assert.Equal(t, int32(1), w.released.Load(), "window must be released once")
	assert.Equal(t, 1, rt.InitCalls(), "dispose must not re-initialize the runtime")
	t.Log("✅ Double Dispose() safe, runtime stays initialized")
}

// TestFrameDelivery_OnlyLatestIsExposed pushes N frames through the frame
// sink: only the last one is copied out and the others are released.
func TestFrameDelivery_OnlyLatestIsExposed(t *testing.T) {
	const n = 8
	rt := enginetest.NewRuntime()

	var notified atomic.Int32
	c, err := New(rt, testConfig(), WithFrameListener(func() { notified.Add(1) }))
	require.NoError(t, err)

	require.NoError(t, c.Build("videotestsrc ! appsink"))
	require.NoError(t, c.Play())

	fs := lastPipeline(t, rt).ElementByType("appsink").(*enginetest.FrameSink)
	samples := make([]*enginetest.Sample, n)
	for i := range samples {
		samples[i] = enginetest.NewSolidSample(2, 2, byte(10*i), 0, 0, 255)
		fs.Push(samples[i])
	}

	buf, w, h := c.CopyOutFrame()
	assert.Equal(t, 2, w)
	assert.Equal(t, 2, h)
	for px := 0; px < len(buf); px += 4 {
		assert.Equal(t, []byte{10 * (n - 1), 0, 0, 255}, buf[px:px+4])
	}
	for i, s := range samples {
		assert.True(t, s.Released(), "sample %d must be released", i)
	}
	assert.Equal(t, int32(n), notified.Load())

	stats := c.Stats().Frames
	assert.Equal(t, uint64(n), stats.FramesDelivered)
	assert.Equal(t, uint64(n-1), stats.FramesReplaced)
}

func TestCopyOutFrame_PlaceholderAndFill(t *testing.T) {
	c := newController(t, enginetest.NewRuntime(), func(cfg *Config) {
		cfg.Placeholder = ColorConfig{R: 9, G: 8, B: 7, A: 255}
	})

	buf, _, _ := c.CopyOutFrame()
	assert.Equal(t, []byte{9, 8, 7, 255}, buf[:4])

	require.NoError(t, c.FillPlaceholder(1, 2, 3))
	buf, _, _ = c.CopyOutFrame()
	assert.Equal(t, []byte{1, 2, 3, 255}, buf[:4])

	assert.ErrorIs(t, c.FillPlaceholder(256, 0, 0), ErrInvalidColor)
}

func TestScenario_OverlayBuildPlayStop(t *testing.T) {
	rt := enginetest.NewRuntime()
	c := newController(t, rt)
	w := &testWindow{handle: 0xBEEF}

	require.NoError(t, c.BindWindow(w))
	require.NoError(t, c.Build("videotestsrc ! autovideosink"))

	p := lastPipeline(t, rt)
	overlay := p.ElementByType("autovideosink").(*enginetest.OverlaySink)
	assert.Equal(t, uintptr(0xBEEF), overlay.WindowHandle())

	require.NoError(t, c.Play())
	require.NoError(t, c.Stop())

	assert.True(t, p.Released())
	assert.Equal(t, engine.StateNull, p.CurrentState())
	assert.Equal(t, StateNull, c.State())
	assert.Equal(t, int32(0), w.released.Load(), "stop keeps the window")
}

func TestScenario_MissingSource(t *testing.T) {
	c := newController(t, enginetest.NewRuntime())
	require.NoError(t, c.BindWindow(&testWindow{handle: 1}))

	assert.Error(t, c.Build("nosuchsrc ! autovideosink"))
	assert.Contains(t, c.LastError(), "MissingElementType: nosuchsrc")

	assert.Error(t, c.Build("videotestsrc ! nosuchfilter ! autovideosink"))
	lastErr := c.LastError()
	assert.Contains(t, lastErr, "MissingElementType: nosuchfilter")
	assert.NotContains(t, lastErr, "nosuchsrc", "report resets on each build")
}

func TestSetForegroundColor(t *testing.T) {
	t.Run("test source present", func(t *testing.T) {
		rt := enginetest.NewRuntime()
		c := newController(t, rt)
		require.NoError(t, c.Build("videotestsrc ! appsink"))

		require.NoError(t, c.SetForegroundColor(10, 20, 30))

		src := lastPipeline(t, rt).ElementByType("videotestsrc").(*enginetest.Element)
		v, ok := src.Property("foreground-color")
		require.True(t, ok)
		assert.Equal(t, uint32(0xFF0A141E), v)
	})

	t.Run("test source absent", func(t *testing.T) {
		c := newController(t, enginetest.NewRuntime())
		require.NoError(t, c.Build("v4l2src ! appsink"))

		assert.ErrorIs(t, c.SetForegroundColor(10, 20, 30), ErrNotFound)
	})

	t.Run("no pipeline", func(t *testing.T) {
		c := newController(t, enginetest.NewRuntime())
		assert.ErrorIs(t, c.SetForegroundColor(10, 20, 30), ErrNoPipeline)
	})

	t.Run("out of range", func(t *testing.T) {
		c := newController(t, enginetest.NewRuntime())
		require.NoError(t, c.Build("videotestsrc ! appsink"))

		for _, rgb := range [][3]int{{-1, 0, 0}, {0, 256, 0}, {0, 0, 1000}} {
			assert.ErrorIs(t, c.SetForegroundColor(rgb[0], rgb[1], rgb[2]), ErrInvalidColor)
		}
	})
}

func TestCommandsWithoutPipeline(t *testing.T) {
	c := newController(t, enginetest.NewRuntime())

	assert.ErrorIs(t, c.Play(), ErrNoPipeline)
	assert.ErrorIs(t, c.Pause(), ErrNoPipeline)
	assert.ErrorIs(t, c.Stop(), ErrNoPipeline)
	assert.Contains(t, c.LastError(), "NoPipeline")
}

func TestPlay_FailureKeepsPipelineUntilStop(t *testing.T) {
	rt := enginetest.NewRuntime()
	rt.Register(enginetest.ElementType{
		Name:     "flakysrc",
		Behavior: enginetest.Behavior{FailAt: engine.StatePlaying, ErrorText: "Internal data stream error."},
	})
	c := newController(t, rt)

	require.NoError(t, c.Build("flakysrc ! appsink"))

	err := c.Play()
	assert.ErrorIs(t, err, ErrTransitionFailure)
	assert.Contains(t, c.LastError(), "ERROR from flakysrc0: Internal data stream error. (no debug)")

	p := lastPipeline(t, rt)
	assert.False(t, p.Released(), "no automatic teardown; the caller decides")

	require.NoError(t, c.Stop())
	assert.True(t, p.Released())
}

func TestInit_IdempotentAndLatchesHost(t *testing.T) {
	rt := enginetest.NewRuntime()
	c := newController(t, rt)
	assert.False(t, c.Initialized())

	require.NoError(t, c.Init("host-context"))
	require.NoError(t, c.Init("other-context"))
	require.NoError(t, c.Init(nil))

	assert.True(t, c.Initialized())
	assert.Equal(t, 1, rt.InitCalls())
	assert.Equal(t, 1, rt.EventLoopStarts())
	assert.Equal(t, "host-context", rt.Host())
}

func TestInit_LazyOnFirstCommand(t *testing.T) {
	rt := enginetest.NewRuntime()
	c := newController(t, rt)

	require.NoError(t, c.Build("videotestsrc ! appsink"))
	assert.Equal(t, 1, rt.InitCalls())
	assert.Equal(t, 1, rt.EventLoopStarts())

	// A host context handed over later is still latched.
	require.NoError(t, c.Init("late-context"))
	assert.Equal(t, "late-context", rt.Host())
	assert.Equal(t, 1, rt.EventLoopStarts())
}

func TestBindWindow(t *testing.T) {
	rt := enginetest.NewRuntime()
	c := newController(t, rt)

	first := &testWindow{handle: 1}
	require.NoError(t, c.BindWindow(first))
	require.NoError(t, c.Build("videotestsrc ! autovideosink"))
	p := lastPipeline(t, rt)

	second := &testWindow{handle: 2}
	require.NoError(t, c.BindWindow(second))
	assert.Equal(t, int32(1), first.released.Load(), "prior window must be released")
	assert.True(t, p.Released(), "prior pipeline must be released")
	assert.True(t, c.Stats().WindowBound)

	assert.ErrorIs(t, c.BindWindow(nil), ErrNoWindowBound)
	assert.Equal(t, int32(1), second.released.Load())
	assert.False(t, c.Stats().WindowBound)

	assert.ErrorIs(t, c.BindWindow(HandleWindow(0)), ErrNoWindowBound)
}

func TestDiagnose(t *testing.T) {
	rt := enginetest.NewRuntime()
	rt.Unregister("glimagesink")
	c := newController(t, rt, func(cfg *Config) {
		cfg.DiagnoseElements = []string{"videotestsrc", "glimagesink"}
		cfg.DiagnosePlugins = []string{"app"}
	})

	got := c.Diagnose()
	assert.Equal(t, "runtime: GStreamer 1.24.0 (enginetest)\n"+
		"element videotestsrc: available\n"+
		"element glimagesink: missing\n"+
		"plugin app: available", got)
	assert.True(t, c.Initialized())
}

func TestStats(t *testing.T) {
	c := newController(t, enginetest.NewRuntime())

	s := c.Stats()
	assert.False(t, s.HasPipeline)
	assert.Equal(t, StateNull, s.State)

	require.NoError(t, c.Build("  videotestsrc ! appsink  "))
	s = c.Stats()
	assert.True(t, s.Initialized)
	assert.True(t, s.HasPipeline)
	assert.NotEmpty(t, s.PipelineID)
	assert.Equal(t, "videotestsrc ! appsink", s.Description)
	assert.Equal(t, StatePaused, s.State)
	assert.Equal(t, SinkFrame, s.SinkKind)
	assert.False(t, s.BuiltAt.IsZero())
}

// TestConcurrentCommands runs commands and copy-outs from several
// goroutines; the command lock serializes them.
func TestConcurrentCommands(t *testing.T) {
	rt := enginetest.NewRuntime()
	c := newController(t, rt)
	require.NoError(t, c.Build("videotestsrc ! appsink"))
	fs := lastPipeline(t, rt).ElementByType("appsink").(*enginetest.FrameSink)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if (i+j)%2 == 0 {
					_ = c.Play()
				} else {
					_ = c.Pause()
				}
				_ = c.State()
				_ = c.Stats()
			}
		}(i)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		for j := 0; j < 100; j++ {
			fs.Push(enginetest.NewSolidSample(2, 2, byte(j), 0, 0, 255))
		}
	}()
	go func() {
		defer wg.Done()
		for j := 0; j < 100; j++ {
			buf, w, h := c.CopyOutFrame()
			assert.Len(t, buf, w*h*4)
		}
	}()

	wg.Wait()
	c.Dispose()
	assert.False(t, c.Stats().HasPipeline)
}
