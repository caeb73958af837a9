// Package nativeinference drives a single GStreamer pipeline on behalf of a
// host application: build it from a gst-launch description, bind it to a
// native window or to a pull-based frame buffer, and move it through
// play/pause/stop with bounded-time waits.
//
// # Quick Start
//
//	cfg, err := nativeinference.LoadConfig("pipelinectl.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctrl, err := nativeinference.New(gstengine.New(), cfg,
//	    nativeinference.WithFrameListener(func() { redraw() }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctrl.Dispose()
//
//	if err := ctrl.Build("videotestsrc ! videoconvert ! video/x-raw,format=RGBA ! appsink"); err != nil {
//	    log.Printf("build failed:\n%s", ctrl.LastError())
//	    return
//	}
//	_ = ctrl.Play()
//
//	// On the render thread, after each notification:
//	buf, width, height := ctrl.CopyOutFrame()
//
// # Output Sinks
//
// After parsing, the graph is walked once in insertion order:
//
//   - The first element able to render into a native window (GstVideoOverlay)
//     is bound to the window given to BindWindow. Without a window the build
//     fails with ErrNoWindowBound.
//   - Otherwise the first appsink is tuned for latest-frame delivery
//     (sync=false, max-buffers=1, drop=true) and feeds CopyOutFrame.
//   - Otherwise the build fails with ErrNoCompatibleSink.
//
// # Transitions
//
// Build prerolls the pipeline (READY, then PAUSED). Asynchronous
// transitions are polled every Config.PollInterval and bounded by hard
// ceilings: preroll 20s, play 10s, pause 10s. A live source that cannot
// preroll (NO_PREROLL) still yields a usable pipeline. Nothing is retried
// automatically.
//
// # Errors
//
// Every command returns an error whose message starts with its taxonomy
// name (EmptyDescription, ParseError, MissingElementType, NoCompatibleSink,
// NoWindowBound, Failure, AsyncTimeout). The same text, plus drained bus
// messages and a Diagnose snapshot where useful, is available from
// LastError until the next Build.
//
// # Frame Format
//
// CopyOutFrame returns interleaved RGBA, Width × Height × 4 bytes. Before
// the first frame the buffer holds Config.Placeholder. Describe the caps so
// the appsink receives RGBA (video/x-raw,format=RGBA).
package nativeinference
