package nativeinference

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/builder"
	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/diagnostics"
	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/engine"
	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/failure"
	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/framebridge"
	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/metrics"
	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/sink"
	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/transition"
)

// Controller owns a single pipeline and its output target.
//
// Every command except CopyOutFrame holds the command lock for its whole
// duration, including the bounded asynchronous waits, so commands never
// run concurrently. The frame bridge has its own lock and is fed from the
// runtime's streaming thread outside the command lock.
type Controller struct {
	mu sync.Mutex

	rt          engine.Runtime
	cfg         Config
	builder     *builder.Builder
	transitions *transition.Engine
	report      *diagnostics.Report
	collector   *diagnostics.Collector
	bridge      *framebridge.Bridge

	initialized bool
	loopStarted bool
	host        engine.HostContext

	window Window
	active *activePipeline
}

// activePipeline is the committed result of a successful build.
type activePipeline struct {
	id          string
	description string
	pipeline    engine.Pipeline
	sink        sink.Classification
	state       engine.State
	builtAt     time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithFrameListener registers the new-frame notification of the frame sink
// path.
func WithFrameListener(fn FrameListener) Option {
	return func(c *Controller) {
		c.SetFrameListener(fn)
	}
}

// New creates a controller with fail-fast validation
//
// Validates at construction time:
//   - runtime must not be nil
//   - configuration must pass Config.Validate
//
// The runtime itself is initialized lazily, by Init or the first command
// that needs it.
func New(rt engine.Runtime, cfg Config, opts ...Option) (*Controller, error) {
	if rt == nil {
		return nil, errors.New("pipeline-control: runtime is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline-control: invalid config: %w", err)
	}

	bridge, err := framebridge.New(framebridge.Config{
		Width:       cfg.FrameWidth,
		Height:      cfg.FrameHeight,
		Placeholder: cfg.Placeholder.Color(),
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline-control: %w", err)
	}

	report := diagnostics.NewReport()
	c := &Controller{
		rt:          rt,
		cfg:         cfg,
		builder:     builder.New(rt),
		transitions: transition.New(cfg.PollInterval),
		report:      report,
		collector:   diagnostics.NewCollector(report, cfg.DrainWindow),
		bridge:      bridge,
	}
	for _, opt := range opts {
		opt(c)
	}

	slog.Info("pipeline-control: controller created",
		"runtime", rt.Version(),
		"frame_size", fmt.Sprintf("%dx%d", cfg.FrameWidth, cfg.FrameHeight),
		"poll_interval", cfg.PollInterval,
	)
	return c, nil
}

// Init initializes the media runtime. Idempotent.
//
// A non-nil host context is latched before the runtime first uses it, so
// platform sinks that need a thread-attachment handle find it. The
// runtime's background event loop is started exactly once.
func (c *Controller) Init(host engine.HostContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.initLocked(host)
	metrics.IncCommand("init", err)
	return err
}

func (c *Controller) initLocked(host engine.HostContext) error {
	if c.initialized && (host == nil || c.host != nil) {
		return nil
	}

	if host != nil {
		c.host = host
	}
	if err := c.rt.Init(c.host); err != nil {
		return c.fail(fmt.Errorf("init runtime: %w", err))
	}
	c.initialized = true

	if !c.loopStarted {
		c.rt.StartEventLoop()
		c.loopStarted = true
	}

	slog.Info("pipeline-control: runtime initialized", "version", c.rt.Version())
	return nil
}

// BindWindow binds the native surface overlay sinks render into.
//
// Any pipeline and window held so far are released first. A nil window
// (or a zero handle) leaves the controller without a window and fails with
// ErrNoWindowBound.
func (c *Controller) BindWindow(w Window) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.bindWindowLocked(w)
	metrics.IncCommand("bind_window", err)
	return err
}

func (c *Controller) bindWindowLocked(w Window) error {
	if err := c.initLocked(nil); err != nil {
		return err
	}

	c.releasePipelineLocked()
	c.releaseWindowLocked()

	if w == nil || w.Handle() == 0 {
		return c.fail(fmt.Errorf("bind window: %w", failure.ErrNoWindowBound))
	}

	c.window = w
	slog.Info("pipeline-control: window bound", "handle", w.Handle())
	return nil
}

// Build constructs a pipeline from description, binds its sink and
// prerolls it to PAUSED.
//
// This function:
//  1. Resets the diagnostic report
//  2. Releases the previous pipeline
//  3. Parses the description (fast fail on a missing first element)
//  4. Classifies and binds the output sink
//  5. Prerolls (READY, then PAUSED) within the preroll ceiling
//
// Any failure tears the partial pipeline down before returning and leaves
// the reason in LastError: the error text, drained bus messages, and a
// Diagnose snapshot when an element is missing or the preroll timed out.
func (c *Controller) Build(description string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.buildLocked(description)
	metrics.IncCommand("build", err)
	if err != nil {
		metrics.IncBuildFailure(reasonOf(err))
	}
	return err
}

func (c *Controller) buildLocked(description string) error {
	start := time.Now()

	c.report.Reset()
	if err := c.initLocked(nil); err != nil {
		return err
	}
	c.releasePipelineLocked()

	p, err := c.builder.Build(description)
	if err != nil {
		c.report.Append(err.Error())
		if failure.IsMissingElement(err) {
			c.report.Append(c.snapshotLocked())
		}
		slog.Warn("pipeline-control: build failed", "error", err)
		return err
	}

	classification := sink.Classify(p)
	var window sink.Window
	if c.window != nil {
		window = c.window
	}
	if err := sink.Bind(classification, window, c.bridge.OnNewSample); err != nil {
		c.report.Append(err.Error())
		c.teardown(p)
		slog.Warn("pipeline-control: sink binding failed",
			"pipeline", p.Name(),
			"sink", classification.Kind,
			"error", err,
		)
		return err
	}

	res, err := c.transitions.Preroll(p, c.cfg.PrerollTimeout)
	if err != nil {
		c.report.Append(err.Error())
		c.collector.Drain(p.Bus(), c.cfg.DrainWindow)
		if errors.Is(err, failure.ErrAsyncTimeout) {
			c.report.Append(c.snapshotLocked())
		}
		c.teardown(p)
		slog.Warn("pipeline-control: preroll failed",
			"pipeline", p.Name(),
			"result", res,
			"error", err,
		)
		return err
	}

	c.active = &activePipeline{
		id:          uuid.New().String(),
		description: strings.TrimSpace(description),
		pipeline:    p,
		sink:        classification,
		state:       engine.StatePaused,
		builtAt:     time.Now(),
	}
	metrics.SetPipelineState(int(engine.StatePaused))

	slog.Info("pipeline-control: pipeline built",
		"pipeline_id", c.active.id,
		"sink", classification.Kind,
		"preroll", res,
		"elapsed", time.Since(start),
	)
	return nil
}

// Play moves the pipeline to PLAYING within the play ceiling.
func (c *Controller) Play() error {
	return c.transitionCommand(transition.OpPlay, c.cfg.PlayTimeout)
}

// Pause moves the pipeline to PAUSED within the pause ceiling.
func (c *Controller) Pause() error {
	return c.transitionCommand(transition.OpPause, c.cfg.PauseTimeout)
}

// transitionCommand runs Play or Pause. A failed or timed-out transition
// leaves the pipeline owned: the caller decides whether to Stop it.
func (c *Controller) transitionCommand(op transition.Operation, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.transitionLocked(op, timeout)
	metrics.IncCommand(op.String(), err)
	return err
}

func (c *Controller) transitionLocked(op transition.Operation, timeout time.Duration) error {
	if c.active == nil {
		return c.fail(fmt.Errorf("%s: %w", op, failure.ErrNoPipeline))
	}
	p := c.active.pipeline

	res, err := c.transitions.Transition(p, op, timeout)
	if err != nil {
		c.report.Append(err.Error())
		c.collector.Drain(p.Bus(), c.cfg.DrainWindow)
		if errors.Is(err, failure.ErrAsyncTimeout) {
			c.report.Append(c.snapshotLocked())
		}
		slog.Warn("pipeline-control: transition failed",
			"pipeline_id", c.active.id,
			"operation", op,
			"result", res,
			"error", err,
		)
		return err
	}

	c.active.state = op.Target()
	metrics.SetPipelineState(int(c.active.state))
	slog.Info("pipeline-control: pipeline "+op.String(),
		"pipeline_id", c.active.id,
		"result", res,
	)
	return nil
}

// Stop forces the pipeline to NULL and releases it.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.active == nil {
		err = c.fail(fmt.Errorf("stop: %w", failure.ErrNoPipeline))
	} else {
		c.releasePipelineLocked()
	}
	metrics.IncCommand("stop", err)
	return err
}

// SetForegroundColor sets the foreground colour of the synthetic test
// source (Config.TestSourceType) of the current pipeline.
func (c *Controller) SetForegroundColor(r, g, b int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.setForegroundColorLocked(r, g, b)
	metrics.IncCommand("set_foreground_color", err)
	return err
}

func (c *Controller) setForegroundColorLocked(r, g, b int) error {
	if !validComponent(r) || !validComponent(g) || !validComponent(b) {
		return c.fail(fmt.Errorf("%w: got (%d, %d, %d)", failure.ErrInvalidColor, r, g, b))
	}
	if c.active == nil {
		return c.fail(fmt.Errorf("set foreground color: %w", failure.ErrNoPipeline))
	}

	var src engine.Element
	for _, el := range c.active.pipeline.Elements() {
		if el.TypeName() == c.cfg.TestSourceType {
			src = el
			break
		}
	}
	if src == nil {
		return c.fail(fmt.Errorf("%w: no %s element", failure.ErrNotFound, c.cfg.TestSourceType))
	}

	argb := uint32(0xFF)<<24 | uint32(r)<<16 | uint32(g)<<8 | uint32(b)
	if err := src.SetProperty("foreground-color", argb); err != nil {
		return c.fail(fmt.Errorf("set foreground color: %w", err))
	}

	slog.Debug("pipeline-control: foreground color set",
		"element", src.Name(),
		"argb", fmt.Sprintf("0x%08X", argb),
	)
	return nil
}

// FillPlaceholder repaints the frame buffer with a solid opaque colour and
// notifies the frame listener. It does not touch the pipeline.
func (c *Controller) FillPlaceholder(r, g, b int) error {
	if !validComponent(r) || !validComponent(g) || !validComponent(b) {
		return fmt.Errorf("%w: got (%d, %d, %d)", failure.ErrInvalidColor, r, g, b)
	}
	c.bridge.Fill(ColorConfig{R: uint8(r), G: uint8(g), B: uint8(b), A: 0xFF}.Color())
	return nil
}

// SetFrameListener registers the new-frame notification. nil clears it.
func (c *Controller) SetFrameListener(fn FrameListener) {
	if fn == nil {
		c.bridge.SetListener(nil)
		return
	}
	c.bridge.SetListener(framebridge.Listener(fn))
}

// CopyOutFrame returns a snapshot of the latest frame as RGBA bytes with
// its dimensions. It does not take the command lock and never waits on
// the frame producer; before any frame it returns the placeholder fill.
func (c *Controller) CopyOutFrame() ([]byte, int, int) {
	return c.bridge.CopyOut()
}

// LastError returns the diagnostic report of the current or most recent
// build attempt, "" when nothing failed since the last reset.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.report.LastError()
}

// Diagnose reports, for the configured well-known element and plugin
// names, whether the runtime currently provides them.
func (c *Controller) Diagnose() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.initLocked(nil); err != nil {
		metrics.IncCommand("diagnose", err)
		return fmt.Sprintf("runtime unavailable: %v", err)
	}
	metrics.IncCommand("diagnose", nil)
	return c.snapshotLocked()
}

// Dispose releases the pipeline and the window. The runtime stays
// initialized: re-initializing it is neither needed nor safe. Safe to
// call repeatedly.
func (c *Controller) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.releasePipelineLocked()
	c.releaseWindowLocked()
	metrics.IncCommand("dispose", nil)
	slog.Debug("pipeline-control: disposed", "initialized", c.initialized)
}

// Initialized reports whether the runtime has been initialized.
func (c *Controller) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// State returns the state of the active pipeline, StateNull without one.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	if c.active == nil {
		return engine.StateNull
	}
	if ret, current, _ := c.active.pipeline.QueryState(); ret != engine.StateChangeFailure {
		return current
	}
	return c.active.state
}

// Stats returns a snapshot of the controller.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Initialized: c.initialized,
		State:       engine.StateNull,
		SinkKind:    sink.KindNone,
		WindowBound: c.window != nil,
		LastError:   c.report.LastError(),
		Frames:      c.bridge.Stats(),
	}
	if c.active != nil {
		s.HasPipeline = true
		s.PipelineID = c.active.id
		s.Description = c.active.description
		s.State = c.stateLocked()
		s.SinkKind = c.active.sink.Kind
		s.BuiltAt = c.active.builtAt
	}
	return s
}

// fail records err in the diagnostic report and returns it.
func (c *Controller) fail(err error) error {
	c.report.Append(err.Error())
	return err
}

func (c *Controller) snapshotLocked() string {
	return diagnostics.Snapshot(c.rt, c.cfg.DiagnoseElements, c.cfg.DiagnosePlugins)
}

// teardown forces p to NULL and releases it. Used for partial builds.
func (c *Controller) teardown(p engine.Pipeline) {
	c.transitions.ForceNull(p)
	p.Release()
	c.bridge.Reset()
}

func (c *Controller) releasePipelineLocked() {
	if c.active == nil {
		return
	}
	slog.Info("pipeline-control: releasing pipeline", "pipeline_id", c.active.id)
	c.teardown(c.active.pipeline)
	c.active = nil
	metrics.SetPipelineState(int(engine.StateNull))
}

func (c *Controller) releaseWindowLocked() {
	if c.window == nil {
		return
	}
	c.window.Release()
	c.window = nil
}

func validComponent(v int) bool {
	return v >= 0 && v <= 255
}

// reasonOf extracts the taxonomy name an error message starts with.
func reasonOf(err error) string {
	name, _, found := strings.Cut(err.Error(), ":")
	if !found || strings.ContainsAny(name, " ") {
		return "Other"
	}
	return name
}
