//go:build !cgo

// Package gstengine provides stubs when CGO is disabled. The real runtime
// in gstengine.go requires CGO for the go-gst bindings.
package gstengine

import (
	"errors"

	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/engine"
)

// ErrCGORequired is returned when GStreamer functions are called without CGO support.
var ErrCGORequired = errors.New("GStreamer support requires CGO")

// Runtime is a stub that reports every element and plugin as missing.
type Runtime struct{}

var _ engine.Runtime = (*Runtime)(nil)

// New returns the stub runtime.
func New() *Runtime { return &Runtime{} }

// Init always fails without CGO.
func (r *Runtime) Init(engine.HostContext) error { return ErrCGORequired }

// Host always returns nil.
func (r *Runtime) Host() engine.HostContext { return nil }

// StartEventLoop is a no-op when CGO is disabled.
func (r *Runtime) StartEventLoop() {}

// HasElementType always returns false.
func (r *Runtime) HasElementType(string) bool { return false }

// HasPlugin always returns false.
func (r *Runtime) HasPlugin(string) bool { return false }

// Version reports the missing runtime.
func (r *Runtime) Version() string { return "unavailable (built without cgo)" }

// ParseLaunch always fails without CGO.
func (r *Runtime) ParseLaunch(string) (engine.Pipeline, error) { return nil, ErrCGORequired }
