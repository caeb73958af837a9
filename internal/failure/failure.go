// Package failure holds the error taxonomy shared by the controller's
// collaborators. Every message starts with the taxonomy name so the
// host can match on the last-error text as well as with errors.Is/As.
package failure

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyDescription is returned for empty or whitespace-only descriptions.
	ErrEmptyDescription = errors.New("EmptyDescription: pipeline description is empty")

	// ErrNoCompatibleSink is returned when the graph has neither an overlay
	// sink nor a frame sink.
	ErrNoCompatibleSink = errors.New("NoCompatibleSink: pipeline has no video overlay sink and no frame sink")

	// ErrNoWindowBound is returned when an overlay sink is found but no
	// window is bound.
	ErrNoWindowBound = errors.New("NoWindowBound: overlay sink requires a bound window")

	// ErrTransitionFailure is a generic state transition failure.
	ErrTransitionFailure = errors.New("Failure: state transition failed")

	// ErrAsyncTimeout is returned when an asynchronous transition does not
	// complete within its ceiling.
	ErrAsyncTimeout = errors.New("AsyncTimeout: asynchronous state change did not complete in time")

	// ErrNoPipeline is returned by commands that need a built pipeline.
	ErrNoPipeline = errors.New("NoPipeline: no pipeline has been built")

	// ErrNotFound is returned when a named element is absent from the graph.
	ErrNotFound = errors.New("NotFound: element not found in pipeline")

	// ErrInvalidColor is returned for colour components outside [0,255].
	ErrInvalidColor = errors.New("InvalidColor: colour components must be within 0-255")
)

// ParseError carries the runtime parser's message for a malformed description.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ParseError: %s", e.Message)
}

// MissingElementTypeError is returned when a description names an element
// type the runtime registry does not know.
type MissingElementTypeError struct {
	Name string
}

func (e *MissingElementTypeError) Error() string {
	return fmt.Sprintf("MissingElementType: %s", e.Name)
}

// IsMissingElement reports whether err is (or wraps) a MissingElementTypeError.
func IsMissingElement(err error) bool {
	var missing *MissingElementTypeError
	return errors.As(err, &missing)
}
