package nativeinference

import "github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/failure"

// Error taxonomy. Every message starts with the taxonomy name, which is
// also what LastError reports.
var (
	ErrEmptyDescription  = failure.ErrEmptyDescription
	ErrNoCompatibleSink  = failure.ErrNoCompatibleSink
	ErrNoWindowBound     = failure.ErrNoWindowBound
	ErrTransitionFailure = failure.ErrTransitionFailure
	ErrAsyncTimeout      = failure.ErrAsyncTimeout
	ErrNoPipeline        = failure.ErrNoPipeline
	ErrNotFound          = failure.ErrNotFound
	ErrInvalidColor      = failure.ErrInvalidColor
)

type (
	// ParseError carries the runtime parser's message.
	ParseError = failure.ParseError
	// MissingElementTypeError names an element type absent from the registry.
	MissingElementTypeError = failure.MissingElementTypeError
)
