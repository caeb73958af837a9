package diagnostics

import "strings"

// Category classifies runtime errors for the last-error text and telemetry.
type Category int

const (
	// CategoryNetwork indicates network-related failures (connection, timeout, DNS)
	CategoryNetwork Category = iota
	// CategoryCodec indicates codec/stream failures (negotiation, decode errors)
	CategoryCodec
	// CategoryAuth indicates authentication/authorization failures
	CategoryAuth
	// CategoryMissingElement indicates an element or plugin absent from the registry
	CategoryMissingElement
	// CategoryResource indicates device or output resource failures (busy camera, no display)
	CategoryResource
	// CategoryUnknown indicates unclassified errors
	CategoryUnknown
)

// String returns a human-readable string representation of the category
func (c Category) String() string {
	switch c {
	case CategoryNetwork:
		return "network"
	case CategoryCodec:
		return "codec"
	case CategoryAuth:
		return "auth"
	case CategoryMissingElement:
		return "missing-element"
	case CategoryResource:
		return "resource"
	default:
		return "unknown"
	}
}

var (
	authKeywords = []string{
		"unauthorized", "401", "403", "forbidden", "authentication", "credentials", "password",
	}
	missingKeywords = []string{
		"no element", "missing plugin", "no such element", "could not find element", "not installed",
	}
	codecKeywords = []string{
		"codec", "decode", "encode", "format", "negotiation", "not negotiated", "not-negotiated", "caps", "h264", "h265", "jpeg", "no decoder",
	}
	resourceKeywords = []string{
		"device", "busy", "permission denied", "could not open", "no such file", "display", "window", "surface",
	}
	networkKeywords = []string{
		"connection", "timeout", "unreachable", "network", "dns", "resolve", "socket", "tcp", "udp", "rtsp", "could not connect",
	}
)

// Classify analyzes an error message and its debug string.
//
// Priority, most specific first: auth, missing element, codec, resource,
// network. Classification relies on message heuristics because the runtime
// does not expose a stable error domain through the bindings.
func Classify(text, debug string) Category {
	combined := strings.ToLower(text + " " + debug)

	switch {
	case containsAny(combined, authKeywords):
		return CategoryAuth
	case containsAny(combined, missingKeywords):
		return CategoryMissingElement
	case containsAny(combined, codecKeywords):
		return CategoryCodec
	case containsAny(combined, resourceKeywords):
		return CategoryResource
	case containsAny(combined, networkKeywords):
		return CategoryNetwork
	default:
		return CategoryUnknown
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
