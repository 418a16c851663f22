package interaction

import "fmt"

// WarningKind classifies a degraded-but-continuing condition.
type WarningKind string

const (
	WarnDecode            WarningKind = "DECODE"              // body not decodable as text/JSON
	WarnMalformedPatch    WarningKind = "MALFORMED_PATCH"     // frame did not parse as a patch
	WarnUnknownGroupShape WarningKind = "UNKNOWN_GROUP_SHAPE" // result group had an unexpected structure
	WarnPartialCapture    WarningKind = "PARTIAL_CAPTURE"     // finalized without a completion signal
)

// NoEvent marks a warning that is not tied to a specific event.
const NoEvent = -1

// Warning describes an upstream fragment that was skipped.
// Warnings never abort a session.
type Warning struct {
	Kind       WarningKind `json:"kind"`
	EventIndex int         `json:"event_index"`
	Message    string      `json:"message"`
}

// String implements fmt.Stringer.
func (w Warning) String() string {
	if w.EventIndex == NoEvent {
		return fmt.Sprintf("%s: %s", w.Kind, w.Message)
	}
	return fmt.Sprintf("%s (event %d): %s", w.Kind, w.EventIndex, w.Message)
}

// NewDecodeWarning reports an event whose body could not be decoded.
func NewDecodeWarning(eventIndex int, format string, args ...any) Warning {
	return Warning{Kind: WarnDecode, EventIndex: eventIndex, Message: fmt.Sprintf(format, args...)}
}

// NewMalformedPatchWarning reports a frame that did not parse as a patch.
func NewMalformedPatchWarning(eventIndex int, format string, args ...any) Warning {
	return Warning{Kind: WarnMalformedPatch, EventIndex: eventIndex, Message: fmt.Sprintf(format, args...)}
}

// NewUnknownGroupShapeWarning reports a result group that was skipped.
func NewUnknownGroupShapeWarning(format string, args ...any) Warning {
	return Warning{Kind: WarnUnknownGroupShape, EventIndex: NoEvent, Message: fmt.Sprintf(format, args...)}
}

// NewPartialCaptureWarning reports finalization without a completion signal.
func NewPartialCaptureWarning(eventsSeen int) Warning {
	return Warning{
		Kind:       WarnPartialCapture,
		EventIndex: NoEvent,
		Message:    fmt.Sprintf("stream ended without completion signal after %d events", eventsSeen),
	}
}
