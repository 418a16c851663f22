package stream

import (
	"bytes"
	"errors"
	"unicode/utf8"

	"github.com/hpungsan/citelens/internal/interaction"
)

// Reconstructor rebuilds one session's document from raw capture events.
// It is a single-owner fold: call Feed in arrival order, then Finalize once.
// It is not safe for concurrent use; run one Reconstructor per session.
type Reconstructor struct {
	layout Layout
	tree   *tree

	events    int
	completed bool

	// lastAppend is the path of the most recent append, which bare-value
	// frames continue. Any other op clears it.
	lastAppend PointerPath

	frozen *DocumentState
}

// Option configures a Reconstructor.
type Option func(*Reconstructor)

// WithLayout overrides DefaultLayout.
func WithLayout(l Layout) Option {
	return func(r *Reconstructor) { r.layout = l }
}

// New returns a Reconstructor with an empty document.
func New(opts ...Option) *Reconstructor {
	r := &Reconstructor{
		layout: DefaultLayout,
		tree:   newTree(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Feed applies one event. Returned warnings describe fragments that were
// skipped; the session always continues. Feeding after Finalize is a no-op.
func (r *Reconstructor) Feed(ev interaction.RawCaptureEvent) []interaction.Warning {
	if r.frozen != nil {
		return nil
	}
	idx := r.events
	r.events++

	switch ev.Kind {
	case interaction.KindSSE:
		return r.applyData(idx, parseSSEFrame(ev.Payload), false)
	case interaction.KindHTTP:
		return r.feedHTTP(idx, ev.Payload)
	}
	return []interaction.Warning{interaction.NewDecodeWarning(idx, "unknown event kind %q", ev.Kind)}
}

func (r *Reconstructor) feedHTTP(idx int, body []byte) []interaction.Warning {
	if !utf8.Valid(body) {
		if len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b {
			return []interaction.Warning{interaction.NewDecodeWarning(idx, "body is gzip-compressed (%d bytes)", len(body))}
		}
		return []interaction.Warning{interaction.NewDecodeWarning(idx, "body is not valid UTF-8 (%d bytes)", len(body))}
	}

	if frames := splitSSEBody(string(body)); frames != nil {
		var warnings []interaction.Warning
		for _, f := range frames {
			warnings = append(warnings, r.applyData(idx, parseSSEFrame(f), false)...)
		}
		return warnings
	}

	// Arrays in plain bodies come from unrelated endpoints.
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '[' {
		return nil
	}
	return r.applyData(idx, body, true)
}

// applyData classifies and applies one frame's data.
func (r *Reconstructor) applyData(idx int, data []byte, fromHTTP bool) []interaction.Warning {
	frame, err := classify(data, r.layout.SnapshotKey)
	if err != nil {
		switch {
		case fromHTTP && errors.Is(err, errUnrecognizedFrame):
			return nil
		case fromHTTP:
			return []interaction.Warning{interaction.NewDecodeWarning(idx, "body: %v", err)}
		}
		return []interaction.Warning{interaction.NewMalformedPatchWarning(idx, "%v", err)}
	}

	switch frame.kind {
	case frameComplete:
		r.completed = true
	case frameSnapshot:
		r.lastAppend = nil
		if err := r.tree.apply(PatchOperation{Op: OpReplace, Path: PointerPath{}, Value: frame.value}); err != nil {
			return []interaction.Warning{interaction.NewMalformedPatchWarning(idx, "snapshot: %v", err)}
		}
	case frameContinue:
		if r.lastAppend == nil {
			return []interaction.Warning{interaction.NewMalformedPatchWarning(idx, "bare value with no append to continue")}
		}
		op := PatchOperation{Op: OpAppend, Path: r.lastAppend, Value: frame.value}
		if err := r.tree.apply(op); err != nil {
			return []interaction.Warning{interaction.NewMalformedPatchWarning(idx, "%s %s: %v", op.Op, op.Path, err)}
		}
	case framePatches:
		var warnings []interaction.Warning
		for _, raw := range frame.raw {
			if w, ok := r.applyRaw(idx, raw); !ok {
				warnings = append(warnings, w)
			}
		}
		return warnings
	}
	return nil
}

func (r *Reconstructor) applyRaw(idx int, raw []byte) (interaction.Warning, bool) {
	op, err := decodeOp(raw)
	if err != nil {
		return interaction.NewMalformedPatchWarning(idx, "%v", err), false
	}
	if op.Path == nil {
		// An append without a path continues the previous one.
		if op.Op == OpAppend && r.lastAppend != nil {
			op.Path = r.lastAppend
		} else {
			op.Path = PointerPath{}
		}
	}
	if err := r.Apply(op); err != nil {
		return interaction.NewMalformedPatchWarning(idx, "%s %s: %v", op.Op, op.Path, err), false
	}
	return interaction.Warning{}, true
}

// Apply applies a decoded operation directly.
func (r *Reconstructor) Apply(op PatchOperation) error {
	if r.frozen != nil {
		return errors.New("reconstructor already finalized")
	}
	if err := r.tree.apply(op); err != nil {
		return err
	}
	if op.Op == OpAppend {
		r.lastAppend = op.Path
	} else {
		r.lastAppend = nil
	}
	return nil
}

// MarkComplete records an explicit stream-close signal from the caller.
func (r *Reconstructor) MarkComplete() {
	r.completed = true
}

// Finalize freezes the document. Without a completion signal the partial
// document is still returned, with a PARTIAL_CAPTURE warning. Repeated calls
// return the same state and no further warnings.
func (r *Reconstructor) Finalize() (*DocumentState, []interaction.Warning) {
	if r.frozen != nil {
		return r.frozen, nil
	}
	r.frozen = r.tree.freeze(r.layout, r.completed)
	r.tree = nil
	if !r.completed {
		return r.frozen, []interaction.Warning{interaction.NewPartialCaptureWarning(r.events)}
	}
	return r.frozen, nil
}

// EventsSeen returns how many events have been fed.
func (r *Reconstructor) EventsSeen() int {
	return r.events
}
