package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Op is the kind of mutation a PatchOperation performs.
type Op uint8

const (
	OpAdd     Op = iota + 1 // set or extend; fills placeholders
	OpReplace               // overwrite the value at the path
	OpAppend                // concatenate strings / extend arrays at the path
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpReplace:
		return "replace"
	case OpAppend:
		return "append"
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// ParseOp maps a wire op name to an Op.
func ParseOp(s string) (Op, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "add":
		return OpAdd, nil
	case "replace":
		return OpReplace, nil
	case "append":
		return OpAppend, nil
	}
	return 0, fmt.Errorf("unknown op %q", s)
}

// PatchOperation is one decoded mutation.
type PatchOperation struct {
	Op    Op
	Path  PointerPath
	Value json.RawMessage
}

// envelope is the wire shape of a frame's JSON data.
type envelope struct {
	O    *string         `json:"o"`
	P    *string         `json:"p"`
	V    json.RawMessage `json:"v"`
	Type string          `json:"type"`
}

func (e envelope) hasOp() bool {
	return e.O != nil || e.P != nil
}

// frameKind classifies decoded frame data.
type frameKind int

const (
	frameIgnore   frameKind = iota // control or unrelated data
	frameComplete                  // explicit completion signal
	framePatches                   // one or more patch candidates
	frameContinue                  // bare value continuing the previous append
	frameSnapshot                  // full document replacing the root
)

// decodedFrame is the result of classifying one frame's data.
type decodedFrame struct {
	kind  frameKind
	raw   []json.RawMessage // framePatches: raw op objects
	value json.RawMessage   // frameContinue / frameSnapshot
}

// completionType is the control frame type marking the end of a stream.
const completionType = "message_stream_complete"

// errUnrecognizedFrame marks JSON objects that are neither patches,
// snapshots, nor control frames.
var errUnrecognizedFrame = errors.New("unrecognized frame shape")

// classify decodes frame data. snapshotKey names the top-level key that
// identifies a full document object.
func classify(data []byte, snapshotKey string) (decodedFrame, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return decodedFrame{kind: frameIgnore}, nil
	}
	if string(data) == "[DONE]" {
		return decodedFrame{kind: frameComplete}, nil
	}
	if !json.Valid(data) {
		return decodedFrame{}, fmt.Errorf("invalid JSON (%d bytes)", len(data))
	}

	switch data[0] {
	case '[':
		var batch []json.RawMessage
		if err := json.Unmarshal(data, &batch); err != nil {
			return decodedFrame{}, err
		}
		return decodedFrame{kind: framePatches, raw: batch}, nil
	case '{':
	default:
		// Bare scalars carry stream metadata (e.g. the encoding version).
		return decodedFrame{kind: frameIgnore}, nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return decodedFrame{}, err
	}

	switch {
	case env.Type == completionType:
		return decodedFrame{kind: frameComplete}, nil
	case env.O != nil && strings.EqualFold(*env.O, "patch"):
		var batch []json.RawMessage
		if err := json.Unmarshal(env.V, &batch); err != nil {
			return decodedFrame{}, fmt.Errorf("patch batch: %w", err)
		}
		return decodedFrame{kind: framePatches, raw: batch}, nil
	case env.hasOp():
		return decodedFrame{kind: framePatches, raw: []json.RawMessage{data}}, nil
	case len(env.V) > 0:
		if hasKey(env.V, snapshotKey) {
			return decodedFrame{kind: frameSnapshot, value: env.V}, nil
		}
		return decodedFrame{kind: frameContinue, value: env.V}, nil
	case env.Type != "":
		return decodedFrame{kind: frameIgnore}, nil
	case hasKey(data, snapshotKey):
		return decodedFrame{kind: frameSnapshot, value: data}, nil
	}
	return decodedFrame{}, errUnrecognizedFrame
}

// decodeOp turns one raw op object into a PatchOperation. A missing op
// defaults to add; a missing path addresses the root.
func decodeOp(raw json.RawMessage) (PatchOperation, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PatchOperation{}, err
	}
	if !env.hasOp() {
		return PatchOperation{}, fmt.Errorf("op object has neither o nor p")
	}
	if len(env.V) == 0 {
		return PatchOperation{}, fmt.Errorf("op object has no value")
	}

	op := OpAdd
	if env.O != nil {
		parsed, err := ParseOp(*env.O)
		if err != nil {
			return PatchOperation{}, err
		}
		op = parsed
	}

	var path PointerPath
	if env.P != nil {
		p, err := ParsePath(*env.P)
		if err != nil {
			return PatchOperation{}, err
		}
		path = p
	}

	return PatchOperation{Op: op, Path: path, Value: env.V}, nil
}

// hasKey reports whether data is a JSON object with a top-level key.
func hasKey(data json.RawMessage, key string) bool {
	if key == "" {
		return false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return false
	}
	_, ok := obj[key]
	return ok
}

// parseSSEFrame extracts the data of one SSE frame. Payloads without any SSE
// field lines are treated as bare data.
func parseSSEFrame(payload []byte) []byte {
	lines := strings.Split(string(payload), "\n")
	var (
		data    []string
		isField bool
	)
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		switch {
		case strings.HasPrefix(line, "data:"):
			isField = true
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, ":"),
			strings.HasPrefix(line, "event:"),
			strings.HasPrefix(line, "id:"),
			strings.HasPrefix(line, "retry:"):
			isField = true
		}
	}
	if !isField {
		return payload
	}
	return []byte(strings.Join(data, "\n"))
}

// splitSSEBody splits a captured SSE response body into frames on blank lines.
// Returns nil when the body carries no data lines.
func splitSSEBody(body string) [][]byte {
	if !strings.HasPrefix(body, "data:") && !strings.Contains(body, "\ndata:") {
		return nil
	}
	body = strings.ReplaceAll(body, "\r\n", "\n")
	var frames [][]byte
	for _, chunk := range strings.Split(body, "\n\n") {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		frames = append(frames, []byte(chunk))
	}
	return frames
}
