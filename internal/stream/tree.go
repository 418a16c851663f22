package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

type nodeKind uint8

const (
	nodePlaceholder nodeKind = iota // array slot not yet observed
	nodeNull
	nodeBool
	nodeNumber
	nodeString
	nodeArray
	nodeObject
)

func (k nodeKind) String() string {
	switch k {
	case nodePlaceholder:
		return "placeholder"
	case nodeNull:
		return "null"
	case nodeBool:
		return "bool"
	case nodeNumber:
		return "number"
	case nodeString:
		return "string"
	case nodeArray:
		return "array"
	case nodeObject:
		return "object"
	}
	return "unknown"
}

// node is one value in the arena. Children are referenced by arena index and
// every node has exactly one parent, so overwriting a slot orphans the old
// subtree instead of aliasing it.
type node struct {
	kind   nodeKind
	scalar string // string contents, number literal, or "true"/"false"
	items  []int
	keys   []string
	vals   []int
}

// tree is the mutable document under reconstruction.
type tree struct {
	nodes []node
	root  int
}

func newTree() *tree {
	t := &tree{}
	t.root = t.alloc(node{kind: nodeObject})
	return t
}

func (t *tree) alloc(n node) int {
	t.nodes = append(t.nodes, n)
	return len(t.nodes) - 1
}

// field returns the child stored under key, or -1.
func (t *tree) field(obj int, key string) int {
	n := &t.nodes[obj]
	for i, k := range n.keys {
		if k == key {
			return n.vals[i]
		}
	}
	return -1
}

func (t *tree) setField(obj int, key string, child int) {
	n := &t.nodes[obj]
	for i, k := range n.keys {
		if k == key {
			n.vals[i] = child
			return
		}
	}
	n.keys = append(n.keys, key)
	n.vals = append(n.vals, child)
}

// growTo extends arr with placeholders so that index i is addressable.
func (t *tree) growTo(arr, i int) {
	for len(t.nodes[arr].items) <= i {
		ph := t.alloc(node{kind: nodePlaceholder})
		t.nodes[arr].items = append(t.nodes[arr].items, ph)
	}
}

// decode parses a JSON value into the arena, preserving object key order.
func (t *tree) decode(raw json.RawMessage) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	idx, err := t.decodeValue(dec)
	if err != nil {
		return 0, err
	}
	if dec.More() {
		return 0, errors.New("trailing data after value")
	}
	return idx, nil
}

func (t *tree) decodeValue(dec *json.Decoder) (int, error) {
	tok, err := dec.Token()
	if err != nil {
		return 0, err
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '[':
			arr := t.alloc(node{kind: nodeArray})
			for dec.More() {
				child, err := t.decodeValue(dec)
				if err != nil {
					return 0, err
				}
				t.nodes[arr].items = append(t.nodes[arr].items, child)
			}
			if _, err := dec.Token(); err != nil {
				return 0, err
			}
			return arr, nil
		case '{':
			obj := t.alloc(node{kind: nodeObject})
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return 0, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return 0, fmt.Errorf("unexpected object key %v", keyTok)
				}
				child, err := t.decodeValue(dec)
				if err != nil {
					return 0, err
				}
				t.setField(obj, key, child)
			}
			if _, err := dec.Token(); err != nil {
				return 0, err
			}
			return obj, nil
		}
		return 0, fmt.Errorf("unexpected delimiter %v", v)
	case string:
		return t.alloc(node{kind: nodeString, scalar: v}), nil
	case json.Number:
		return t.alloc(node{kind: nodeNumber, scalar: v.String()}), nil
	case bool:
		s := "false"
		if v {
			s = "true"
		}
		return t.alloc(node{kind: nodeBool, scalar: s}), nil
	case nil:
		return t.alloc(node{kind: nodeNull}), nil
	}
	return 0, fmt.Errorf("unexpected token %v", tok)
}

// apply mutates the tree with one patch operation.
func (t *tree) apply(op PatchOperation) error {
	value, err := t.decode(op.Value)
	if err != nil {
		return fmt.Errorf("decode value: %w", err)
	}

	if len(op.Path) == 0 {
		if t.nodes[value].kind != nodeObject {
			return fmt.Errorf("document root must be an object, got %s", t.nodes[value].kind)
		}
		if op.Op == OpAppend {
			return t.appendInto(t.root, value)
		}
		t.root = value
		return nil
	}

	last := op.Path[len(op.Path)-1]
	parent, err := t.walk(op.Path)
	if err != nil {
		return err
	}

	switch t.nodes[parent].kind {
	case nodeObject:
		existing := t.field(parent, last.Key)
		if op.Op == OpAppend && existing >= 0 {
			return t.appendInto(existing, value)
		}
		t.setField(parent, last.Key, value)
		return nil

	case nodeArray:
		return t.applyAtIndex(parent, last, op.Op, value)
	}
	return fmt.Errorf("cannot address %q inside %s", last.Key, t.nodes[parent].kind)
}

func (t *tree) applyAtIndex(arr int, seg Segment, op Op, value int) error {
	if !seg.IsIndex() {
		return fmt.Errorf("non-numeric segment %q on array", seg.Key)
	}
	i := seg.Index
	if i == appendIndex {
		i = len(t.nodes[arr].items)
	}

	if i >= len(t.nodes[arr].items) {
		t.growTo(arr, i)
		t.nodes[arr].items[i] = value
		return nil
	}

	current := t.nodes[arr].items[i]
	if t.nodes[current].kind == nodePlaceholder {
		t.nodes[arr].items[i] = value
		return nil
	}

	// Add at an occupied index overwrites the slot; entries never shift.
	if op == OpAppend {
		return t.appendInto(current, value)
	}
	t.nodes[arr].items[i] = value
	return nil
}

// appendInto concatenates strings, extends arrays, or merges objects.
func (t *tree) appendInto(target, value int) error {
	tn, vn := t.nodes[target], t.nodes[value]
	switch {
	case tn.kind == nodePlaceholder || tn.kind == nodeNull:
		t.nodes[target] = vn
	case tn.kind == nodeString && vn.kind == nodeString:
		t.nodes[target].scalar += vn.scalar
	case tn.kind == nodeArray && vn.kind == nodeArray:
		t.nodes[target].items = append(t.nodes[target].items, vn.items...)
	case tn.kind == nodeArray:
		t.nodes[target].items = append(t.nodes[target].items, value)
	case tn.kind == nodeObject && vn.kind == nodeObject:
		for i, k := range vn.keys {
			t.setField(target, k, vn.vals[i])
		}
	default:
		return fmt.Errorf("cannot append %s to %s", vn.kind, tn.kind)
	}
	return nil
}

// walk descends to the parent of the path's final segment, creating missing
// containers. A missing container is an array when the segment that will
// address it is numeric, otherwise an object.
func (t *tree) walk(path PointerPath) (int, error) {
	cur := t.root
	for i := 0; i < len(path)-1; i++ {
		seg, next := path[i], path[i+1]
		child, err := t.child(cur, seg, next)
		if err != nil {
			return 0, fmt.Errorf("at %s: %w", path[:i+1], err)
		}
		cur = child
	}
	return cur, nil
}

func (t *tree) child(cur int, seg, next Segment) (int, error) {
	switch t.nodes[cur].kind {
	case nodeObject:
		c := t.field(cur, seg.Key)
		if c < 0 {
			c = t.alloc(containerFor(next))
			t.setField(cur, seg.Key, c)
			return c, nil
		}
		return t.ensureContainer(c, next)

	case nodeArray:
		if !seg.IsIndex() {
			return 0, fmt.Errorf("non-numeric segment %q on array", seg.Key)
		}
		i := seg.Index
		if i == appendIndex {
			i = len(t.nodes[cur].items)
		}
		if i >= len(t.nodes[cur].items) {
			t.growTo(cur, i)
			c := t.alloc(containerFor(next))
			t.nodes[cur].items[i] = c
			return c, nil
		}
		return t.ensureContainer(t.nodes[cur].items[i], next)
	}
	return 0, fmt.Errorf("cannot descend into %s", t.nodes[cur].kind)
}

// ensureContainer turns a placeholder or null into the container next needs.
// Scalars are left alone and reported by the caller's next step.
func (t *tree) ensureContainer(c int, next Segment) (int, error) {
	switch t.nodes[c].kind {
	case nodePlaceholder, nodeNull:
		t.nodes[c] = containerFor(next)
	case nodeObject, nodeArray:
	default:
		return 0, fmt.Errorf("cannot descend into %s", t.nodes[c].kind)
	}
	return c, nil
}

func containerFor(next Segment) node {
	if next.IsIndex() {
		return node{kind: nodeArray}
	}
	return node{kind: nodeObject}
}

// lookup resolves path without mutating the tree.
func (t *tree) lookup(from int, path PointerPath) (int, bool) {
	cur := from
	for _, seg := range path {
		switch t.nodes[cur].kind {
		case nodeObject:
			c := t.field(cur, seg.Key)
			if c < 0 {
				return 0, false
			}
			cur = c
		case nodeArray:
			if seg.Index < 0 || seg.Index >= len(t.nodes[cur].items) {
				return 0, false
			}
			cur = t.nodes[cur].items[seg.Index]
		default:
			return 0, false
		}
	}
	return cur, true
}

// stringAt returns the string stored under key in obj, if any.
func (t *tree) stringAt(obj int, key string) (string, bool) {
	c := t.field(obj, key)
	if c < 0 || t.nodes[c].kind != nodeString {
		return "", false
	}
	return t.nodes[c].scalar, true
}

// marshal renders the subtree at idx as canonical JSON: object keys sorted,
// placeholders rendered as null.
func (t *tree) marshal(idx int) json.RawMessage {
	var buf bytes.Buffer
	t.writeJSON(&buf, idx)
	return buf.Bytes()
}

func (t *tree) writeJSON(buf *bytes.Buffer, idx int) {
	n := t.nodes[idx]
	switch n.kind {
	case nodePlaceholder, nodeNull:
		buf.WriteString("null")
	case nodeBool, nodeNumber:
		buf.WriteString(n.scalar)
	case nodeString:
		b, _ := json.Marshal(n.scalar)
		buf.Write(b)
	case nodeArray:
		buf.WriteByte('[')
		for i, c := range n.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			t.writeJSON(buf, c)
		}
		buf.WriteByte(']')
	case nodeObject:
		order := make([]int, len(n.keys))
		for i := range order {
			order[i] = i
		}
		sort.Slice(order, func(a, b int) bool { return n.keys[order[a]] < n.keys[order[b]] })
		buf.WriteByte('{')
		for i, k := range order {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(n.keys[k])
			buf.Write(kb)
			buf.WriteByte(':')
			t.writeJSON(buf, n.vals[k])
		}
		buf.WriteByte('}')
	}
}
