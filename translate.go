package bridge

import (
	"encoding/json"
	"reflect"
	"strconv"

	"github.com/SimonDaKappa/go-pave-bridge/engine"
)

// Reserved keys used when an ErrorTree is rendered to plain maps.
const (
	SchemaKey  = "_schema"
	UnknownKey = "_unknown"
)

// ErrorTree is a nested mapping from path segments to messages.
// Children keep the order their first message was added in, and
// messages at one location keep insertion order.
type ErrorTree struct {
	Messages []string
	children []errorChild
}

type errorChild struct {
	seg  engine.Segment
	tree *ErrorTree
}

// NewErrorTree builds a tree from a flat issue list.
func NewErrorTree(issues []engine.Issue) *ErrorTree {
	t := &ErrorTree{}
	for _, is := range issues {
		t.Add(is.Path, is.Message)
	}
	return t
}

// Add appends msgs at path, creating intermediate nodes as needed.
func (t *ErrorTree) Add(path engine.Path, msgs ...string) {
	node := t
	for _, seg := range path {
		node = node.child(seg, true)
	}
	node.Messages = append(node.Messages, msgs...)
}

func (t *ErrorTree) child(seg engine.Segment, create bool) *ErrorTree {
	for _, c := range t.children {
		if c.seg == seg {
			return c.tree
		}
	}
	if !create {
		return nil
	}
	c := errorChild{seg: seg, tree: &ErrorTree{}}
	t.children = append(t.children, c)
	return c.tree
}

// Get follows path and returns the node there.
func (t *ErrorTree) Get(path ...engine.Segment) (*ErrorTree, bool) {
	node := t
	for _, seg := range path {
		if node = node.child(seg, false); node == nil {
			return nil, false
		}
	}
	return node, true
}

// At returns the messages stored exactly at path.
func (t *ErrorTree) At(path ...engine.Segment) []string {
	if node, ok := t.Get(path...); ok {
		return node.Messages
	}
	return nil
}

// Segments lists the direct children in insertion order.
func (t *ErrorTree) Segments() []engine.Segment {
	out := make([]engine.Segment, len(t.children))
	for i, c := range t.children {
		out[i] = c.seg
	}
	return out
}

// Empty reports whether the tree holds no message at all.
func (t *ErrorTree) Empty() bool {
	if t == nil {
		return true
	}
	if len(t.Messages) > 0 {
		return false
	}
	for _, c := range t.children {
		if !c.tree.Empty() {
			return false
		}
	}
	return true
}

// Map renders the tree as nested maps with []string leaves. Indices
// become decimal keys, and the sentinel segments become SchemaKey and
// UnknownKey. Messages stored on an inner node are kept under SchemaKey.
// Segments rendering to the same key, such as Index(0) and Key("0"),
// are merged.
func (t *ErrorTree) Map() map[string]any {
	out := make(map[string]any, len(t.children))
	for _, c := range t.children {
		key := segmentKey(c.seg)
		if len(c.tree.children) == 0 {
			mergeKey(out, key, c.tree.Messages)
			continue
		}
		mergeKey(out, key, c.tree.Map())
	}
	if len(t.Messages) > 0 {
		mergeKey(out, SchemaKey, t.Messages)
	}
	return out
}

// mergeKey adds v, a []string or a rendered subtree, at key. Messages
// meeting a subtree move under its SchemaKey.
func mergeKey(out map[string]any, key string, v any) {
	prev, ok := out[key]
	if !ok {
		out[key] = v
		return
	}
	switch p := prev.(type) {
	case []string:
		switch n := v.(type) {
		case []string:
			out[key] = append(p[:len(p):len(p)], n...)
		case map[string]any:
			mergeKey(n, SchemaKey, p)
			out[key] = n
		}
	case map[string]any:
		switch n := v.(type) {
		case []string:
			mergeKey(p, SchemaKey, n)
		case map[string]any:
			for k, sub := range n {
				mergeKey(p, k, sub)
			}
		}
	}
}

func (t *ErrorTree) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Map())
}

func segmentKey(seg engine.Segment) string {
	switch seg.Kind {
	case engine.SegmentIndex:
		return strconv.Itoa(seg.Index)
	case engine.SegmentSchema:
		return SchemaKey
	case engine.SegmentUnknown:
		return UnknownKey
	}
	return seg.Key
}

///////////////////////////////////////////////////////////////////////////////
// Translation
///////////////////////////////////////////////////////////////////////////////

// translate builds the load failure for issues raised against input.
func translate(issues []engine.Issue, input any) *BridgeValidationError {
	return &BridgeValidationError{
		Messages:  NewErrorTree(issues),
		Data:      input,
		ValidData: validData(input, shadowPaths(issues)),
		Issues:    issues,
	}
}

// translateBatch is translate for a batch input whose issue paths start
// with the item index.
func translateBatch(issues []engine.Issue, items []any, input any) *BridgeValidationError {
	shadows := shadowPaths(issues)
	valid := make([]any, len(items))
	for i, item := range items {
		prefix := engine.Path{engine.Index(i)}
		var own []engine.Path
		for _, p := range shadows {
			if p.HasPrefix(prefix) {
				own = append(own, p[1:])
			}
		}
		valid[i] = validData(item, own)
	}
	return &BridgeValidationError{
		Messages:  NewErrorTree(issues),
		Data:      input,
		ValidData: valid,
		Issues:    issues,
	}
}

// shadowPaths returns the data locations the issues invalidate. Whole
// record errors shadow nothing; an unknown-key error shadows its key.
func shadowPaths(issues []engine.Issue) []engine.Path {
	var out []engine.Path
	for _, is := range issues {
		var p engine.Path
		whole := false
		for _, seg := range is.Path {
			if seg.Kind == engine.SegmentSchema {
				whole = true
				break
			}
			if seg.Kind != engine.SegmentUnknown {
				p = append(p, seg)
			}
		}
		if !whole {
			out = append(out, p)
		}
	}
	return out
}

// validData copies every part of input that no shadow path covers.
// Untouched subtrees are shared with input. A list with shadowed
// elements becomes a map[int]any of the surviving positions so indices
// keep matching the error tree, and containers emptied by shadowing
// are dropped. Such a map encodes as a JSON object, not an array.
func validData(input any, shadows []engine.Path) any {
	if !isRecord(input) {
		return nil
	}
	out, ok := validSubtree(input, shadows)
	if !ok {
		return map[string]any{}
	}
	return out
}

func isRecord(v any) bool {
	if _, ok := v.(map[string]any); ok {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String
}

func validSubtree(input any, shadows []engine.Path) (any, bool) {
	if len(shadows) == 0 {
		return input, true
	}
	for _, p := range shadows {
		if len(p) == 0 {
			return nil, false
		}
	}

	switch in := input.(type) {
	case map[string]any:
		out := make(map[string]any, len(in))
		for k, v := range in {
			if sub, ok := validSubtree(v, below(shadows, engine.Key(k))); ok {
				out[k] = sub
			}
		}
		return out, len(out) > 0
	case []any:
		out := make(map[int]any, len(in))
		for i, v := range in {
			if sub, ok := validSubtree(v, below(shadows, engine.Index(i))); ok {
				out[i] = sub
			}
		}
		return out, len(out) > 0
	}

	rv := reflect.ValueOf(input)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			return validSubtree(plainMap(rv), shadows)
		}
	case reflect.Slice, reflect.Array:
		return validSubtree(plainList(rv), shadows)
	}
	// a shadow path running past a scalar still covers it
	return nil, false
}

// below returns the shadows that continue under seg, with seg removed.
func below(shadows []engine.Path, seg engine.Segment) []engine.Path {
	var out []engine.Path
	for _, p := range shadows {
		if p[0] == seg {
			out = append(out, p[1:])
		}
	}
	return out
}

func plainMap(rv reflect.Value) map[string]any {
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out
}

func plainList(rv reflect.Value) []any {
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

///////////////////////////////////////////////////////////////////////////////
// Custom messages
///////////////////////////////////////////////////////////////////////////////

// DefaultMessage is the ErrorMessages code that replaces every engine
// message of a field without a more specific entry.
const DefaultMessage = "default"

// customize replaces engine messages with the class's configured
// messages. Issues raised by hooks and validators are left alone.
func (c *SchemaClass) customize(issues []engine.Issue) []engine.Issue {
	if len(c.messages) == 0 {
		return issues
	}
	for i, is := range issues {
		if len(is.Path) == 0 || is.Path[0].Kind != engine.SegmentKey {
			continue
		}
		f, ok := c.byLoadKey[is.Path[0].Key]
		if !ok {
			continue
		}
		msgs := c.messages[f.Name]
		if msg, ok := msgs[is.Code]; ok {
			issues[i].Message = msg
		} else if msg, ok := msgs[DefaultMessage]; ok {
			issues[i].Message = msg
		}
	}
	return issues
}
