package engine

import (
	"strconv"
	"strings"
)

// SegmentKind distinguishes the parts of an error location.
type SegmentKind int

const (
	SegmentKey SegmentKind = iota
	SegmentIndex
	// SegmentSchema locates errors about the whole record.
	SegmentSchema
	// SegmentUnknown locates errors about input keys with no field.
	SegmentUnknown
)

// Segment is one step of a Path. The two sentinel kinds carry no key
// and can never equal a key segment, whatever the key's text.
type Segment struct {
	Kind  SegmentKind
	Key   string
	Index int
}

// Key is a mapping key segment.
func Key(name string) Segment { return Segment{Kind: SegmentKey, Key: name} }

// Index is a list position segment.
func Index(i int) Segment { return Segment{Kind: SegmentIndex, Index: i} }

// SchemaSegment is the reserved location of whole-record errors.
func SchemaSegment() Segment { return Segment{Kind: SegmentSchema} }

// UnknownSegment is the reserved location of unknown-key errors.
func UnknownSegment() Segment { return Segment{Kind: SegmentUnknown} }

func (s Segment) IsSentinel() bool {
	return s.Kind == SegmentSchema || s.Kind == SegmentUnknown
}

func (s Segment) String() string {
	switch s.Kind {
	case SegmentIndex:
		return strconv.Itoa(s.Index)
	case SegmentSchema:
		return "<schema>"
	case SegmentUnknown:
		return "<unknown>"
	default:
		return s.Key
	}
}

// Path locates a value inside nested data.
type Path []Segment

// Append returns a new path; p is never modified.
func (p Path) Append(segs ...Segment) Path {
	out := make(Path, 0, len(p)+len(segs))
	out = append(out, p...)
	return append(out, segs...)
}

// Prepend returns a new path with segs in front of p.
func (p Path) Prepend(segs ...Segment) Path {
	out := make(Path, 0, len(p)+len(segs))
	out = append(out, segs...)
	return append(out, p...)
}

// HasPrefix reports whether prefix is a leading part of p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i, s := range prefix {
		if p[i] != s {
			return false
		}
	}
	return true
}

func (p Path) Equal(o Path) bool {
	return len(p) == len(o) && p.HasPrefix(o)
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return strings.Join(parts, ".")
}
