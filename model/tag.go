package model

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

var (
	ErrInvalidTag       = errors.New("invalid model tag")
	ErrUnknownSubTag    = errors.New("unknown model subtag")
	ErrSubTagNotFound   = errors.New("subtag not found")
	ErrUnterminatedTag  = errors.New("unterminated subtag value")
	ErrConflictingFlags = errors.New("conflicting model tag flags")
)

// The model tag carries everything the extractor needs beyond the Go
// type of a field. It follows the same quoted subtag grammar used for
// parse tags:
//
// tag:
//     model:"[<subtag>]^*"        // space separated
// subtag:
//     <key>:'<value>' | <key>:<value> | <flag>
// key:
//     default | alias | load | dump | format | pattern | choices | literal
//     | ref | discriminator | description | min | max | gt | lt
//     | multipleOf | minLength | maxLength
// flag:
//     required | optional
//
// A quoted value may contain spaces and colons. A single quote inside a
// quoted value is written as \'.
//
// Example:
//
//	Age   int    `json:"age" model:"default:'18' min:'0' max:'150'"`
//	Email string `json:"email" model:"format:'email' alias:'emailAddress'"`
const (
	TagName = "model"

	SubTagDefault       = "default"
	SubTagAlias         = "alias"
	SubTagLoad          = "load"
	SubTagDump          = "dump"
	SubTagFormat        = "format"
	SubTagPattern       = "pattern"
	SubTagChoices       = "choices"
	SubTagLiteral       = "literal"
	SubTagRef           = "ref"
	SubTagDiscriminator = "discriminator"
	SubTagDescription   = "description"
	SubTagMin           = "min"
	SubTagMax           = "max"
	SubTagGt            = "gt"
	SubTagLt            = "lt"
	SubTagMultipleOf    = "multipleOf"
	SubTagMinLength     = "minLength"
	SubTagMaxLength     = "maxLength"

	FlagRequired = "required"
	FlagOptional = "optional"

	SubTagScopeDelimiter = byte('\'')
	KeyValueDelimiter    = byte(':')
	ListDelimiter        = "|"
)

// Formats accepted by the format subtag.
const (
	FormatEmail = "email"
	FormatURL   = "url"
	FormatIP    = "ip"
	FormatDate  = "date"
	FormatTime  = "time"
)

var knownSubTags = map[string]bool{
	SubTagDefault: true, SubTagAlias: true, SubTagLoad: true, SubTagDump: true,
	SubTagFormat: true, SubTagPattern: true, SubTagChoices: true, SubTagLiteral: true,
	SubTagRef: true, SubTagDiscriminator: true, SubTagDescription: true,
	SubTagMin: true, SubTagMax: true, SubTagGt: true, SubTagLt: true,
	SubTagMultipleOf: true, SubTagMinLength: true, SubTagMaxLength: true,
}

// SubTag is one decoded element of a model tag. Flags have no value.
type SubTag struct {
	Key   string
	Value string
	Flag  bool
}

// ScanTag splits a model tag into its subtags, in the order written.
func ScanTag(tag string) ([]SubTag, error) {
	var out []SubTag
	i := 0
	for i < len(tag) {
		for i < len(tag) && (tag[i] == ' ' || tag[i] == '\t') {
			i++
		}
		if i >= len(tag) {
			break
		}

		start := i
		for i < len(tag) && tag[i] != KeyValueDelimiter && tag[i] != ' ' && tag[i] != '\t' {
			i++
		}
		key := tag[start:i]
		if key == "" {
			return nil, fmt.Errorf("%w: empty key at offset %d in %q", ErrInvalidTag, start, tag)
		}

		// Bare flag
		if i >= len(tag) || tag[i] != KeyValueDelimiter {
			out = append(out, SubTag{Key: key, Flag: true})
			continue
		}
		i++ // skip ':'

		if i < len(tag) && tag[i] == SubTagScopeDelimiter {
			value, next, err := scanQuoted(tag, i+1)
			if err != nil {
				return nil, fmt.Errorf("%w for %q", err, key)
			}
			out = append(out, SubTag{Key: key, Value: value})
			i = next
			continue
		}

		vstart := i
		for i < len(tag) && tag[i] != ' ' && tag[i] != '\t' {
			i++
		}
		out = append(out, SubTag{Key: key, Value: tag[vstart:i]})
	}
	return out, nil
}

// scanQuoted reads a delimited value starting just after the opening
// delimiter and returns the unescaped value and the offset after the
// closing delimiter.
func scanQuoted(tag string, start int) (string, int, error) {
	var builder strings.Builder
	escaped := false
	for j := start; j < len(tag); j++ {
		c := tag[j]
		if escaped {
			if c != SubTagScopeDelimiter {
				builder.WriteByte('\\')
			}
			builder.WriteByte(c)
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = true
		case SubTagScopeDelimiter:
			return builder.String(), j + 1, nil
		default:
			builder.WriteByte(c)
		}
	}
	return "", len(tag), ErrUnterminatedTag
}

// LookupSubTag returns the value of the first subtag named key.
func LookupSubTag(tag string, key string) (string, error) {
	subs, err := ScanTag(tag)
	if err != nil {
		return "", err
	}
	for _, s := range subs {
		if s.Key == key && !s.Flag {
			return s.Value, nil
		}
	}
	return "", ErrSubTagNotFound
}

// fieldTag is the decoded form of a model tag for one struct field.
type fieldTag struct {
	defaultText   string
	hasDefault    bool
	alias         string
	load          string
	dump          string
	format        string
	ref           string
	discriminator string
	description   string
	literal       []string
	choices       []string
	constraints   Constraints
	required      bool
	optional      bool
}

func decodeFieldTag(field reflect.StructField) (fieldTag, error) {
	var ft fieldTag

	tag, ok := field.Tag.Lookup(TagName)
	if !ok {
		return ft, nil
	}

	subs, err := ScanTag(tag)
	if err != nil {
		return ft, err
	}

	for _, s := range subs {
		if s.Flag {
			switch s.Key {
			case FlagRequired:
				ft.required = true
			case FlagOptional:
				ft.optional = true
			default:
				return ft, fmt.Errorf("%w: %s", ErrUnknownSubTag, s.Key)
			}
			continue
		}

		if !knownSubTags[s.Key] {
			return ft, fmt.Errorf("%w: %s", ErrUnknownSubTag, s.Key)
		}

		switch s.Key {
		case SubTagDefault:
			ft.defaultText, ft.hasDefault = s.Value, true
		case SubTagAlias:
			ft.alias = s.Value
		case SubTagLoad:
			ft.load = s.Value
		case SubTagDump:
			ft.dump = s.Value
		case SubTagFormat:
			switch s.Value {
			case FormatEmail, FormatURL, FormatIP, FormatDate, FormatTime:
				ft.format = s.Value
			default:
				return ft, fmt.Errorf("%w: unsupported format %q", ErrInvalidTag, s.Value)
			}
		case SubTagRef:
			ft.ref = s.Value
		case SubTagDiscriminator:
			ft.discriminator = s.Value
		case SubTagDescription:
			ft.description = s.Value
		case SubTagLiteral:
			ft.literal = splitList(s.Value)
		case SubTagChoices:
			ft.choices = splitList(s.Value)
		case SubTagPattern:
			ft.constraints.Pattern = s.Value
		case SubTagMinLength, SubTagMaxLength:
			n, err := strconv.Atoi(s.Value)
			if err != nil || n < 0 {
				return ft, fmt.Errorf("%w: %s must be a non-negative integer, got %q", ErrInvalidTag, s.Key, s.Value)
			}
			if s.Key == SubTagMinLength {
				ft.constraints.MinLength = &n
			} else {
				ft.constraints.MaxLength = &n
			}
		default:
			f, err := strconv.ParseFloat(s.Value, 64)
			if err != nil {
				return ft, fmt.Errorf("%w: %s must be a number, got %q", ErrInvalidTag, s.Key, s.Value)
			}
			switch s.Key {
			case SubTagMin:
				ft.constraints.Min = &f
			case SubTagMax:
				ft.constraints.Max = &f
			case SubTagGt:
				ft.constraints.ExclusiveMin = &f
			case SubTagLt:
				ft.constraints.ExclusiveMax = &f
			case SubTagMultipleOf:
				if f == 0 {
					return ft, fmt.Errorf("%w: multipleOf cannot be zero", ErrInvalidTag)
				}
				ft.constraints.MultipleOf = &f
			}
		}
	}

	if ft.required && ft.optional {
		return ft, fmt.Errorf("%w: required and optional on %s", ErrConflictingFlags, field.Name)
	}
	if ft.required && ft.hasDefault {
		return ft, fmt.Errorf("%w: required field %s cannot declare a default", ErrConflictingFlags, field.Name)
	}
	if ft.alias != "" && (ft.load != "" || ft.dump != "") {
		return ft, fmt.Errorf("%w: alias cannot be combined with load or dump on %s", ErrConflictingFlags, field.Name)
	}

	return ft, nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ListDelimiter)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// jsonName returns the wire name from a json struct tag, and whether
// the field is skipped entirely.
func jsonName(field reflect.StructField) (name string, skip bool) {
	tag, ok := field.Tag.Lookup("json")
	if !ok {
		return "", false
	}
	if tag == "-" {
		return "", true
	}
	name, _, _ = strings.Cut(tag, ",")
	return name, false
}
