package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// Loads decodes JSON text and loads the result. Numbers keep their
// text as json.Number so the engine sees exactly what was sent.
func (s *Schema) Loads(text []byte, opts ...LoadOption) (any, error) {
	data, err := DecodeJSON(text)
	if err != nil {
		return nil, err
	}
	return s.Load(data, opts...)
}

// Dumps dumps record and encodes the result as compact JSON.
func (s *Schema) Dumps(record any, opts ...DumpOption) ([]byte, error) {
	out, err := s.Dump(record, opts...)
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// DumpsIndent is Dumps with indented output.
func (s *Schema) DumpsIndent(record any, opts ...DumpOption) ([]byte, error) {
	b, err := s.Dumps(record, opts...)
	if err != nil {
		return nil, err
	}
	return pretty.Pretty(b), nil
}

// DecodeJSON parses text into plain data: map[string]any, []any,
// string, bool, nil and json.Number.
func DecodeJSON(text []byte) (any, error) {
	if !gjson.ValidBytes(text) {
		return nil, fmt.Errorf("%w: %.40q", ErrInvalidJSON, text)
	}
	return plainJSON(gjson.ParseBytes(text)), nil
}

// PlainJSON converts a parsed gjson value into plain data.
func PlainJSON(r gjson.Result) any {
	return plainJSON(r)
}

func plainJSON(r gjson.Result) any {
	switch r.Type {
	case gjson.Null:
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		return json.Number(r.Raw)
	case gjson.String:
		return r.Str
	}
	if r.IsArray() {
		out := make([]any, 0)
		r.ForEach(func(_, v gjson.Result) bool {
			out = append(out, plainJSON(v))
			return true
		})
		return out
	}
	if r.IsObject() {
		out := make(map[string]any)
		r.ForEach(func(k, v gjson.Result) bool {
			out[k.Str] = plainJSON(v)
			return true
		})
		return out
	}
	return nil
}
