package strict

import (
	"encoding/json"
	"math"
	"math/big"
	"net"
	"net/mail"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SimonDaKappa/go-pave-bridge/engine"
	"github.com/SimonDaKappa/go-pave-bridge/model"
)

///////////////////////////////////////////////////////////////////////////////
// Scalar coercion
///////////////////////////////////////////////////////////////////////////////

// problem is a single coercion failure, turned into an engine.Issue by
// the caller once the location is known.
type problem struct {
	code string
	msg  string
}

func typeProblem(msg string) *problem {
	return &problem{code: engine.CodeType, msg: msg}
}

// Accepted text layouts, most specific first.
var (
	dateTimeFormats = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04",
		"2006-01-02",
	}
	dateFormats = []string{"2006-01-02"}
	timeFormats = []string{"15:04:05.999999999", "15:04:05", "15:04"}
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05.999999999"
)

func asString(raw any) (string, *problem) {
	if s, ok := raw.(string); ok {
		return s, nil
	}
	if rv := reflect.ValueOf(raw); rv.Kind() == reflect.String {
		return rv.String(), nil
	}
	return "", typeProblem("Input should be a valid string")
}

// asInt accepts integers, whole floats and integer text.
func asInt(raw any) (int64, *problem) {
	switch x := raw.(type) {
	case bool:
		return 0, typeProblem("Input should be a valid integer")
	case float64:
		return floatToInt(x)
	case float32:
		return floatToInt(float64(x))
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		f, err := x.Float64()
		if err != nil {
			return 0, &problem{engine.CodeParsing, "Input should be a valid integer, unable to parse string as an integer"}
		}
		return floatToInt(f)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
				return 0, &problem{engine.CodeIntOverflow, "Input should be a valid integer, value out of range"}
			}
			return 0, &problem{engine.CodeParsing, "Input should be a valid integer, unable to parse string as an integer"}
		}
		return n, nil
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.Uint() > math.MaxInt64 {
			return 0, &problem{engine.CodeIntOverflow, "Input should be a valid integer, value out of range"}
		}
		return int64(rv.Uint()), nil
	case reflect.String:
		return asInt(rv.String())
	}
	return 0, typeProblem("Input should be a valid integer")
}

func floatToInt(f float64) (int64, *problem) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, &problem{engine.CodeType, "Input should be a valid integer, got a number with a fractional part"}
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, &problem{engine.CodeIntOverflow, "Input should be a valid integer, value out of range"}
	}
	return int64(f), nil
}

func asUint(raw any) (uint64, *problem) {
	if s, ok := raw.(string); ok {
		if n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64); err == nil {
			return n, nil
		}
	}
	if rv := reflect.ValueOf(raw); rv.Kind() >= reflect.Uint && rv.Kind() <= reflect.Uint64 {
		return rv.Uint(), nil
	}
	n, p := asInt(raw)
	if p != nil {
		return 0, p
	}
	if n < 0 {
		return 0, &problem{engine.CodeGreaterEqual, "Input should be greater than or equal to 0"}
	}
	return uint64(n), nil
}

func asFloat(raw any) (float64, *problem) {
	switch x := raw.(type) {
	case bool:
		return 0, typeProblem("Input should be a valid number")
	case float64:
		return x, nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, &problem{engine.CodeParsing, "Input should be a valid number, unable to parse string as a number"}
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, &problem{engine.CodeParsing, "Input should be a valid number, unable to parse string as a number"}
		}
		return f, nil
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.String:
		return asFloat(rv.String())
	}
	return 0, typeProblem("Input should be a valid number")
}

// asBool accepts booleans, 0 and 1, and the usual boolean words:
// "true", "1", "yes", "on", "t", "y" and their negatives, in any case.
func asBool(raw any) (bool, *problem) {
	switch x := raw.(type) {
	case bool:
		return x, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1", "yes", "on", "t", "y":
			return true, nil
		case "false", "0", "no", "off", "f", "n":
			return false, nil
		}
		return false, &problem{engine.CodeParsing, "Input should be a valid boolean, unable to interpret input"}
	case json.Number:
		return asBool(string(x))
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		f, _ := asFloat(raw)
		switch f {
		case 1:
			return true, nil
		case 0:
			return false, nil
		}
		return false, &problem{engine.CodeParsing, "Input should be a valid boolean, unable to interpret input"}
	}
	return false, typeProblem("Input should be a valid boolean")
}

func asDecimal(raw any) (json.Number, *problem) {
	var text string
	switch x := raw.(type) {
	case json.Number:
		text = string(x)
	case string:
		text = strings.TrimSpace(x)
	case bool:
		return "", typeProblem("Decimal input should be an integer, float, string or Decimal object")
	default:
		rv := reflect.ValueOf(raw)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return json.Number(strconv.FormatInt(rv.Int(), 10)), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return json.Number(strconv.FormatUint(rv.Uint(), 10)), nil
		case reflect.Float32, reflect.Float64:
			f := rv.Float()
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return "", &problem{engine.CodeDecimal, "Input should be a finite number"}
			}
			return json.Number(strconv.FormatFloat(f, 'f', -1, 64)), nil
		case reflect.String:
			text = strings.TrimSpace(rv.String())
		default:
			return "", typeProblem("Decimal input should be an integer, float, string or Decimal object")
		}
	}
	if _, ok := new(big.Float).SetString(text); !ok {
		return "", &problem{engine.CodeDecimal, "Input should be a valid decimal"}
	}
	return json.Number(text), nil
}

func asTime(raw any, kind model.Kind) (time.Time, *problem) {
	formats, what := dateTimeFormats, "datetime"
	switch kind {
	case model.KindDate:
		formats, what = dateFormats, "date"
	case model.KindTime:
		formats, what = timeFormats, "time"
	}

	switch x := raw.(type) {
	case time.Time:
		if kind == model.KindDate {
			return time.Date(x.Year(), x.Month(), x.Day(), 0, 0, 0, 0, x.Location()), nil
		}
		return x, nil
	case string:
		text := strings.TrimSpace(x)
		for _, format := range formats {
			if t, err := time.Parse(format, text); err == nil {
				return t, nil
			}
		}
		return time.Time{}, &problem{engine.CodeDateTime, "Input should be a valid " + what}
	}

	if kind == model.KindDateTime {
		if f, p := asFloat(raw); p == nil {
			sec, frac := math.Modf(f)
			return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
		}
	}
	return time.Time{}, typeProblem("Input should be a valid " + what)
}

// asDuration accepts Go duration text or a number of seconds.
func asDuration(raw any) (time.Duration, *problem) {
	switch x := raw.(type) {
	case time.Duration:
		return x, nil
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(x))
		if err != nil {
			return 0, &problem{engine.CodeDuration, "Input should be a valid duration"}
		}
		return d, nil
	}
	f, p := asFloat(raw)
	if p != nil {
		return 0, typeProblem("Input should be a valid duration")
	}
	return time.Duration(f * float64(time.Second)), nil
}

func asUUID(raw any) (uuid.UUID, *problem) {
	switch x := raw.(type) {
	case uuid.UUID:
		return x, nil
	case [16]byte:
		return uuid.UUID(x), nil
	case []byte:
		u, err := uuid.FromBytes(x)
		if err != nil {
			return uuid.Nil, &problem{engine.CodeUUID, "Input should be a valid UUID"}
		}
		return u, nil
	}
	s, p := asString(raw)
	if p != nil {
		return uuid.Nil, typeProblem("UUID input should be a string, bytes or UUID object")
	}
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, &problem{engine.CodeUUID, "Input should be a valid UUID, " + err.Error()}
	}
	return u, nil
}

func asEmail(raw any) (string, *problem) {
	s, p := asString(raw)
	if p != nil {
		return "", p
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || !strings.Contains(s[strings.LastIndex(s, "@")+1:], ".") {
		return "", &problem{engine.CodeEmail, "value is not a valid email address"}
	}
	return s, nil
}

func asURL(raw any) (*url.URL, string, *problem) {
	if u, ok := raw.(*url.URL); ok && u != nil {
		return u, u.String(), nil
	}
	if u, ok := raw.(url.URL); ok {
		return &u, u.String(), nil
	}
	s, p := asString(raw)
	if p != nil {
		return nil, "", typeProblem("URL input should be a string or URL")
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, "", &problem{engine.CodeURL, "Input should be a valid URL"}
	}
	return u, s, nil
}

func asIP(raw any) (net.IP, string, *problem) {
	if ip, ok := raw.(net.IP); ok {
		return ip, ip.String(), nil
	}
	s, p := asString(raw)
	if p != nil {
		return nil, "", typeProblem("value is not a valid IPv4 or IPv6 address")
	}
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return nil, "", &problem{engine.CodeIP, "value is not a valid IPv4 or IPv6 address"}
	}
	return ip, s, nil
}

func asBytes(raw any) ([]byte, *problem) {
	switch x := raw.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	}
	return nil, typeProblem("Input should be a valid bytes")
}

// asMap accepts any map keyed by strings.
func asMap(raw any) (map[string]any, bool) {
	if m, ok := raw.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// asList accepts any slice or array except strings and byte slices.
func asList(raw any) ([]any, bool) {
	if l, ok := raw.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(raw)
	if (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// pointerTo converts v, built for the base type, into a value of the
// declared slot type t, allocating one pointer per level.
func pointerTo(v reflect.Value, t reflect.Type) reflect.Value {
	if t.Kind() != reflect.Ptr {
		if v.Type() != t && v.Type().ConvertibleTo(t) {
			return v.Convert(t)
		}
		return v
	}
	p := reflect.New(t.Elem())
	p.Elem().Set(pointerTo(v, t.Elem()))
	return p
}

func underlyingKind(t reflect.Type) model.Kind {
	switch t.Kind() {
	case reflect.String:
		return model.KindString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return model.KindInt
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return model.KindUint
	case reflect.Float32, reflect.Float64:
		return model.KindFloat
	case reflect.Bool:
		return model.KindBool
	}
	return model.KindAny
}

// plainScalar returns the plain form of a scalar of any named type.
func plainScalar(v reflect.Value) any {
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if u := v.Uint(); u <= math.MaxInt {
			return int(u)
		}
		return v.Uint()
	case reflect.Float32, reflect.Float64:
		return v.Float()
	case reflect.Bool:
		return v.Bool()
	}
	return v.Interface()
}

// expected renders allowed values the way choice errors list them:
// 'a', 'b' or 'c'.
func expected(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		if rv := reflect.ValueOf(v); rv.IsValid() {
			v = plainScalar(rv)
		}
		switch x := v.(type) {
		case string:
			parts[i] = "'" + x + "'"
		default:
			parts[i] = formatAny(x)
		}
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " or " + parts[len(parts)-1]
}

func formatAny(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return "None"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "?"
	}
	return string(b)
}
