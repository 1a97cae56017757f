// Package httpbind loads schema records from HTTP requests. Each model
// field is read from the location named by its `in` struct tag:
//
//	type GetOrder struct {
//		ID    int    `json:"id" in:"path"`
//		Token string `json:"token" in:"header:X-Token"`
//		Limit int    `json:"limit" in:"query" model:"default:'10'"`
//		Note  string `json:"note"`
//	}
//
// Untagged fields come from the body, which is decoded as JSON or, for
// form posts, from the posted form. Path parameters are chi URL params.
package httpbind

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"

	bridge "github.com/SimonDaKappa/go-pave-bridge"
	"github.com/SimonDaKappa/go-pave-bridge/internal/logging"
)

const (
	TagName = "in"

	LocationBody   = "body"
	LocationQuery  = "query"
	LocationPath   = "path"
	LocationHeader = "header"
	LocationCookie = "cookie"
	LocationForm   = "form"

	// DefaultMaxBody limits how much of a request body is read.
	DefaultMaxBody = 1 << 20
)

var (
	ErrBadRequest = errors.New("bad request")
	ErrLocation   = errors.New("invalid field location")
)

// Location says where one field is read from.
type Location struct {
	In string
	// Key is the name in that location, defaulting to the field's load
	// key.
	Key string
	// Multi collects every value of a repeated query, form or header key.
	Multi bool
}

type binding struct {
	loadKey string
	loc     Location
}

type BinderOpts struct {
	// MaxBody caps the body size. Zero means DefaultMaxBody.
	MaxBody int64
	Logger  *slog.Logger
}

// Binder assembles load input from requests. Field locations are
// resolved once per schema class.
type Binder struct {
	maxBody int64
	logger  *slog.Logger

	locations sync.Map // *bridge.SchemaClass -> []binding
}

// NewBinder returns a binder, filling unset options with defaults.
func NewBinder(opts BinderOpts) *Binder {
	if opts.MaxBody <= 0 {
		opts.MaxBody = DefaultMaxBody
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Binder{maxBody: opts.MaxBody, logger: opts.Logger}
}

// DefaultBinder is used by the package-level Bind.
var DefaultBinder = NewBinder(BinderOpts{})

// Bind loads a record for s from r with DefaultBinder.
func Bind(r *http.Request, s *bridge.Schema, opts ...bridge.LoadOption) (any, error) {
	return DefaultBinder.Bind(r, s, opts...)
}

// BindTyped is Bind for a typed schema.
func BindTyped[M any](b *Binder, r *http.Request, ts *bridge.TypedSchema[M], opts ...bridge.LoadOption) (*M, error) {
	in, err := b.Input(r, ts.Schema())
	if err != nil {
		return nil, err
	}
	return ts.Load(in, opts...)
}

// Bind collects the input for s from r and loads it. Input problems
// wrap ErrBadRequest; validation failures are *bridge.BridgeValidationError.
func (b *Binder) Bind(r *http.Request, s *bridge.Schema, opts ...bridge.LoadOption) (any, error) {
	in, err := b.Input(r, s)
	if err != nil {
		return nil, err
	}
	return s.Load(in, opts...)
}

// Input returns the raw load input for s without loading it. Batch
// schemas take the body as is.
func (b *Binder) Input(r *http.Request, s *bridge.Schema) (any, error) {
	bindings, err := b.bindings(s.Class())
	if err != nil {
		return nil, err
	}

	req := &requestData{request: r, maxBody: b.maxBody}
	if s.Many() {
		return req.bodyValue()
	}

	in := make(map[string]any)
	body, err := req.bodyObject()
	if err != nil {
		return nil, err
	}
	for k, v := range body {
		in[k] = v
	}

	for _, bd := range bindings {
		if bd.loc.In == LocationBody {
			continue
		}
		// Keys bound elsewhere are never taken from the body.
		delete(in, bd.loadKey)
		v, ok, err := req.value(bd.loc)
		if err != nil {
			return nil, err
		}
		if ok {
			in[bd.loadKey] = v
		}
	}
	b.logger.Debug("request bound", "schema", s.Class().Name(), "method", r.Method, "path", r.URL.Path, "keys", len(in))
	return in, nil
}

func (b *Binder) bindings(c *bridge.SchemaClass) ([]binding, error) {
	if cached, ok := b.locations.Load(c); ok {
		return cached.([]binding), nil
	}
	out, err := resolve(c)
	if err != nil {
		return nil, err
	}
	actual, _ := b.locations.LoadOrStore(c, out)
	return actual.([]binding), nil
}

func resolve(c *bridge.SchemaClass) ([]binding, error) {
	m := c.Model()
	var out []binding
	for _, f := range c.Fields() {
		if !f.Loadable() {
			continue
		}
		d, ok := m.Field(f.Name)
		if !ok || d.Index == nil {
			continue
		}
		tag := c.Type().FieldByIndex(d.Index).Tag.Get(TagName)
		loc, err := ParseLocation(tag)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q of %s: %w", ErrLocation, f.Name, c.Name(), err)
		}
		if loc.Key == "" {
			loc.Key = f.LoadKey
		}
		if f.Kind == bridge.List || f.Kind == bridge.Tuple {
			loc.Multi = true
		}
		out = append(out, binding{loadKey: f.LoadKey, loc: loc})
	}
	return out, nil
}

// ParseLocation reads an `in` tag of the form "where[:key]". An empty
// tag means the body.
func ParseLocation(tag string) (Location, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return Location{In: LocationBody}, nil
	}
	where, key, _ := strings.Cut(tag, ":")
	where = strings.ToLower(strings.TrimSpace(where))
	switch where {
	case LocationBody, LocationQuery, LocationPath, LocationHeader, LocationCookie, LocationForm:
	default:
		return Location{}, fmt.Errorf("unknown location %q", where)
	}
	return Location{In: where, Key: strings.TrimSpace(key)}, nil
}

///////////////////////////////////////////////////////////////////////////////
// Request data
///////////////////////////////////////////////////////////////////////////////

// requestData reads each part of a request at most once.
type requestData struct {
	request *http.Request
	maxBody int64

	body     gjson.Result
	bodyOnce sync.Once
	bodyErr  error

	formOnce sync.Once
	formErr  error

	cookies     map[string]*http.Cookie
	cookiesOnce sync.Once
}

func (d *requestData) isForm() bool {
	ct := d.request.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	media, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return media == "application/x-www-form-urlencoded" || media == "multipart/form-data"
}

func (d *requestData) parseForm() error {
	d.formOnce.Do(func() {
		r := d.request
		if r.Body != nil {
			r.Body = http.MaxBytesReader(nil, r.Body, d.maxBody)
		}
		if d.isForm() && strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			d.formErr = r.ParseMultipartForm(d.maxBody)
		} else {
			d.formErr = r.ParseForm()
		}
		if d.formErr != nil {
			d.formErr = fmt.Errorf("%w: cannot parse form: %w", ErrBadRequest, d.formErr)
		}
	})
	return d.formErr
}

func (d *requestData) jsonBody() (gjson.Result, error) {
	d.bodyOnce.Do(func() {
		r := d.request
		if r.Body == nil || r.Body == http.NoBody {
			d.body = gjson.Parse("{}")
			return
		}
		raw, err := io.ReadAll(io.LimitReader(r.Body, d.maxBody+1))
		if err != nil {
			d.bodyErr = fmt.Errorf("%w: cannot read body: %w", ErrBadRequest, err)
			return
		}
		if int64(len(raw)) > d.maxBody {
			d.bodyErr = fmt.Errorf("%w: body exceeds %d bytes", ErrBadRequest, d.maxBody)
			return
		}
		if len(strings.TrimSpace(string(raw))) == 0 {
			d.body = gjson.Parse("{}")
			return
		}
		if !gjson.ValidBytes(raw) {
			d.bodyErr = fmt.Errorf("%w: %w", ErrBadRequest, bridge.ErrInvalidJSON)
			return
		}
		d.body = gjson.ParseBytes(raw)
	})
	return d.body, d.bodyErr
}

// bodyValue returns the whole body as plain data.
func (d *requestData) bodyValue() (any, error) {
	if d.isForm() {
		if err := d.parseForm(); err != nil {
			return nil, err
		}
		return formMap(d.request.PostForm), nil
	}
	body, err := d.jsonBody()
	if err != nil {
		return nil, err
	}
	return bridge.PlainJSON(body), nil
}

// bodyObject returns the body as a record. A non-object JSON body is
// a bad request.
func (d *requestData) bodyObject() (map[string]any, error) {
	v, err := d.bodyValue()
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: body must be a JSON object", ErrBadRequest)
	}
	return m, nil
}

func (d *requestData) value(loc Location) (any, bool, error) {
	r := d.request
	switch loc.In {
	case LocationQuery:
		return values(r.URL.Query()[loc.Key], loc.Multi)
	case LocationForm:
		if err := d.parseForm(); err != nil {
			return nil, false, err
		}
		return values(r.PostForm[loc.Key], loc.Multi)
	case LocationHeader:
		return values(r.Header.Values(loc.Key), loc.Multi)
	case LocationCookie:
		d.cookiesOnce.Do(func() {
			d.cookies = make(map[string]*http.Cookie)
			for _, c := range r.Cookies() {
				d.cookies[c.Name] = c
			}
		})
		c, ok := d.cookies[loc.Key]
		if !ok {
			return nil, false, nil
		}
		return c.Value, true, nil
	case LocationPath:
		rctx := chi.RouteContext(r.Context())
		if rctx == nil {
			return nil, false, nil
		}
		for i, k := range rctx.URLParams.Keys {
			if k == loc.Key {
				return rctx.URLParams.Values[i], true, nil
			}
		}
		return nil, false, nil
	}
	return nil, false, fmt.Errorf("%w: %q", ErrLocation, loc.In)
}

func values(vs []string, multi bool) (any, bool, error) {
	if len(vs) == 0 {
		return nil, false, nil
	}
	if !multi {
		return vs[0], true, nil
	}
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out, true, nil
}

// formMap flattens posted values, keeping repeated keys as lists.
func formMap(form map[string][]string) map[string]any {
	out := make(map[string]any, len(form))
	for k, vs := range form {
		if len(vs) == 1 {
			out[k] = vs[0]
			continue
		}
		list := make([]any, len(vs))
		for i, v := range vs {
			list[i] = v
		}
		out[k] = list
	}
	return out
}

///////////////////////////////////////////////////////////////////////////////
// Responses
///////////////////////////////////////////////////////////////////////////////

// ErrorBody is the JSON document WriteError sends.
type ErrorBody struct {
	Error  string         `json:"error"`
	Errors map[string]any `json:"errors,omitempty"`
}

// StatusOf maps a bind or load error to an HTTP status.
func StatusOf(err error) int {
	var bve *bridge.BridgeValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &bve):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrBadRequest), errors.Is(err, bridge.ErrInvalidJSON):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as a JSON error document. Validation failures
// carry the nested error messages.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	body := ErrorBody{Error: http.StatusText(status)}
	var bve *bridge.BridgeValidationError
	if errors.As(err, &bve) {
		body.Errors = bve.MessagesMap()
	} else if status == http.StatusBadRequest {
		body.Error = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Handler binds every request to s and hands the loaded record to next.
// Failures are answered with WriteError.
func (b *Binder) Handler(s *bridge.Schema, next func(w http.ResponseWriter, r *http.Request, record any)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, err := b.Bind(r, s)
		if err != nil {
			b.logger.Info("request rejected", "schema", s.Class().Name(), "status", StatusOf(err), "error", err)
			WriteError(w, err)
			return
		}
		next(w, r, record)
	}
}
