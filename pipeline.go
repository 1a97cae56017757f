package bridge

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/SimonDaKappa/go-pave-bridge/engine"
	"github.com/SimonDaKappa/go-pave-bridge/model"
)

var schemaPath = engine.Path{engine.SchemaSegment()}

const (
	msgInvalidInput = "Invalid input type."
	msgUnknownField = "Unknown field."
	msgInvalidValue = "Invalid value."
)

///////////////////////////////////////////////////////////////////////////////
// Call options
///////////////////////////////////////////////////////////////////////////////

type loadCall struct {
	many           bool
	partial        engine.Partial
	unknown        UnknownPolicy
	context        map[string]any
	returnInstance bool
}

// LoadOption adjusts a single load call.
type LoadOption func(*loadCall)

// WithMany overrides the instance batch mode for one load.
func WithMany(many bool) LoadOption {
	return func(c *loadCall) { c.many = many }
}

// WithPartial exempts every field, nested ones included, from the
// required check, or clears the exemption.
func WithPartial(partial bool) LoadOption {
	return func(c *loadCall) {
		if partial {
			c.partial = engine.PartialAll()
		} else {
			c.partial = engine.Partial{}
		}
	}
}

// WithPartialFields exempts the named top-level fields only.
func WithPartialFields(names ...string) LoadOption {
	return func(c *loadCall) { c.partial = engine.PartialFields(names...) }
}

// WithUnknown overrides the unknown-key policy for one load. Zero keeps
// the instance policy.
func WithUnknown(policy UnknownPolicy) LoadOption {
	return func(c *loadCall) {
		if policy != 0 {
			c.unknown = policy
		}
	}
}

// WithContext passes ctx to hooks, validators and the engine.
func WithContext(ctx map[string]any) LoadOption {
	return func(c *loadCall) { c.context = ctx }
}

// ReturnInstance chooses between model instances and attribute-keyed
// maps as load results.
func ReturnInstance(instance bool) LoadOption {
	return func(c *loadCall) { c.returnInstance = instance }
}

func (s *Schema) newLoadCall(opts []LoadOption) (*loadCall, error) {
	c := s.class
	call := &loadCall{
		many:           s.many,
		partial:        s.partial,
		unknown:        s.unknown,
		context:        s.context,
		returnInstance: !c.returnMaps,
	}
	for _, opt := range opts {
		opt(call)
	}
	if call.unknown < Raise || call.unknown > Include {
		return nil, configError(c.name, "invalid unknown policy %d", int(call.unknown))
	}
	if err := c.checkPartial(call.partial); err != nil {
		return nil, err
	}
	if call.unknown == Include && call.returnInstance && !c.model.HasBase() {
		return nil, configError(c.name, "unknown policy include needs an embedded model.Base when returning instances")
	}
	return call, nil
}

///////////////////////////////////////////////////////////////////////////////
// Load
///////////////////////////////////////////////////////////////////////////////

// Load validates data into a record, or a []any of records in batch
// mode. Every problem found is returned in one *BridgeValidationError;
// errors from hooks other than *ValidationError abort the call.
func (s *Schema) Load(data any, opts ...LoadOption) (any, error) {
	start := time.Now()
	call, err := s.newLoadCall(opts)
	if err != nil {
		return nil, err
	}

	var result any
	if call.many {
		result, err = s.loadMany(data, call)
	} else {
		result, err = s.loadOne(data, call)
	}
	if err = s.finishLoad(data, call.many, err, time.Since(start)); err != nil {
		return nil, err
	}
	return result, nil
}

// Validate runs a load and returns its error tree, empty when the data
// is valid. Fatal hook errors are reported at the whole-record location.
func (s *Schema) Validate(data any, opts ...LoadOption) *ErrorTree {
	_, err := s.Load(data, opts...)
	if err == nil {
		return &ErrorTree{}
	}
	var bve *BridgeValidationError
	if errors.As(err, &bve) {
		return bve.Messages
	}
	t := &ErrorTree{}
	t.Add(schemaPath, err.Error())
	return t
}

func (s *Schema) finishLoad(data any, many bool, err error, elapsed time.Duration) error {
	c := s.class
	var bve *BridgeValidationError
	switch {
	case errors.As(err, &bve):
		c.logger.Info("load failed", "schema", c.name, "many", many, "errors", len(bve.Issues))
		if c.errorHandler != nil {
			if handled := c.errorHandler(bve, data); handled != nil {
				err = handled
			}
		}
	case err != nil:
		c.logger.Info("load aborted", "schema", c.name, "many", many, "error", err)
	}
	if c.observer != nil {
		c.observer.ObserveLoad(c.name, many, err, elapsed)
	}
	return err
}

func (s *Schema) loadOne(data any, call *loadCall) (any, error) {
	hc := HookContext{Partial: call.partial, Context: call.context, Original: data}
	result, issues, err := s.newRun(call, hc).run(data)
	if err != nil {
		return nil, err
	}
	if len(issues) > 0 {
		return nil, translate(issues, data)
	}
	return result, nil
}

func (s *Schema) loadMany(data any, call *loadCall) (any, error) {
	c := s.class
	items, ok := asItems(data)
	if !ok {
		return nil, translate([]engine.Issue{{Path: schemaPath, Message: msgInvalidInput, Code: engine.CodeType}}, data)
	}
	hc := HookContext{Many: true, Collection: true, Partial: call.partial, Context: call.context, Original: data}

	if _, pre := split(c.hooks.preLoad, true); len(pre) > 0 {
		out, err := runProcessors(pre, items, hc)
		if err != nil {
			issues, fatal := s.hookIssues(err, schemaPath)
			if fatal != nil {
				return nil, hookError("pre_load", fatal)
			}
			return nil, translateBatch(issues, items, data)
		}
		if items, ok = asItems(out); !ok {
			return nil, translate([]engine.Issue{{Path: schemaPath, Message: msgInvalidInput, Code: engine.CodeType}}, data)
		}
	}

	results := make([]any, len(items))
	var issues []engine.Issue
	for i, item := range items {
		ihc := HookContext{Many: true, Partial: call.partial, Context: call.context, Original: item}
		result, itemIssues, err := s.newRun(call, ihc).run(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		for _, is := range itemIssues {
			is.Path = is.Path.Prepend(engine.Index(i))
			issues = append(issues, is)
		}
		results[i] = result
	}

	fieldErrors := len(issues) > 0
	for _, v := range c.hooks.schemaValidators {
		if !v.passCollection || (fieldErrors && v.skipOnFieldErrors) {
			continue
		}
		if err := v.fn(results, hc); err != nil {
			vi, fatal := s.hookIssues(err, schemaPath)
			if fatal != nil {
				return nil, hookError("validates_schema", fatal)
			}
			issues = append(issues, vi...)
		}
	}
	if len(issues) > 0 {
		return nil, translateBatch(issues, items, data)
	}

	if _, post := split(c.hooks.postLoad, true); len(post) > 0 {
		out, err := runProcessors(post, results, hc)
		if err != nil {
			vi, fatal := s.hookIssues(err, schemaPath)
			if fatal != nil {
				return nil, hookError("post_load", fatal)
			}
			return nil, translateBatch(vi, items, data)
		}
		return out, nil
	}
	return results, nil
}

// hookIssues turns a *ValidationError into issues located at def, or
// at the field it names. Any other error is returned as fatal.
func (s *Schema) hookIssues(err error, def engine.Path) ([]engine.Issue, error) {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return nil, err
	}
	path := def
	if ve.Field != "" {
		path = engine.Path{engine.Key(s.loadKey(ve.Field))}
	}
	msgs := ve.Messages
	if len(msgs) == 0 {
		msgs = []string{msgInvalidValue}
	}
	out := make([]engine.Issue, len(msgs))
	for i, m := range msgs {
		out[i] = engine.Issue{Path: path, Message: m, Code: engine.CodeValidator}
	}
	return out, nil
}

func (s *Schema) loadKey(name string) string {
	if f, ok := s.class.byName[name]; ok {
		return f.LoadKey
	}
	return name
}

func hookError(stage string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrHook, stage, err)
}

///////////////////////////////////////////////////////////////////////////////
// Load state machine
///////////////////////////////////////////////////////////////////////////////

type loadState int

const (
	stateRaw loadState = iota
	statePreLoad
	stateEngineValidate
	stateFieldValidate
	stateSchemaValidate
	statePostLoad
	stateDone
	stateFailed
)

var loadStateNames = [...]string{
	stateRaw:            "RAW",
	statePreLoad:        "PRE_LOAD",
	stateEngineValidate: "ENGINE_VALIDATE",
	stateFieldValidate:  "FIELD_VALIDATE",
	stateSchemaValidate: "SCHEMA_VALIDATE",
	statePostLoad:       "POST_LOAD",
	stateDone:           "DONE",
	stateFailed:         "FAILED",
}

func (st loadState) String() string {
	return loadStateNames[st]
}

// loadRun carries one item through the load states.
type loadRun struct {
	s    *Schema
	call *loadCall
	hc   HookContext

	state   loadState
	trace   []loadState
	data    any
	input   map[string]any
	extras  map[string]any
	partial engine.Partial

	outcome      engine.Outcome
	engineFailed bool
	issues       []engine.Issue
	rejected     map[string]bool
	result       any
}

func (s *Schema) newRun(call *loadCall, hc HookContext) *loadRun {
	return &loadRun{
		s:       s,
		call:    call,
		hc:      hc,
		partial: call.partial.With(s.exempt...),
	}
}

// run steps until DONE or FAILED. A returned error is fatal; issues
// are returned only from FAILED.
func (r *loadRun) run(raw any) (any, []engine.Issue, error) {
	r.data = raw
	r.trace = append(r.trace, r.state)
	for {
		var err error
		switch r.state {
		case stateRaw:
			r.moveTo(statePreLoad)
		case statePreLoad:
			err = r.preLoad()
		case stateEngineValidate:
			r.validate()
		case stateFieldValidate:
			err = r.validateFields()
		case stateSchemaValidate:
			err = r.validateSchema()
		case statePostLoad:
			err = r.postLoad()
		case stateDone:
			return r.result, nil, nil
		case stateFailed:
			return nil, r.issues, nil
		}
		if err != nil {
			r.s.class.logger.Debug("load aborted", "schema", r.s.class.name, "state", r.state.String(), "error", err)
			return nil, nil, err
		}
	}
}

func (r *loadRun) moveTo(next loadState) {
	r.s.class.logger.Debug("load transition", "schema", r.s.class.name, "from", r.state.String(), "to", next.String())
	r.state = next
	r.trace = append(r.trace, next)
}

func (r *loadRun) fail(issues ...engine.Issue) {
	r.issues = append(r.issues, issues...)
	r.moveTo(stateFailed)
}

func (r *loadRun) preLoad() error {
	hooks, _ := split(r.s.class.hooks.preLoad, r.hc.Many)
	data, err := runProcessors(hooks, r.data, r.hc)
	if err != nil {
		issues, fatal := r.s.hookIssues(err, schemaPath)
		if fatal != nil {
			return hookError("pre_load", fatal)
		}
		r.fail(issues...)
		return nil
	}

	input, ok := asRecord(data)
	if !ok {
		r.fail(engine.Issue{Path: schemaPath, Message: msgInvalidInput, Code: engine.CodeType})
		return nil
	}
	r.input = r.applyUnknown(input)
	r.moveTo(stateEngineValidate)
	return nil
}

// applyUnknown keeps the keys of loadable fields. Keys of other
// declared fields are dropped; the rest follow the unknown policy.
func (r *loadRun) applyUnknown(in map[string]any) map[string]any {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(in))
	for _, k := range keys {
		if _, ok := r.s.byLoadKey[k]; ok {
			out[k] = in[k]
			continue
		}
		if r.s.class.declared[k] {
			continue
		}
		switch r.call.unknown {
		case Raise:
			r.issues = append(r.issues, engine.Issue{
				Path:    engine.Path{engine.UnknownSegment(), engine.Key(k)},
				Message: msgUnknownField,
				Code:    engine.CodeUnknownField,
			})
		case Include:
			if r.extras == nil {
				r.extras = make(map[string]any)
			}
			r.extras[k] = in[k]
		}
	}
	return out
}

func (r *loadRun) validate() {
	c := r.s.class
	r.outcome = c.engine.Validate(c.typ, r.input, engine.ValidateOptions{
		Partial: r.partial,
		Context: r.call.context,
	})
	if r.outcome.Failed() {
		r.issues = append(r.issues, c.customize(r.outcome.Errors)...)
	}
	if len(r.issues) == 0 {
		r.moveTo(stateFieldValidate)
		return
	}
	r.engineFailed = true
	if c.hooks.runsOnFieldErrors() {
		r.moveTo(stateFieldValidate)
	} else {
		r.moveTo(stateFailed)
	}
}

func (r *loadRun) validateFields() error {
	for _, v := range r.s.class.hooks.fieldValidators {
		f, ok := r.s.byName[v.field]
		if !ok || !f.Loadable() {
			continue
		}
		if r.engineFailed && v.skipOnFieldErrors {
			continue
		}
		value, ok := r.outcome.Valid[f.Name]
		if !ok {
			continue
		}
		if err := v.fn(value, r.hc); err != nil {
			issues, fatal := r.s.hookIssues(err, engine.Path{engine.Key(f.LoadKey)})
			if fatal != nil {
				return hookError("validates "+v.field, fatal)
			}
			r.issues = append(r.issues, issues...)
			r.reject(v.field, err)
		}
	}
	r.moveTo(stateSchemaValidate)
	return nil
}

func (r *loadRun) validateSchema() error {
	fieldErrors := len(r.issues) > 0
	var data any = r.outcome.Record
	if fieldErrors {
		data = r.validFields()
	}

	for _, v := range r.s.class.hooks.schemaValidators {
		if r.hc.Many && v.passCollection {
			continue
		}
		if fieldErrors && v.skipOnFieldErrors {
			continue
		}
		if err := v.fn(data, r.hc); err != nil {
			issues, fatal := r.s.hookIssues(err, schemaPath)
			if fatal != nil {
				return hookError("validates_schema", fatal)
			}
			r.issues = append(r.issues, issues...)
		}
	}

	if len(r.issues) > 0 {
		r.moveTo(stateFailed)
	} else {
		r.moveTo(statePostLoad)
	}
	return nil
}

// reject records the attribute a failed field validator rejected.
func (r *loadRun) reject(field string, err error) {
	var ve *ValidationError
	if errors.As(err, &ve) && ve.Field != "" {
		field = ve.Field
	}
	if r.rejected == nil {
		r.rejected = make(map[string]bool)
	}
	r.rejected[field] = true
}

// validFields copies the engine's valid fields minus those a field
// validator rejected.
func (r *loadRun) validFields() map[string]any {
	out := make(map[string]any, len(r.outcome.Valid))
	for k, v := range r.outcome.Valid {
		if !r.rejected[k] {
			out[k] = v
		}
	}
	return out
}

func (r *loadRun) postLoad() error {
	var result any = r.outcome.Record
	if !r.call.returnInstance {
		m := r.recordMap()
		for k, v := range r.extras {
			if _, taken := m[k]; !taken {
				m[k] = v
			}
		}
		result = m
	} else if len(r.extras) > 0 {
		if tracker, ok := model.TrackerOf(result); ok {
			for k, v := range r.extras {
				tracker.SetExtra(k, v)
			}
		}
	}

	hooks, _ := split(r.s.class.hooks.postLoad, r.hc.Many)
	out, err := runProcessors(hooks, result, r.hc)
	if err != nil {
		issues, fatal := r.s.hookIssues(err, schemaPath)
		if fatal != nil {
			return hookError("post_load", fatal)
		}
		r.fail(issues...)
		return nil
	}
	r.result = out
	r.moveTo(stateDone)
	return nil
}

// recordMap reads the loaded record into an attribute-keyed map. Fields
// exempted by partial and absent from the input are left out.
func (r *loadRun) recordMap() map[string]any {
	set := make(map[string]bool, len(r.outcome.Set))
	for _, n := range r.outcome.Set {
		set[n] = true
	}
	rec := reflect.ValueOf(r.outcome.Record)
	for rec.Kind() == reflect.Ptr {
		rec = rec.Elem()
	}

	out := make(map[string]any, len(r.s.fields))
	for _, f := range r.s.fields {
		if !f.Loadable() {
			continue
		}
		if !set[f.Name] && r.call.partial.Exempt(f.Name) {
			continue
		}
		d, ok := r.s.class.model.Field(f.Name)
		if !ok || d.Computed {
			continue
		}
		out[f.Name] = rec.FieldByIndex(d.Index).Interface()
	}
	return out
}

///////////////////////////////////////////////////////////////////////////////
// Dump
///////////////////////////////////////////////////////////////////////////////

type dumpCall struct {
	many            bool
	excludeNone     bool
	excludeUnset    bool
	excludeDefaults bool
	includeComputed bool
	context         map[string]any
}

// DumpOption adjusts a single dump call.
type DumpOption func(*dumpCall)

// WithDumpMany overrides the instance batch mode for one dump.
func WithDumpMany(many bool) DumpOption {
	return func(c *dumpCall) { c.many = many }
}

// ExcludeNone drops fields whose value is null.
func ExcludeNone() DumpOption {
	return func(c *dumpCall) { c.excludeNone = true }
}

// ExcludeUnset drops fields that were never explicitly assigned. Records
// without an embedded model.Base count every field as assigned.
func ExcludeUnset() DumpOption {
	return func(c *dumpCall) { c.excludeUnset = true }
}

// ExcludeDefaults drops fields equal to their declared default.
func ExcludeDefaults() DumpOption {
	return func(c *dumpCall) { c.excludeDefaults = true }
}

// IncludeComputed controls whether computed fields are dumped. They are
// by default.
func IncludeComputed(include bool) DumpOption {
	return func(c *dumpCall) { c.includeComputed = include }
}

// Dump projects a record, or a slice of records in batch mode, into
// plain data. Dump never validates; hook errors abort it.
func (s *Schema) Dump(record any, opts ...DumpOption) (any, error) {
	c := s.class
	start := time.Now()
	call := &dumpCall{many: s.many, includeComputed: true, context: s.context}
	for _, opt := range opts {
		opt(call)
	}

	var out any
	var err error
	if call.many {
		out, err = s.dumpMany(record, call)
	} else {
		out, err = s.dumpOne(record, call, HookContext{Context: call.context})
	}
	if err != nil {
		c.logger.Info("dump failed", "schema", c.name, "many", call.many, "error", err)
	}
	if c.observer != nil {
		c.observer.ObserveDump(c.name, call.many, err, time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Schema) dumpOne(record any, call *dumpCall, hc HookContext) (any, error) {
	c := s.class
	pre, _ := split(c.hooks.preDump, hc.Many)
	post, _ := split(c.hooks.postDump, hc.Many)

	c.logger.Debug("dump transition", "schema", c.name, "to", "PRE_DUMP")
	rec, err := runProcessors(pre, record, hc)
	if err != nil {
		return nil, hookError("pre_dump", err)
	}

	c.logger.Debug("dump transition", "schema", c.name, "to", "PROJECT")
	data, err := s.project(rec, call)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("dump transition", "schema", c.name, "to", "POST_DUMP")
	out, err := runProcessors(post, data, hc)
	if err != nil {
		return nil, hookError("post_dump", err)
	}
	return out, nil
}

// dumpMany runs per-item processors before collection processors, in
// both the pre and post stages.
func (s *Schema) dumpMany(records any, call *dumpCall) (any, error) {
	c := s.class
	items, ok := asItems(records)
	if !ok {
		return nil, fmt.Errorf("%w: batch dump needs a slice, got %T", ErrRecordType, records)
	}
	ihc := HookContext{Many: true, Context: call.context}
	chc := HookContext{Many: true, Collection: true, Context: call.context}
	itemPre, collPre := split(c.hooks.preDump, true)
	itemPost, collPost := split(c.hooks.postDump, true)

	for i, item := range items {
		rec, err := runProcessors(itemPre, item, ihc)
		if err != nil {
			return nil, hookError("pre_dump", err)
		}
		items[i] = rec
	}
	if len(collPre) > 0 {
		out, err := runProcessors(collPre, items, chc)
		if err != nil {
			return nil, hookError("pre_dump", err)
		}
		if items, ok = asItems(out); !ok {
			return nil, fmt.Errorf("%w: pre_dump returned %T", ErrUnexpectedType, out)
		}
	}

	outs := make([]any, len(items))
	for i, item := range items {
		data, err := s.project(item, call)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if outs[i], err = runProcessors(itemPost, data, ihc); err != nil {
			return nil, hookError("post_dump", err)
		}
	}
	if len(collPost) > 0 {
		out, err := runProcessors(collPost, outs, chc)
		if err != nil {
			return nil, hookError("post_dump", err)
		}
		return out, nil
	}
	return outs, nil
}

// project serializes record through the engine and keeps the dumpable
// fields of the instance, dropping none, then unset, then default
// values as requested. Extra keys stored on the record follow.
func (s *Schema) project(record any, call *dumpCall) (map[string]any, error) {
	c := s.class
	rv := reflect.ValueOf(record)
	if !rv.IsValid() || model.Indirect(rv.Type()) != c.typ {
		return nil, fmt.Errorf("%w: %T is not %s", ErrRecordType, record, c.typ)
	}
	if rv.Kind() != reflect.Ptr {
		p := reflect.New(rv.Type())
		p.Elem().Set(rv)
		rv = p
	}
	for rv.Elem().Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.IsNil() {
		return nil, fmt.Errorf("%w: nil %s", ErrRecordType, c.typ)
	}

	plain, err := c.engine.Serialize(rv.Interface(), engine.SerializeOptions{
		ByAlias:         true,
		ExcludeUnset:    call.excludeUnset,
		ExcludeDefaults: call.excludeDefaults,
		ExcludeNone:     call.excludeNone,
		IncludeComputed: call.includeComputed,
	})
	if err != nil {
		return nil, fmt.Errorf("dump %s: %w", c.name, err)
	}

	tracker, _ := model.TrackerOf(rv.Interface())
	out := make(map[string]any, len(plain))
	for _, f := range s.fields {
		if !f.Dumpable() || (f.Computed && !call.includeComputed) {
			continue
		}
		v, ok := plain[f.DumpKey]
		if !ok {
			continue
		}
		if call.excludeNone && v == nil {
			continue
		}
		if call.excludeUnset && !f.Computed && tracker != nil && !tracker.IsSet(f.Name) {
			continue
		}
		if call.excludeDefaults && !f.Computed && f.HasDefault && engine.PlainEqual(v, f.Default) {
			continue
		}
		out[f.DumpKey] = v
	}
	if tracker != nil {
		for k, v := range tracker.Extra() {
			if _, taken := out[k]; !taken && !c.declared[k] {
				out[k] = v
			}
		}
	}
	return out, nil
}

///////////////////////////////////////////////////////////////////////////////
// Input shapes
///////////////////////////////////////////////////////////////////////////////

func asRecord(data any) (map[string]any, bool) {
	if m, ok := data.(map[string]any); ok {
		return m, true
	}
	if isRecord(data) {
		return plainMap(reflect.ValueOf(data)), true
	}
	return nil, false
}

func asItems(data any) ([]any, bool) {
	if items, ok := data.([]any); ok {
		return append([]any(nil), items...), true
	}
	rv := reflect.ValueOf(data)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type() == model.BytesType {
		return nil, false
	}
	return plainList(rv), true
}
