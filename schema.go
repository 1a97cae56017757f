package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/SimonDaKappa/go-pave-bridge/engine"
	"github.com/SimonDaKappa/go-pave-bridge/internal/logging"
	"github.com/SimonDaKappa/go-pave-bridge/model"
	"github.com/SimonDaKappa/go-pave-bridge/strict"
)

// UnknownPolicy decides what a load does with input keys that name no
// field. The zero value inherits the class setting, which defaults to
// Raise.
type UnknownPolicy int

const (
	Raise UnknownPolicy = iota + 1
	Exclude
	Include
)

func (p UnknownPolicy) String() string {
	switch p {
	case Raise:
		return "raise"
	case Exclude:
		return "exclude"
	case Include:
		return "include"
	}
	return "inherit"
}

// ParseUnknownPolicy accepts the policy names in any case.
func ParseUnknownPolicy(s string) (UnknownPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "raise":
		return Raise, nil
	case "exclude":
		return Exclude, nil
	case "include":
		return Include, nil
	case "":
		return 0, nil
	}
	return 0, fmt.Errorf("%w: unknown policy %q", ErrConfiguration, s)
}

// Observer receives the outcome of every load and dump call.
type Observer interface {
	ObserveLoad(schema string, many bool, err error, elapsed time.Duration)
	ObserveDump(schema string, many bool, err error, elapsed time.Duration)
}

// Options configure a schema class. They are copied by Build and cannot
// be changed on a built class.
type Options struct {
	// Name defaults to the model's type name.
	Name string

	// Fields is a whitelist and Exclude a blacklist of attribute names.
	// Setting both is a configuration error.
	Fields  []string
	Exclude []string

	LoadOnly []string
	DumpOnly []string

	Unknown UnknownPolicy
	Many    bool

	// ReturnMaps makes loads return attribute-keyed maps instead of
	// model instances.
	ReturnMaps bool

	// TypeOverrides maps Go types to field kinds ahead of every other
	// mapping rule. Only non-structural kinds are accepted.
	TypeOverrides map[reflect.Type]FieldKind

	Hooks *Hooks

	// ErrorMessages replaces engine messages per field and error code.
	// The DefaultMessage code applies to every other code.
	ErrorMessages map[string]map[string]string

	// Engine defaults to the bundled strict engine.
	Engine      engine.Engine
	Registry    *model.Registry
	StrictTypes bool

	Logger   *slog.Logger
	Observer Observer

	// ErrorHandler may replace the error of a failed load. Returning nil
	// keeps the original error.
	ErrorHandler func(err *BridgeValidationError, data any) error

	// OnBindField runs once per top-level mapped field before the class
	// is frozen.
	OnBindField func(f *MappedField)
}

// SchemaClass is a built, immutable schema for one model type. It is
// safe for concurrent use.
type SchemaClass struct {
	name  string
	typ   reflect.Type
	model *model.Model

	fields    []*MappedField
	byName    map[string]*MappedField
	byLoadKey map[string]*MappedField

	// declared holds every attribute name and wire key of the model,
	// filtered fields included.
	declared map[string]bool

	unknown    UnknownPolicy
	many       bool
	returnMaps bool

	hooks    *Hooks
	messages map[string]map[string]string

	engine       engine.Engine
	logger       *slog.Logger
	observer     Observer
	errorHandler func(*BridgeValidationError, any) error

	defaultOnce sync.Once
	defaultInst *Schema
}

type arenaKey struct {
	registry *model.Registry
	strict   bool
}

type arenaEntry struct {
	arena  *model.Arena
	engine *strict.Engine
}

// arenas shares one arena and default engine per registry and
// strictness, so classes for the same models share descriptors.
var arenas sync.Map // map[arenaKey]*arenaEntry

func arenaFor(registry *model.Registry, strictTypes bool) *arenaEntry {
	if registry == nil {
		registry = model.DefaultRegistry
	}
	key := arenaKey{registry: registry, strict: strictTypes}
	if v, ok := arenas.Load(key); ok {
		return v.(*arenaEntry)
	}
	arena := model.NewArena(model.ArenaOpts{Registry: registry, StrictTypes: strictTypes})
	entry := &arenaEntry{arena: arena, engine: strict.New(strict.Opts{Arena: arena})}
	actual, _ := arenas.LoadOrStore(key, entry)
	return actual.(*arenaEntry)
}

// Build extracts t, maps its fields and assembles a schema class.
func Build(t reflect.Type, opts Options) (*SchemaClass, error) {
	b := newBuilder(opts)
	return b.build(model.Indirect(t), opts)
}

// BuildFor is Build for the type parameter.
func BuildFor[M any](opts Options) (*SchemaClass, error) {
	return Build(typeOf[M](), opts)
}

// MustBuild is Build that panics on error, for package-level schemas.
func MustBuild(t reflect.Type, opts Options) *SchemaClass {
	c, err := Build(t, opts)
	if err != nil {
		panic(err)
	}
	return c
}

type builder struct {
	arena  *model.Arena
	engine engine.Engine
	mapper *Mapper
	logger *slog.Logger

	// nested memoizes the unfiltered classes of nested models.
	nested map[reflect.Type]*SchemaClass
}

func newBuilder(opts Options) *builder {
	entry := arenaFor(opts.Registry, opts.StrictTypes)
	eng := opts.Engine
	if eng == nil {
		eng = entry.engine
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &builder{
		arena:  entry.arena,
		engine: eng,
		mapper: NewMapper(entry.arena, opts.TypeOverrides),
		logger: logger,
		nested: make(map[reflect.Type]*SchemaClass),
	}
}

func (b *builder) build(t reflect.Type, opts Options) (*SchemaClass, error) {
	name := opts.Name
	if name == "" && t != nil {
		name = t.Name()
	}

	if len(opts.Fields) > 0 && len(opts.Exclude) > 0 {
		return nil, configError(name, "fields and exclude are mutually exclusive")
	}
	if opts.Unknown < 0 || opts.Unknown > Include {
		return nil, configError(name, "invalid unknown policy %d", int(opts.Unknown))
	}
	for typ, kind := range opts.TypeOverrides {
		if kind.IsStructural() || kind == Enum || kind < 0 || int(kind) >= len(fieldKindNames) {
			return nil, configError(name, "type override for %s cannot use kind %s", typ, kind)
		}
	}

	m, err := b.arena.Extract(t)
	if err != nil {
		var unresolved *model.UnresolvedTypeError
		if errors.As(err, &unresolved) {
			return nil, unresolved
		}
		return nil, &ConfigurationError{Schema: name, Reason: "cannot extract model", Err: err}
	}

	for _, list := range [][]string{opts.Fields, opts.Exclude} {
		for _, n := range list {
			if _, ok := m.Field(n); !ok {
				return nil, configError(name, "no field named %q", n)
			}
		}
	}

	c := &SchemaClass{
		name:         name,
		typ:          t,
		model:        m,
		byName:       make(map[string]*MappedField),
		byLoadKey:    make(map[string]*MappedField),
		declared:     make(map[string]bool),
		unknown:      opts.Unknown,
		many:         opts.Many,
		returnMaps:   opts.ReturnMaps,
		hooks:        opts.Hooks.clone(),
		messages:     copyMessages(opts.ErrorMessages),
		engine:       b.engine,
		logger:       b.logger,
		observer:     opts.Observer,
		errorHandler: opts.ErrorHandler,
	}
	if c.unknown == 0 {
		c.unknown = Raise
	}

	keep := filterNames(opts.Fields, opts.Exclude)
	for _, d := range m.Fields {
		for _, key := range []string{d.Name, d.LoadName, d.DumpName} {
			if key != "" {
				c.declared[key] = true
			}
		}
		if !keep(d.Name) {
			continue
		}
		f := b.mapper.Map(d)
		c.fields = append(c.fields, f)
		c.byName[f.Name] = f
	}

	if err := applyDirections(name, c.byName, opts.LoadOnly, opts.DumpOnly); err != nil {
		return nil, err
	}
	for _, f := range c.fields {
		if f.Loadable() {
			c.byLoadKey[f.LoadKey] = f
		}
	}

	if err := c.checkFields(); err != nil {
		return nil, err
	}

	if opts.OnBindField != nil {
		for _, f := range c.fields {
			opts.OnBindField(f)
		}
	}

	if len(opts.Fields) == 0 && len(opts.Exclude) == 0 {
		if _, ok := b.nested[t]; !ok {
			b.nested[t] = c
		}
	}
	for _, f := range c.fields {
		var nestedErr error
		walkFields(f, func(inner *MappedField) {
			if inner.Kind != Nested || inner.Model == nil || nestedErr != nil {
				return
			}
			inner.Schema, nestedErr = b.nestedClass(inner.Model, opts)
		})
		if nestedErr != nil {
			return nil, nestedErr
		}
	}

	b.logger.Debug("schema built", "schema", name, "model", t.String(), "fields", len(c.fields))
	return c, nil
}

// nestedClass returns the unfiltered class of a nested model.
func (b *builder) nestedClass(t reflect.Type, parent Options) (*SchemaClass, error) {
	if c, ok := b.nested[t]; ok {
		return c, nil
	}
	return b.build(t, Options{
		Engine:        parent.Engine,
		Registry:      parent.Registry,
		StrictTypes:   parent.StrictTypes,
		TypeOverrides: parent.TypeOverrides,
		Logger:        parent.Logger,
	})
}

// checkFields rejects hooks and messages for fields the class does not
// have, and patterns the engine could never compile.
func (c *SchemaClass) checkFields() error {
	for _, v := range c.hooks.fieldValidators {
		if _, ok := c.byName[v.field]; !ok {
			return configError(c.name, "validator registered for missing field %q", v.field)
		}
	}
	for field := range c.messages {
		if _, ok := c.byName[field]; !ok {
			return configError(c.name, "error messages for missing field %q", field)
		}
	}
	for _, f := range c.fields {
		if p := f.Metadata.Constraints.Pattern; p != "" {
			if _, err := regexp.Compile(p); err != nil {
				return &ConfigurationError{Schema: c.name, Reason: fmt.Sprintf("field %q has an invalid pattern", f.Name), Err: err}
			}
		}
	}
	if c.unknown == Include && !c.model.HasBase() && !c.returnMaps {
		return configError(c.name, "unknown policy include needs an embedded model.Base or ReturnMaps")
	}
	return nil
}

// applyDirections marks load-only and dump-only fields. Names must
// exist after filtering and may not appear in both lists. Computed
// fields stay dump-only whatever the lists say.
func applyDirections(schema string, byName map[string]*MappedField, loadOnly, dumpOnly []string) error {
	dump := make(map[string]bool, len(dumpOnly))
	for _, n := range dumpOnly {
		if _, ok := byName[n]; !ok {
			return configError(schema, "dump_only names %q which is not a field after filtering", n)
		}
		dump[n] = true
	}
	for _, n := range loadOnly {
		if _, ok := byName[n]; !ok {
			return configError(schema, "load_only names %q which is not a field after filtering", n)
		}
		if dump[n] {
			return configError(schema, "field %q is both load_only and dump_only", n)
		}
	}
	for _, n := range loadOnly {
		if f := byName[n]; !f.Computed {
			f.LoadOnly = true
		}
	}
	for _, n := range dumpOnly {
		byName[n].DumpOnly = true
	}
	return nil
}

func filterNames(only, exclude []string) func(string) bool {
	in := make(map[string]bool, len(only))
	for _, n := range only {
		in[n] = true
	}
	out := make(map[string]bool, len(exclude))
	for _, n := range exclude {
		out[n] = true
	}
	return func(name string) bool {
		if len(in) > 0 && !in[name] {
			return false
		}
		return !out[name]
	}
}

func copyMessages(in map[string]map[string]string) map[string]map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]map[string]string, len(in))
	for field, codes := range in {
		cp := make(map[string]string, len(codes))
		for code, msg := range codes {
			cp[code] = msg
		}
		out[field] = cp
	}
	return out
}

// Name is the schema name used in errors, logs and metrics.
func (c *SchemaClass) Name() string { return c.name }

// Type returns the model struct type.
func (c *SchemaClass) Type() reflect.Type { return c.typ }

// Model returns the extracted descriptors of the model.
func (c *SchemaClass) Model() *model.Model { return c.model }

// Engine returns the validation engine the class delegates to.
func (c *SchemaClass) Engine() engine.Engine { return c.engine }

// Unknown returns the class-level unknown-key policy.
func (c *SchemaClass) Unknown() UnknownPolicy { return c.unknown }

// Many reports the class-level default batch mode.
func (c *SchemaClass) Many() bool { return c.many }

// Fields returns the mapped fields in declaration order. The slice is a
// copy; the fields themselves must not be modified.
func (c *SchemaClass) Fields() []*MappedField {
	return append([]*MappedField(nil), c.fields...)
}

// Field looks a mapped field up by attribute name.
func (c *SchemaClass) Field(name string) (*MappedField, bool) {
	f, ok := c.byName[name]
	return f, ok
}

///////////////////////////////////////////////////////////////////////////////
// Instances
///////////////////////////////////////////////////////////////////////////////

// InstanceOpts are runtime overrides fixed for the lifetime of one
// schema instance. Zero values inherit from the class.
type InstanceOpts struct {
	Only     []string
	Exclude  []string
	LoadOnly []string
	DumpOnly []string
	Unknown  UnknownPolicy

	// Many overrides the class batch mode when non-nil.
	Many *bool

	Partial engine.Partial
	Context map[string]any
}

// Schema is a configured instance of a class. It is immutable and safe
// for concurrent use; per-call changes go through load and dump options.
type Schema struct {
	class *SchemaClass

	fields    []*MappedField
	byName    map[string]*MappedField
	byLoadKey map[string]*MappedField

	// exempt names the model fields this instance never loads. They are
	// always exempt from the required check.
	exempt []string

	unknown UnknownPolicy
	many    bool
	partial engine.Partial
	context map[string]any
}

// New creates a schema instance. Names in opts must be fields of the
// class.
func (c *SchemaClass) New(opts InstanceOpts) (*Schema, error) {
	if len(opts.Only) > 0 && len(opts.Exclude) > 0 {
		return nil, configError(c.name, "only and exclude are mutually exclusive")
	}
	for _, list := range [][]string{opts.Only, opts.Exclude} {
		for _, n := range list {
			if _, ok := c.byName[n]; !ok {
				return nil, configError(c.name, "no field named %q", n)
			}
		}
	}
	if opts.Unknown < 0 || opts.Unknown > Include {
		return nil, configError(c.name, "invalid unknown policy %d", int(opts.Unknown))
	}

	s := &Schema{
		class:     c,
		byName:    make(map[string]*MappedField),
		byLoadKey: make(map[string]*MappedField),
		unknown:   c.unknown,
		many:      c.many,
		partial:   opts.Partial,
		context:   opts.Context,
	}
	if opts.Unknown != 0 {
		s.unknown = opts.Unknown
	}
	if opts.Many != nil {
		s.many = *opts.Many
	}

	keep := filterNames(opts.Only, opts.Exclude)
	for _, f := range c.fields {
		if !keep(f.Name) {
			continue
		}
		if len(opts.LoadOnly) > 0 || len(opts.DumpOnly) > 0 {
			f = f.clone()
		}
		s.fields = append(s.fields, f)
		s.byName[f.Name] = f
	}
	if err := applyDirections(c.name, s.byName, opts.LoadOnly, opts.DumpOnly); err != nil {
		return nil, err
	}
	for _, f := range s.fields {
		if f.Loadable() {
			s.byLoadKey[f.LoadKey] = f
		}
	}
	for _, d := range c.model.Fields {
		if d.Computed {
			continue
		}
		if f, ok := s.byName[d.Name]; !ok || !f.Loadable() {
			s.exempt = append(s.exempt, d.Name)
		}
	}
	if err := c.checkPartial(opts.Partial); err != nil {
		return nil, err
	}
	if s.unknown == Include && !c.model.HasBase() && !c.returnMaps {
		return nil, configError(c.name, "unknown policy include needs an embedded model.Base or ReturnMaps")
	}
	return s, nil
}

// MustNew is New that panics on error.
func (c *SchemaClass) MustNew(opts InstanceOpts) *Schema {
	s, err := c.New(opts)
	if err != nil {
		panic(err)
	}
	return s
}

// Default returns the instance with no overrides. It is created once.
func (c *SchemaClass) Default() *Schema {
	c.defaultOnce.Do(func() {
		c.defaultInst = c.MustNew(InstanceOpts{})
	})
	return c.defaultInst
}

// checkPartial rejects partial sets naming fields the class lacks.
func (c *SchemaClass) checkPartial(p engine.Partial) error {
	for n := range p.Names {
		if _, ok := c.byName[n]; !ok {
			return configError(c.name, "partial names %q which is not a field", n)
		}
	}
	return nil
}

// Class returns the class the instance was created from.
func (s *Schema) Class() *SchemaClass { return s.class }

// Unknown returns the effective unknown-key policy of the instance.
func (s *Schema) Unknown() UnknownPolicy { return s.unknown }

// Many reports the effective batch mode of the instance.
func (s *Schema) Many() bool { return s.many }

// Fields returns the instance's fields after its own filtering.
func (s *Schema) Fields() []*MappedField {
	return append([]*MappedField(nil), s.fields...)
}
