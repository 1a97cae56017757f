package bridge

import (
	"github.com/SimonDaKappa/go-pave-bridge/engine"
)

// HookContext is handed to every hook and validator of one call.
type HookContext struct {
	// Many is set when the call is a batch call.
	Many bool

	// Collection is set when the hook received the whole batch.
	Collection bool

	Partial engine.Partial
	Context map[string]any

	// Original is the input of the current item as the caller passed it.
	// It is nil during dumps.
	Original any
}

// Processor transforms data before or after the engine runs. Pre-load
// processors see plain data, post-load processors see the loaded result,
// and dump processors see the record and then the plain projection.
type Processor func(data any, hc HookContext) (any, error)

// FieldValidator checks the loaded value of one field.
type FieldValidator func(value any, hc HookContext) error

// SchemaValidator checks a whole loaded record. When field errors are
// present, from the engine or from field validators, it receives an
// attribute-keyed map of the fields that validated instead.
type SchemaValidator func(data any, hc HookContext) error

type hookConfig struct {
	passCollection    bool
	skipOnFieldErrors bool
}

// HookOption adjusts how a registered hook is invoked.
type HookOption func(*hookConfig)

// PassCollection makes a hook receive the whole batch once instead of
// running per item. Outside batch calls it has no effect.
func PassCollection() HookOption {
	return func(c *hookConfig) { c.passCollection = true }
}

// SkipOnFieldErrors controls whether a validator is skipped when field
// errors exist. Validators skip by default.
func SkipOnFieldErrors(skip bool) HookOption {
	return func(c *hookConfig) { c.skipOnFieldErrors = skip }
}

func newHookConfig(opts []HookOption) hookConfig {
	c := hookConfig{skipOnFieldErrors: true}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

type processorHook struct {
	fn Processor
	hookConfig
}

type fieldValidatorHook struct {
	field string
	fn    FieldValidator
	hookConfig
}

type schemaValidatorHook struct {
	fn SchemaValidator
	hookConfig
}

// Hooks is an ordered hook registry. Hooks of one kind run in
// registration order. Build freezes a copy, so registering on a Hooks
// value after Build does not affect the built class.
type Hooks struct {
	preLoad          []processorHook
	postLoad         []processorHook
	preDump          []processorHook
	postDump         []processorHook
	fieldValidators  []fieldValidatorHook
	schemaValidators []schemaValidatorHook
}

// NewHooks returns an empty registry. Registration methods chain.
func NewHooks() *Hooks {
	return &Hooks{}
}

// PreLoad registers fn to run on raw input before the engine.
func (h *Hooks) PreLoad(fn Processor, opts ...HookOption) *Hooks {
	h.preLoad = append(h.preLoad, processorHook{fn: fn, hookConfig: newHookConfig(opts)})
	return h
}

// PostLoad registers fn to run on the loaded result.
func (h *Hooks) PostLoad(fn Processor, opts ...HookOption) *Hooks {
	h.postLoad = append(h.postLoad, processorHook{fn: fn, hookConfig: newHookConfig(opts)})
	return h
}

// PreDump registers fn to run on the record before projection.
func (h *Hooks) PreDump(fn Processor, opts ...HookOption) *Hooks {
	h.preDump = append(h.preDump, processorHook{fn: fn, hookConfig: newHookConfig(opts)})
	return h
}

// PostDump registers fn to run on the projected plain data.
func (h *Hooks) PostDump(fn Processor, opts ...HookOption) *Hooks {
	h.postDump = append(h.postDump, processorHook{fn: fn, hookConfig: newHookConfig(opts)})
	return h
}

// Validates registers a validator for the field with the given
// attribute name.
func (h *Hooks) Validates(field string, fn FieldValidator, opts ...HookOption) *Hooks {
	h.fieldValidators = append(h.fieldValidators, fieldValidatorHook{field: field, fn: fn, hookConfig: newHookConfig(opts)})
	return h
}

// ValidatesSchema registers a whole-record validator.
func (h *Hooks) ValidatesSchema(fn SchemaValidator, opts ...HookOption) *Hooks {
	h.schemaValidators = append(h.schemaValidators, schemaValidatorHook{fn: fn, hookConfig: newHookConfig(opts)})
	return h
}

// clone copies every list so the result is independent of h.
func (h *Hooks) clone() *Hooks {
	if h == nil {
		return &Hooks{}
	}
	return &Hooks{
		preLoad:          append([]processorHook(nil), h.preLoad...),
		postLoad:         append([]processorHook(nil), h.postLoad...),
		preDump:          append([]processorHook(nil), h.preDump...),
		postDump:         append([]processorHook(nil), h.postDump...),
		fieldValidators:  append([]fieldValidatorHook(nil), h.fieldValidators...),
		schemaValidators: append([]schemaValidatorHook(nil), h.schemaValidators...),
	}
}

// runsOnFieldErrors reports whether any validator opted out of skipping.
func (h *Hooks) runsOnFieldErrors() bool {
	for _, v := range h.fieldValidators {
		if !v.skipOnFieldErrors {
			return true
		}
	}
	for _, v := range h.schemaValidators {
		if !v.skipOnFieldErrors {
			return true
		}
	}
	return false
}

// split returns the hooks that run per item and per collection.
func split(hooks []processorHook, many bool) (item, collection []processorHook) {
	if !many {
		return hooks, nil
	}
	for _, h := range hooks {
		if h.passCollection {
			collection = append(collection, h)
		} else {
			item = append(item, h)
		}
	}
	return item, collection
}

func runProcessors(hooks []processorHook, data any, hc HookContext) (any, error) {
	for _, h := range hooks {
		out, err := h.fn(data, hc)
		if err != nil {
			return nil, err
		}
		data = out
	}
	return data, nil
}
