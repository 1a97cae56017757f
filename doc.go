// Package bridge turns declarative model structs into schemas with a
// field-based load/dump lifecycle, while a strict validation engine
// stays in charge of coercion and constraint checks.
//
// A model is a plain struct. Field names come from json tags and the
// rest of the declaration from `model` tags (see the model package):
//
//	type User struct {
//		model.Base
//		Name  string `json:"name" model:"minLength:'1'"`
//		Email string `json:"email" model:"format:'email'"`
//		Age   *int   `json:"age" model:"min:'0'"`
//	}
//
// Build extracts the model, maps every field onto a FieldKind and
// returns an immutable SchemaClass:
//
//	class, err := bridge.Build(reflect.TypeOf(User{}), bridge.Options{
//		Unknown: bridge.Exclude,
//		Hooks:   bridge.NewHooks().PreLoad(trimNames),
//	})
//
// Instances created from a class carry their own field filters and
// defaults for batch mode, partial loads and the unknown-key policy:
//   - Load runs pre-load hooks, the engine, field validators, schema
//     validators and post-load hooks, in that order. Every problem is
//     collected into one *BridgeValidationError holding the nested
//     messages, the original input and the subset of it that was valid.
//   - Dump runs pre-dump hooks, projects the record through the engine
//     and runs post-dump hooks. Dump never validates.
//
// Build-time mistakes surface as *ConfigurationError or
// *UnresolvedTypeError and are never corrected silently.
//
// The engine is reached only through the engine.Engine interface, so a
// different engine can be plugged in with Options.Engine. The strict
// package provides the default one.
package bridge
