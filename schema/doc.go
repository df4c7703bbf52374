// Package schema describes the configuration shape of block kinds.
//
// A ConfigSchema is a set of named PropertySchema fields with types, defaults,
// required and editable flags. The package validates and coerces arbitrary
// JSON-decoded configuration against a schema, merges values over declared
// defaults, and loads the immutable catalog of built-in kind schemas from an
// embedded HCL document.
//
// Basic usage:
//
//	cat, err := schema.Builtin()
//	s, err := cat.Describe("Hero")
//	cfg := schema.Coerce(raw, s)
//	if errs := schema.ValidateConfig(cfg, s); len(errs) == 0 {
//	    cfg = schema.MergeDefaults(cfg, s)
//	}
package schema
