// Package blockregistry provides the built-in block kinds and seeds a
// block.Registry with them.
//
// Schemas come from the embedded schema catalog; this package pairs each
// catalog entry with its renderer. Register must run before the registry is
// sealed.
package blockregistry
