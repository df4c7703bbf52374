// Package errors provides the error classification used across semblocks.
//
// Every error leaving a package boundary falls into one of three classes:
//
//   - Transient: temporary conditions (storage unreachable, timeouts); retry may succeed
//   - Invalid: bad input (malformed descriptors, unknown pages, schema violations)
//   - Fatal: unrecoverable states (corrupt persisted data, programming errors)
//
// Wrapping follows the "component.method: action failed: %w" format:
//
//	if err := store.Save(ctx, p); err != nil {
//	    return errors.WrapTransient(err, "PageStore", "Save", "put page")
//	}
//
// The generic Wrap keeps whatever class the wrapped error already carries, so
// classification survives arbitrary wrapping chains and works with the standard
// errors.Is and errors.As.
//
// Render-time failures never surface as errors at all: the render package turns them
// into placeholder nodes. This package is for the admin and storage paths.
package errors
