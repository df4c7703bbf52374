// Package render turns a page into an ordered tree of renderable nodes.
//
// Dispatcher.Render walks the page in order. For each instance it consults
// the feature gate and the block registry, validates and coerces the
// configuration, and merges it over the kind's defaults. Eager kinds are
// rendered on the spot. Deferred kinds become loading boundaries whose
// renderer runs on a worker pool, or lazily on first Await when no pool is
// configured, without holding up their siblings.
//
// Rendering is fail-soft per instance: every problem becomes a placeholder
// node with a machine-readable Reason, and the page always renders.
//
// Basic usage:
//
//	d := render.NewDispatcher(registry, gate, render.WithPool(pool))
//	tree := d.Render(ctx, pg, tenantConfig)
//	nodes := tree.Resolve(ctx)
package render
