// Package semblocks composes tenant pages from typed content blocks and
// renders them behind per-tenant feature flags.
//
// # Architecture
//
// A page is an ordered list of block instances. Each instance names a block
// kind and carries a configuration map. Rendering resolves every kind
// through the block registry and gates it on the tenant's feature snapshot.
// Configuration is coerced against the kind's schema before its renderer
// runs:
//
//	┌─────────────────────────────────────┐
//	│          Render Dispatcher          │  Eager and deferred kinds
//	│  (gate, coerce, render, placeholder)│  Placeholder on failure
//	└─────────────────────────────────────┘
//	           ↓ resolves kinds in
//	┌─────────────────────────────────────┐
//	│          Block Registry             │  Built-in kinds, sealed
//	│   (descriptors, schemas, renderers) │  Custom kinds at runtime
//	└─────────────────────────────────────┘
//	           ↑ admits custom kinds via
//	┌─────────────────────────────────────┐
//	│        Admission Pipeline           │  Parse, analyze, infer
//	│  (template source to descriptor)    │  schema, sanitize output
//	└─────────────────────────────────────┘
//
// A failed block never fails the page. It is replaced by a placeholder node
// whose reason tells editors what went wrong, while site visitors see an
// empty container of the block's declared size.
//
// # Packages
//
// Domain packages:
//   - schema: configuration schemas, value coercion and the built-in kind catalog
//   - block: block descriptors and the concurrent kind registry
//   - blockregistry: renderers for the built-in kinds
//   - admission: custom component validation, schema inference and draft debouncing
//   - page: page documents and their instance operations
//   - render: the dispatcher, render trees and preview versioning
//   - feature: tenant flag snapshots and the flag gate
//   - catalog: startup restore and the custom component lifecycle
//
// Storage packages:
//   - pagestore: page documents in a NATS JetStream KV bucket
//   - componentstore: custom component source in PostgreSQL
//   - tenantstore: tenant flags and themes in Redis with a local TTL cache
//
// Infrastructure packages:
//   - config: layered JSON and YAML configuration with environment overrides
//   - errors: error classification (transient, invalid, fatal)
//   - metric: Prometheus registry and core service metrics
//   - health: dependency health checks and the /healthz handler
//   - natsclient: NATS connection management and KV helpers
//   - pkg/cache, pkg/retry, pkg/worker: generic TTL cache, backoff and worker pool
//
// # Binary
//
// The semblocks command serves page previews and the component API:
//
//	./bin/semblocks --config configs/semblocks.yaml
//
// It also checks a component file without starting any dependency:
//
//	./bin/semblocks --admit Card.tmpl
package semblocks
