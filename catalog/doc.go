// Package catalog orchestrates the block kind lifecycle: it seeds the
// built-in kinds, seals the registry, restores persisted custom components
// and runs new submissions through admission, persistence and registration
// in that order.
//
// Custom kind names are unique across the process. The first tenant to
// register a name owns it until the component is deleted.
package catalog
