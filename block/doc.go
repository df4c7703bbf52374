// Package block defines block kind descriptors, the Renderer capability and
// the process-wide Registry that maps kind names to descriptors.
//
// The Registry publishes an immutable map through an atomic pointer. Writers
// build a complete replacement map and swap it in under a mutex, so readers
// calling Resolve never lock and never see a partially registered kind.
//
// Initialization order:
//
//	reg := block.NewRegistry()
//	blockregistry.Register(reg, catalog, blockregistry.Options{}) // built-in kinds
//	reg.Seal()                                                     // custom kinds accepted from here on
package block
