// Package config loads and validates semblocks process configuration.
//
// Configuration is read from one or more file layers (JSON by default, YAML
// when the file ends in .yaml or .yml), deep-merged over built-in defaults,
// then overridden by SEMBLOCKS_* environment variables:
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.json")
//	loader.AddLayer("configs/production.yaml")
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//
// Durations accept Go duration strings ("250ms", "2s") and a day suffix ("7d").
//
// SafeConfig wraps a Config for concurrent readers: Get returns a deep copy and
// Update swaps in a validated replacement.
package config
