// Package tenantstore reads tenant feature flags and theme settings from
// Redis and caches each tenant's snapshot for a short TTL.
//
// Keys:
//
//	tenant:<id>:features:enabled   set of flags switched on
//	tenant:<id>:features:disabled  set of flags switched off
//	tenant:<id>:theme              hash of theme tokens
//
// A tenant with no keys gets an empty snapshot, which the feature gate
// treats as default-open for flags it does not manage.
package tenantstore
