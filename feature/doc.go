// Package feature decides which block kinds and routes a tenant may use.
//
// The gate is fail-open: a flag it does not manage is enabled for every
// tenant unless the tenant explicitly disables it. A managed flag is enabled
// only for tenants that list it.
package feature
