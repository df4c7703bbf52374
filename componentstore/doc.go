// Package componentstore persists administrator-authored components in
// PostgreSQL. Each row keeps the raw template source, the editable schema
// extracted at admission and the admission outcome, keyed by tenant and
// component name.
package componentstore
