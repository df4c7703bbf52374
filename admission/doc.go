// Package admission validates administrator supplied block components.
//
// A component is Go html/template source that defines a template named after
// the component:
//
//	{{define "Card"}}<div class="card"><h2>{{default "Untitled" .title}}</h2>{{.children}}</div>{{end}}
//
// Source without that definition is admitted with a warning and renders its
// top-level content instead.
//
// Pipeline.Admit checks the name, parses the source, runs static checks and
// infers an editable configuration schema from how the template reads its
// data. Admission never registers anything: on success the caller persists
// the submission and registers Result.Descriptor() with the block registry.
//
// DraftValidator runs admissions for evolving drafts after a debounce delay,
// cancelling superseded runs so only the latest result per draft is delivered.
package admission
