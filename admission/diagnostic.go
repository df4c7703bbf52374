package admission

import "fmt"

// Diagnostic codes
const (
	CodeNameFormat          = "name_format"
	CodeNameReserved        = "name_reserved"
	CodeSourceEmpty         = "source_empty"
	CodeSourceTooLarge      = "source_too_large"
	CodeSyntax              = "syntax"
	CodeMissingExport       = "missing_export"
	CodeUndefinedTemplate   = "undefined_template"
	CodeDisallowedConstruct = "disallowed_construct"
	CodeUnsafeContext       = "unsafe_context"
	CodeCanceled            = "canceled"

	CodeUnusedTemplate       = "unused_template"
	CodeUnusedVariable       = "unused_variable"
	CodeEmptyBody            = "empty_body"
	CodeOutsideDefine        = "outside_define"
	CodeExtractionIncomplete = "extraction_incomplete"
	CodeTrialRender          = "trial_render"
)

// Diagnostic is one admission finding. Line is 1-based; 0 means the finding
// is not tied to a source line.
type Diagnostic struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

func (d Diagnostic) String() string {
	if d.Line > 0 {
		return fmt.Sprintf("line %d: %s", d.Line, d.Message)
	}
	return d.Message
}
