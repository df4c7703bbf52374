package admission

import (
	"html/template"
	"reflect"
	"strings"
)

// allowedBuiltins are the text/template builtins components may call.
// call, html, js and urlquery are excluded.
var allowedBuiltins = []string{
	"and", "or", "not", "len", "index", "slice",
	"eq", "ne", "lt", "le", "gt", "ge",
	"print", "printf", "println",
}

// componentFuncs are the extra functions available to components.
var componentFuncs = template.FuncMap{
	"default": defaultFunc,
	"upper":   strings.ToUpper,
	"lower":   strings.ToLower,
	"trim":    strings.TrimSpace,
}

// parseFuncs lists every function name for the parse-only pass. Parse only
// checks names, so builtins map to placeholders.
func parseFuncs() map[string]any {
	funcs := make(map[string]any, len(allowedBuiltins)+len(componentFuncs))
	for _, name := range allowedBuiltins {
		funcs[name] = true
	}
	for name, fn := range componentFuncs {
		funcs[name] = fn
	}
	return funcs
}

// defaultFunc returns value unless it is nil, an empty string or an empty
// collection, in which case it returns def. false and 0 are kept.
func defaultFunc(def, value any) any {
	if value == nil {
		return def
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		if v.Len() == 0 {
			return def
		}
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return def
		}
	}
	return value
}
