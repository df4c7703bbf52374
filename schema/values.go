package schema

// Safe accessors for validated configuration maps. Renderers use them so a
// value of an unexpected shape falls back to defaultVal instead of panicking.

// GetString extracts a string value
func GetString(cfg map[string]any, key string, defaultVal string) string {
	if val, ok := cfg[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return defaultVal
}

// GetInt extracts an integer value
func GetInt(cfg map[string]any, key string, defaultVal int) int {
	if val, ok := cfg[key]; ok {
		if i, ok := toInt(val); ok {
			return i
		}
	}
	return defaultVal
}

// GetFloat64 extracts a numeric value
func GetFloat64(cfg map[string]any, key string, defaultVal float64) float64 {
	if val, ok := cfg[key]; ok {
		if f, ok := toFloat(val); ok {
			return f
		}
	}
	return defaultVal
}

// GetBool extracts a boolean value
func GetBool(cfg map[string]any, key string, defaultVal bool) bool {
	if val, ok := cfg[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// GetStringSlice extracts a string slice. Mixed slices yield defaultVal.
func GetStringSlice(cfg map[string]any, key string, defaultVal []string) []string {
	val, ok := cfg[key]
	if !ok {
		return defaultVal
	}
	items, ok := asSlice(val)
	if !ok {
		return defaultVal
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		str, ok := item.(string)
		if !ok {
			return defaultVal
		}
		out = append(out, str)
	}
	return out
}

// GetMapSlice extracts a slice of objects, skipping non-object elements.
func GetMapSlice(cfg map[string]any, key string) []map[string]any {
	items, ok := asSlice(cfg[key])
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// GetMap extracts a nested object
func GetMap(cfg map[string]any, key string) (map[string]any, bool) {
	m, ok := cfg[key].(map[string]any)
	return m, ok
}
