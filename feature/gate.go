package feature

// TenantConfig is a tenant's feature snapshot for one render pass. It is
// treated as read-only once handed to the gate.
type TenantConfig struct {
	TenantID string            `json:"tenantId"`
	Enabled  FlagSet           `json:"enabled"`
	Disabled FlagSet           `json:"disabled"`
	Theme    map[string]string `json:"theme,omitempty"`
}

// Clone returns a deep copy of the configuration
func (t TenantConfig) Clone() TenantConfig {
	out := TenantConfig{
		TenantID: t.TenantID,
		Enabled:  t.Enabled.Clone(),
		Disabled: t.Disabled.Clone(),
	}
	if t.Theme != nil {
		out.Theme = make(map[string]string, len(t.Theme))
		for k, v := range t.Theme {
			out.Theme[k] = v
		}
	}
	return out
}

// Route is a navigation entry optionally guarded by a flag.
type Route struct {
	Path  string `json:"path"`
	Title string `json:"title"`
	Flag  string `json:"flag,omitempty"`
}

// Gate evaluates flags against tenant snapshots. It is immutable and safe
// for concurrent use.
type Gate struct {
	known     FlagSet
	kindFlags map[string]string
}

// NewGate creates a gate managing the known flags. kindFlags maps block kinds
// to the flag that guards them; empty entries are dropped.
func NewGate(known []string, kindFlags map[string]string) *Gate {
	g := &Gate{known: NewFlagSet(known...), kindFlags: make(map[string]string, len(kindFlags))}
	for kind, flag := range kindFlags {
		if kind == "" || flag == "" {
			continue
		}
		g.kindFlags[kind] = flag
		g.known[flag] = struct{}{}
	}
	return g
}

// IsEnabled decides whether tenant may use flag.
//
// Explicitly disabled flags are off and explicitly enabled flags are on. A
// flag the gate manages is off unless enabled. Any other flag, including the
// empty flag, is on.
func (g *Gate) IsEnabled(tenant TenantConfig, flag string) bool {
	if flag == "" {
		return true
	}
	if tenant.Disabled.Has(flag) {
		return false
	}
	if tenant.Enabled.Has(flag) {
		return true
	}
	if g != nil && g.known.Has(flag) {
		return false
	}
	return true
}

// KindFlag returns the flag configured for kind, or "".
func (g *Gate) KindFlag(kind string) string {
	if g == nil {
		return ""
	}
	return g.kindFlags[kind]
}

// KindEnabled checks kind's configured flag, falling back to fallback (the
// descriptor's own flag) when none is configured.
func (g *Gate) KindEnabled(tenant TenantConfig, kind, fallback string) (flag string, enabled bool) {
	flag = g.KindFlag(kind)
	if flag == "" {
		flag = fallback
	}
	return flag, g.IsEnabled(tenant, flag)
}

// FilterRoutes keeps the routes tenant may see, in their original order.
func (g *Gate) FilterRoutes(tenant TenantConfig, routes []Route) []Route {
	out := make([]Route, 0, len(routes))
	for _, r := range routes {
		if g.IsEnabled(tenant, r.Flag) {
			out = append(out, r)
		}
	}
	return out
}

// Known returns the managed flags in lexical order
func (g *Gate) Known() []string {
	if g == nil {
		return nil
	}
	return g.known.Sorted()
}

// KindFlags returns a copy of the kind to flag mapping
func (g *Gate) KindFlags() map[string]string {
	out := make(map[string]string)
	if g == nil {
		return out
	}
	for k, v := range g.kindFlags {
		out[k] = v
	}
	return out
}

// EnabledFlags lists the managed flags tenant has on.
func (g *Gate) EnabledFlags(tenant TenantConfig) []string {
	var out []string
	for _, f := range g.Known() {
		if g.IsEnabled(tenant, f) {
			out = append(out, f)
		}
	}
	return out
}
