package capability

import (
	"ndjobi.org/internal/domain"
	"ndjobi.org/internal/obs"
)

const (
	PlatformName       = "ndjobi"
	DefaultVersion     = "1.0.0"
	DefaultRealtimeURL = "/v1/realtime"
)

// DisabledReason explains why a module is unavailable in a context.
type DisabledReason string

const (
	ReasonNotInGovNetwork DisabledReason = "NOT_IN_GOV_NETWORK"
	ReasonRealmNotGov     DisabledReason = "REALM_NOT_GOV"
	ReasonModuleDisabled  DisabledReason = "MODULE_DISABLED"
	ReasonNotEntitled     DisabledReason = "NOT_ENTITLED"
	ReasonNetworkPolicy   DisabledReason = "NETWORK_POLICY"
)

// Realtime describes the push transport of a module.
type Realtime struct {
	SSEURL string `json:"sse_url"`
}

// ModuleConfig is the resolution of one module. Exactly one of Enabled or DisabledReason is set.
type ModuleConfig struct {
	Enabled        bool           `json:"enabled"`
	DisabledReason DisabledReason `json:"disabled_reason,omitempty"`
	Realtime       *Realtime      `json:"realtime,omitempty"`
	RealmRequired  domain.Realm   `json:"realm_required,omitempty"`
}

// Capabilities is the resolved bundle for one execution context. It is never persisted.
type Capabilities struct {
	Platform    string                             `json:"platform"`
	Version     string                             `json:"version"`
	TenantID    string                             `json:"tenant_id"`
	AppID       string                             `json:"app_id"`
	NetworkID   string                             `json:"network_id"`
	NetworkType domain.NetworkType                 `json:"network_type"`
	Modules     map[domain.ModuleName]ModuleConfig `json:"modules"`
}

// Enabled reports whether module resolved to enabled.
func (c *Capabilities) Enabled(module domain.ModuleName) bool {
	if c == nil {
		return false
	}
	return c.Modules[module].Enabled
}

// Lookup is the part of the registry the resolver needs.
type Lookup interface {
	GetApp(appID string) (domain.App, bool)
	GetNetwork(networkID string) (domain.Network, bool)
}

// Resolver maps an execution context onto per-module availability.
type Resolver struct {
	lookup      Lookup
	version     string
	realtimeURL string
}

// Option configures Resolver.
type Option func(*Resolver)

func WithVersion(v string) Option {
	return func(r *Resolver) {
		if v != "" {
			r.version = v
		}
	}
}

func WithRealtimeURL(url string) Option {
	return func(r *Resolver) {
		if url != "" {
			r.realtimeURL = url
		}
	}
}

func NewResolver(lookup Lookup, opts ...Option) *Resolver {
	r := &Resolver{
		lookup:      lookup,
		version:     DefaultVersion,
		realtimeURL: DefaultRealtimeURL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns nil, false when the App or its Network cannot be found.
// The network is taken from the context; callers that switched apps must update it too.
// Its type always comes from the registry: a network type claimed by the context is ignored.
func (r *Resolver) Resolve(ec domain.ExecutionContext) (*Capabilities, bool) {
	app, ok := r.lookup.GetApp(ec.AppID)
	if !ok {
		return nil, false
	}
	networkID := ec.NetworkID
	if networkID == "" {
		networkID = app.NetworkID
	}
	network, ok := r.lookup.GetNetwork(networkID)
	if !ok {
		return nil, false
	}

	caps := &Capabilities{
		Platform:    PlatformName,
		Version:     r.version,
		TenantID:    ec.TenantID,
		AppID:       app.ID,
		NetworkID:   network.ID,
		NetworkType: network.Type,
		Modules:     make(map[domain.ModuleName]ModuleConfig, 4),
	}
	if caps.TenantID == "" {
		caps.TenantID = app.TenantID
	}
	for _, module := range domain.AllModules() {
		cfg := r.resolveModule(module, app, network, ec)
		caps.Modules[module] = cfg
		outcome := "enabled"
		if !cfg.Enabled {
			outcome = string(cfg.DisabledReason)
		}
		obs.CapabilityResolutions.WithLabelValues(string(module), outcome).Inc()
	}
	return caps, true
}

// resolveModule applies, in order: app opt-out, network policy, module-specific gating.
func (r *Resolver) resolveModule(module domain.ModuleName, app domain.App, network domain.Network, ec domain.ExecutionContext) ModuleConfig {
	if !app.EnabledModules[module] {
		return ModuleConfig{DisabledReason: ReasonModuleDisabled}
	}
	if !network.ModulesPolicy[module] {
		return ModuleConfig{DisabledReason: ReasonNetworkPolicy}
	}

	var cfg ModuleConfig
	if module == domain.ModuleICorrespondance {
		if network.Type != domain.NetworkGovernment {
			return ModuleConfig{DisabledReason: ReasonNotInGovNetwork, RealmRequired: domain.RealmGovernment}
		}
		if ec.Delegated() && ec.DelegatedRealm != domain.RealmGovernment {
			return ModuleConfig{DisabledReason: ReasonRealmNotGov, RealmRequired: domain.RealmGovernment}
		}
		cfg.RealmRequired = domain.RealmGovernment
	}

	cfg.Enabled = true
	if module == domain.ModuleICom {
		cfg.Realtime = &Realtime{SSEURL: r.realtimeURL}
	}
	return cfg
}
