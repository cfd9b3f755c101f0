package registry

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"ndjobi.org/internal/domain"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

var ErrInvalidCatalog = errors.New("registry: invalid catalog")

// Lookup is the read side of the registry used by resolvers and context stores.
type Lookup interface {
	GetApp(appID string) (domain.App, bool)
	GetNetwork(networkID string) (domain.Network, bool)
	GetNetworkForApp(appID string) (domain.Network, bool)
	DefaultAppID() string
}

// Registry holds the static catalogs of Networks and Apps. It is read-only after Load.
type Registry struct {
	defaultApp string
	networks   []domain.Network
	apps       []domain.App
	netIdx     map[string]int
	appIdx     map[string]int
}

var _ Lookup = (*Registry)(nil)

type catalogDoc struct {
	DefaultApp string           `yaml:"default_app"`
	Networks   []domain.Network `yaml:"networks"`
	Apps       []domain.App     `yaml:"apps"`
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the registry built from the embedded catalog.
func Default() *Registry {
	defaultOnce.Do(func() {
		reg, err := Load(embeddedCatalog)
		if err != nil {
			panic(fmt.Sprintf("embedded catalog: %v", err))
		}
		defaultReg = reg
	})
	return defaultReg
}

// Load parses and validates a YAML catalog document.
func Load(data []byte) (*Registry, error) {
	var doc catalogDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return New(doc.DefaultApp, doc.Networks, doc.Apps)
}

// New builds a registry from in-memory catalogs.
func New(defaultApp string, networks []domain.Network, apps []domain.App) (*Registry, error) {
	r := &Registry{
		defaultApp: defaultApp,
		netIdx:     make(map[string]int, len(networks)),
		appIdx:     make(map[string]int, len(apps)),
	}
	for _, n := range networks {
		if n.ID == "" {
			return nil, fmt.Errorf("%w: network without id", ErrInvalidCatalog)
		}
		if _, dup := r.netIdx[n.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate network %q", ErrInvalidCatalog, n.ID)
		}
		if _, ok := domain.ParseNetworkType(string(n.Type)); !ok {
			return nil, fmt.Errorf("%w: network %q has unknown type %q", ErrInvalidCatalog, n.ID, n.Type)
		}
		if err := checkModules(n.ModulesPolicy); err != nil {
			return nil, fmt.Errorf("%w: network %q: %v", ErrInvalidCatalog, n.ID, err)
		}
		r.netIdx[n.ID] = len(r.networks)
		r.networks = append(r.networks, cloneNetwork(n))
	}
	for _, a := range apps {
		if a.ID == "" {
			return nil, fmt.Errorf("%w: app without id", ErrInvalidCatalog)
		}
		if _, dup := r.appIdx[a.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate app %q", ErrInvalidCatalog, a.ID)
		}
		if _, ok := r.netIdx[a.NetworkID]; !ok {
			return nil, fmt.Errorf("%w: app %q references unknown network %q", ErrInvalidCatalog, a.ID, a.NetworkID)
		}
		if _, ok := domain.ParseAppStatus(string(a.Status)); !ok {
			return nil, fmt.Errorf("%w: app %q has unknown status %q", ErrInvalidCatalog, a.ID, a.Status)
		}
		if err := checkModules(a.EnabledModules); err != nil {
			return nil, fmt.Errorf("%w: app %q: %v", ErrInvalidCatalog, a.ID, err)
		}
		r.appIdx[a.ID] = len(r.apps)
		r.apps = append(r.apps, cloneApp(a))
	}
	for _, n := range r.networks {
		for _, member := range n.MemberApps {
			if _, ok := r.appIdx[member]; !ok {
				return nil, fmt.Errorf("%w: network %q lists unknown app %q", ErrInvalidCatalog, n.ID, member)
			}
		}
	}
	if defaultApp != "" {
		if _, ok := r.appIdx[defaultApp]; !ok {
			return nil, fmt.Errorf("%w: default app %q not found", ErrInvalidCatalog, defaultApp)
		}
	} else if len(r.apps) > 0 {
		r.defaultApp = r.apps[0].ID
	}
	return r, nil
}

func checkModules(m map[domain.ModuleName]bool) error {
	for name := range m {
		if _, ok := domain.ParseModuleName(string(name)); !ok {
			return fmt.Errorf("unknown module %q", name)
		}
	}
	return nil
}

// DefaultAppID names the App used when no context has been persisted yet.
func (r *Registry) DefaultAppID() string { return r.defaultApp }

func (r *Registry) ListNetworks() []domain.Network {
	out := make([]domain.Network, 0, len(r.networks))
	for _, n := range r.networks {
		out = append(out, cloneNetwork(n))
	}
	return out
}

func (r *Registry) ListApps() []domain.App {
	out := make([]domain.App, 0, len(r.apps))
	for _, a := range r.apps {
		out = append(out, cloneApp(a))
	}
	return out
}

func (r *Registry) GetApp(appID string) (domain.App, bool) {
	i, ok := r.appIdx[appID]
	if !ok {
		return domain.App{}, false
	}
	return cloneApp(r.apps[i]), true
}

func (r *Registry) GetNetwork(networkID string) (domain.Network, bool) {
	i, ok := r.netIdx[networkID]
	if !ok {
		return domain.Network{}, false
	}
	return cloneNetwork(r.networks[i]), true
}

// GetNetworkForApp follows the App's network foreign key.
func (r *Registry) GetNetworkForApp(appID string) (domain.Network, bool) {
	app, ok := r.GetApp(appID)
	if !ok {
		return domain.Network{}, false
	}
	return r.GetNetwork(app.NetworkID)
}

func cloneNetwork(n domain.Network) domain.Network {
	n.MemberApps = append([]string(nil), n.MemberApps...)
	policy := make(map[domain.ModuleName]bool, len(n.ModulesPolicy))
	for k, v := range n.ModulesPolicy {
		policy[k] = v
	}
	n.ModulesPolicy = policy
	return n
}

func cloneApp(a domain.App) domain.App {
	mods := make(map[domain.ModuleName]bool, len(a.EnabledModules))
	for k, v := range a.EnabledModules {
		mods[k] = v
	}
	a.EnabledModules = mods
	return a
}
