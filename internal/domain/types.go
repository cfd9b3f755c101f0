package domain

import (
	"errors"
	"strings"
)

// NetworkType classifies a network's policy family.
type NetworkType string

const (
	NetworkCommercial NetworkType = "commercial"
	NetworkGovernment NetworkType = "government"
)

// AppStatus is the lifecycle status of a registered App.
type AppStatus string

const (
	AppActive    AppStatus = "active"
	AppInactive  AppStatus = "inactive"
	AppSuspended AppStatus = "suspended"
)

// ModuleName identifies one of the platform capability areas.
type ModuleName string

const (
	ModuleICom            ModuleName = "icom"
	ModuleIBoite          ModuleName = "iboite"
	ModuleIAsted          ModuleName = "iasted"
	ModuleICorrespondance ModuleName = "icorrespondance"
)

var allModules = []ModuleName{ModuleICom, ModuleIBoite, ModuleIAsted, ModuleICorrespondance}

// AllModules returns every module in declaration order.
func AllModules() []ModuleName {
	return append([]ModuleName(nil), allModules...)
}

// IdentityMode tells whether the caller acts as the App itself or on behalf of an individual.
type IdentityMode string

const (
	ModeService   IdentityMode = "service"
	ModeDelegated IdentityMode = "delegated"
)

// Realm is the category of a delegated actor.
type Realm string

const (
	RealmCitizen    Realm = "citizen"
	RealmGovernment Realm = "government"
	RealmBusiness   Realm = "business"
)

// Network groups Apps that share module availability rules.
type Network struct {
	ID            string              `json:"network_id" yaml:"network_id"`
	Name          string              `json:"name" yaml:"name"`
	Type          NetworkType         `json:"network_type" yaml:"network_type"`
	MemberApps    []string            `json:"member_apps" yaml:"member_apps"`
	ModulesPolicy map[ModuleName]bool `json:"modules_policy" yaml:"modules_policy"`
}

// HasMember reports whether appID is listed as a member of the network.
func (n Network) HasMember(appID string) bool {
	for _, id := range n.MemberApps {
		if id == appID {
			return true
		}
	}
	return false
}

// App is a tenant-owned application consuming platform modules.
type App struct {
	ID             string              `json:"app_id" yaml:"app_id"`
	Name           string              `json:"name" yaml:"name"`
	TenantID       string              `json:"tenant_id" yaml:"tenant_id"`
	NetworkID      string              `json:"network_id" yaml:"network_id"`
	Status         AppStatus           `json:"status" yaml:"status"`
	EnabledModules map[ModuleName]bool `json:"enabled_modules" yaml:"enabled_modules"`
}

// ErrInvalidContext is returned when an ExecutionContext breaks its invariants.
var ErrInvalidContext = errors.New("invalid execution context")

// ExecutionContext is the caller's current app, tenant, network and identity.
type ExecutionContext struct {
	AppID            string       `json:"app_id"`
	TenantID         string       `json:"tenant_id"`
	NetworkID        string       `json:"network_id"`
	NetworkType      NetworkType  `json:"network_type"`
	Mode             IdentityMode `json:"mode"`
	DelegatedActorID string       `json:"delegated_actor_id,omitempty"`
	DelegatedRealm   Realm        `json:"delegated_realm,omitempty"`
}

// Delegated reports whether the caller acts on behalf of an individual.
func (ec ExecutionContext) Delegated() bool { return ec.Mode == ModeDelegated }

// Validate checks that delegated identity fields are present iff the mode is delegated.
func (ec ExecutionContext) Validate() error {
	if strings.TrimSpace(ec.AppID) == "" {
		return errors.Join(ErrInvalidContext, errors.New("app id is required"))
	}
	if _, ok := ParseIdentityMode(string(ec.Mode)); !ok {
		return errors.Join(ErrInvalidContext, errors.New("unknown mode "+string(ec.Mode)))
	}
	if ec.Delegated() {
		if ec.DelegatedActorID == "" || ec.DelegatedRealm == "" {
			return errors.Join(ErrInvalidContext, errors.New("delegated mode requires actor and realm"))
		}
		if _, ok := ParseRealm(string(ec.DelegatedRealm)); !ok {
			return errors.Join(ErrInvalidContext, errors.New("unknown realm "+string(ec.DelegatedRealm)))
		}
		return nil
	}
	if ec.DelegatedActorID != "" || ec.DelegatedRealm != "" {
		return errors.Join(ErrInvalidContext, errors.New("service mode cannot carry delegated identity"))
	}
	return nil
}

// ParseModuleName maps a raw string onto the closed module enumeration.
func ParseModuleName(s string) (ModuleName, bool) {
	m := ModuleName(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range allModules {
		if m == known {
			return m, true
		}
	}
	return "", false
}

func ParseNetworkType(s string) (NetworkType, bool) {
	switch t := NetworkType(strings.ToLower(strings.TrimSpace(s))); t {
	case NetworkCommercial, NetworkGovernment:
		return t, true
	}
	return "", false
}

func ParseIdentityMode(s string) (IdentityMode, bool) {
	switch m := IdentityMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeService, ModeDelegated:
		return m, true
	}
	return "", false
}

func ParseRealm(s string) (Realm, bool) {
	switch r := Realm(strings.ToLower(strings.TrimSpace(s))); r {
	case RealmCitizen, RealmGovernment, RealmBusiness:
		return r, true
	}
	return "", false
}

func ParseAppStatus(s string) (AppStatus, bool) {
	switch st := AppStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case AppActive, AppInactive, AppSuspended:
		return st, true
	}
	return "", false
}
