// Package ctxstore persists the caller's execution context across sessions.
package ctxstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ndjobi.org/internal/audit"
	"ndjobi.org/internal/domain"
	"ndjobi.org/internal/obs"
	"ndjobi.org/internal/registry"
)

// Persisted keys. Absence means "use the default".
const (
	KeyAppID            = "comms.app_id"
	KeyTenantID         = "comms.tenant_id"
	KeyNetworkID        = "comms.network_id"
	KeyNetworkType      = "comms.network_type"
	KeyMode             = "comms.mode"
	KeyDelegatedActorID = "comms.delegated_actor_id"
	KeyDelegatedRealm   = "comms.delegated_realm"
)

// Keys lists every persisted key.
func Keys() []string {
	return []string{KeyAppID, KeyTenantID, KeyNetworkID, KeyNetworkType, KeyMode, KeyDelegatedActorID, KeyDelegatedRealm}
}

// Store reads and writes an ExecutionContext through a KV backend.
type Store struct {
	kv      KV
	catalog registry.Lookup
}

func New(kv KV, catalog registry.Lookup) *Store {
	return &Store{kv: kv, catalog: catalog}
}

// Load rebuilds the context. Absent fields come from the stored App, or the default App when
// the stored one is unknown, and from its Network. Unrecognised enum strings fall back to defaults,
// and backend read errors count as absent.
func (s *Store) Load(ctx context.Context) domain.ExecutionContext {
	raw := make(map[string]string, 7)
	for _, key := range Keys() {
		v, ok, err := s.kv.Get(ctx, key)
		if err != nil {
			obs.Warn("context read failed", map[string]any{"key": key, "error": err.Error()})
			continue
		}
		if v = strings.TrimSpace(v); ok && v != "" {
			raw[key] = v
		}
	}
	return s.resolve(raw)
}

func (s *Store) resolve(raw map[string]string) domain.ExecutionContext {
	appID := raw[KeyAppID]
	if appID == "" {
		appID = s.catalog.DefaultAppID()
	}
	app, ok := s.catalog.GetApp(appID)
	if !ok {
		app, _ = s.catalog.GetApp(s.catalog.DefaultAppID())
	}

	ec := domain.ExecutionContext{
		AppID:     appID,
		TenantID:  valueOr(raw[KeyTenantID], app.TenantID),
		NetworkID: valueOr(raw[KeyNetworkID], app.NetworkID),
		Mode:      domain.ModeService,
	}

	ec.NetworkType = domain.NetworkCommercial
	if nt, ok := domain.ParseNetworkType(raw[KeyNetworkType]); ok {
		ec.NetworkType = nt
	} else if network, ok := s.catalog.GetNetwork(ec.NetworkID); ok {
		ec.NetworkType = network.Type
	}

	if mode, ok := domain.ParseIdentityMode(raw[KeyMode]); ok && mode == domain.ModeDelegated {
		actor := raw[KeyDelegatedActorID]
		if actor == "" {
			obs.Warn("delegated context without actor, using service mode", map[string]any{"app_id": ec.AppID})
			return ec
		}
		ec.Mode = domain.ModeDelegated
		ec.DelegatedActorID = actor
		ec.DelegatedRealm = domain.RealmCitizen
		if realm, ok := domain.ParseRealm(raw[KeyDelegatedRealm]); ok {
			ec.DelegatedRealm = realm
		}
	}
	return ec
}

// Save persists every field of ec and removes delegated keys when ec is not delegated.
func (s *Store) Save(ctx context.Context, ec domain.ExecutionContext) error {
	if err := ec.Validate(); err != nil {
		return err
	}
	set := map[string]string{
		KeyAppID:       ec.AppID,
		KeyTenantID:    ec.TenantID,
		KeyNetworkID:   ec.NetworkID,
		KeyNetworkType: string(ec.NetworkType),
		KeyMode:        string(ec.Mode),
	}
	var del []string
	if ec.Delegated() {
		set[KeyDelegatedActorID] = ec.DelegatedActorID
		set[KeyDelegatedRealm] = string(ec.DelegatedRealm)
	} else {
		del = []string{KeyDelegatedActorID, KeyDelegatedRealm}
	}

	if err := s.write(ctx, set, del); err != nil {
		return fmt.Errorf("save context: %w", err)
	}

	fields := map[string]any{
		"app_id":     ec.AppID,
		"tenant_id":  ec.TenantID,
		"network_id": ec.NetworkID,
		"mode":       string(ec.Mode),
	}
	if ec.Delegated() {
		fields["delegated_actor_id"] = ec.DelegatedActorID
		fields["delegated_realm"] = string(ec.DelegatedRealm)
	}
	_ = audit.LogEvent(ctx, "context.switched", fields)
	return nil
}

func (s *Store) write(ctx context.Context, set map[string]string, del []string) error {
	if b, ok := s.kv.(Batcher); ok {
		return b.Apply(ctx, set, del)
	}
	for _, key := range Keys() {
		if v, ok := set[key]; ok {
			if err := s.kv.Set(ctx, key, v); err != nil {
				return err
			}
		}
	}
	for _, key := range del {
		if err := s.kv.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// ErrUnknownApp is returned when a switch targets an App missing from the catalog.
var ErrUnknownApp = errors.New("unknown app")

// Patch is a partial context change. Empty fields keep their current value.
type Patch struct {
	AppID   string
	Mode    string
	ActorID string
	Realm   string
}

// Update applies p on top of the loaded context and saves the result. Switching apps also
// moves tenant and network to the App's. Leaving delegated mode drops the actor and realm;
// entering it without a realm assumes citizen.
func (s *Store) Update(ctx context.Context, p Patch) (domain.ExecutionContext, error) {
	ec := s.Load(ctx)
	if appID := strings.TrimSpace(p.AppID); appID != "" {
		app, ok := s.catalog.GetApp(appID)
		if !ok {
			return domain.ExecutionContext{}, fmt.Errorf("%w: %q", ErrUnknownApp, appID)
		}
		ec.AppID = app.ID
		ec.TenantID = app.TenantID
		ec.NetworkID = app.NetworkID
		if network, ok := s.catalog.GetNetwork(app.NetworkID); ok {
			ec.NetworkType = network.Type
		}
	}
	if p.Mode != "" {
		mode, ok := domain.ParseIdentityMode(p.Mode)
		if !ok {
			return domain.ExecutionContext{}, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidContext, p.Mode)
		}
		ec.Mode = mode
	}
	if ec.Delegated() {
		if actor := strings.TrimSpace(p.ActorID); actor != "" {
			ec.DelegatedActorID = actor
		}
		if p.Realm != "" {
			realm, ok := domain.ParseRealm(p.Realm)
			if !ok {
				return domain.ExecutionContext{}, fmt.Errorf("%w: unknown realm %q", domain.ErrInvalidContext, p.Realm)
			}
			ec.DelegatedRealm = realm
		}
		if ec.DelegatedRealm == "" {
			ec.DelegatedRealm = domain.RealmCitizen
		}
	} else {
		ec.DelegatedActorID = ""
		ec.DelegatedRealm = ""
	}
	if err := s.Save(ctx, ec); err != nil {
		return domain.ExecutionContext{}, err
	}
	return ec, nil
}

// Switch points the context at appID with that App's tenant and network and keeps the identity mode.
func (s *Store) Switch(ctx context.Context, appID string) (domain.ExecutionContext, error) {
	if strings.TrimSpace(appID) == "" {
		return domain.ExecutionContext{}, fmt.Errorf("%w: %q", ErrUnknownApp, appID)
	}
	return s.Update(ctx, Patch{AppID: appID})
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
