package ctxstore

import (
	"net/http"
	"strings"

	"ndjobi.org/internal/domain"
)

// Outbound request metadata derived from a context.
const (
	HeaderAppID       = "X-App-Id"
	HeaderTenant      = "X-Dev-Tenant"
	HeaderNetwork     = "X-Dev-Network"
	HeaderNetworkType = "X-Dev-Network-Type"
	HeaderMode        = "X-Dev-Mode"
	HeaderActor       = "X-Dev-Actor"
	HeaderRealm       = "X-Dev-Realm"
)

// DeriveHeaders projects ec into request headers. The actor is included only in delegated mode.
func DeriveHeaders(ec domain.ExecutionContext) map[string]string {
	h := map[string]string{
		HeaderAppID:       ec.AppID,
		HeaderTenant:      ec.TenantID,
		HeaderNetwork:     ec.NetworkID,
		HeaderNetworkType: string(ec.NetworkType),
		HeaderMode:        string(ec.Mode),
	}
	if ec.Delegated() {
		h[HeaderActor] = ec.DelegatedActorID
		if ec.DelegatedRealm != "" {
			h[HeaderRealm] = string(ec.DelegatedRealm)
		}
	}
	return h
}

// ApplyHeaders sets the derived headers on h.
func ApplyHeaders(h http.Header, ec domain.ExecutionContext) {
	for k, v := range DeriveHeaders(ec) {
		h.Set(k, v)
	}
}

// FromHeaders rebuilds a context from request headers. Missing fields are left empty;
// a delegated mode without an actor becomes service mode.
func FromHeaders(h http.Header) domain.ExecutionContext {
	ec := domain.ExecutionContext{
		AppID:     strings.TrimSpace(h.Get(HeaderAppID)),
		TenantID:  strings.TrimSpace(h.Get(HeaderTenant)),
		NetworkID: strings.TrimSpace(h.Get(HeaderNetwork)),
		Mode:      domain.ModeService,
	}
	if nt, ok := domain.ParseNetworkType(h.Get(HeaderNetworkType)); ok {
		ec.NetworkType = nt
	}
	mode, _ := domain.ParseIdentityMode(h.Get(HeaderMode))
	actor := strings.TrimSpace(h.Get(HeaderActor))
	if mode == domain.ModeDelegated && actor != "" {
		ec.Mode = domain.ModeDelegated
		ec.DelegatedActorID = actor
		ec.DelegatedRealm = domain.RealmCitizen
		if realm, ok := domain.ParseRealm(h.Get(HeaderRealm)); ok {
			ec.DelegatedRealm = realm
		}
	}
	return ec
}
