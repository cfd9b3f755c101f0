package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"ndjobi.org/internal/audit"
	"ndjobi.org/internal/capability"
	"ndjobi.org/internal/ctxstore"
	"ndjobi.org/internal/obs"
	"ndjobi.org/internal/platform"
	"ndjobi.org/internal/realtime"
	"ndjobi.org/internal/registry"
)

const serviceName = "ndjobi-api"

// ReadyProbe pings the context database when one is configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Deps are the collaborators the API serves.
type Deps struct {
	Ready     readinessChecker
	Catalog   *registry.Registry
	Resolver  *capability.Resolver
	Platform  *platform.Store
	Simulator *realtime.Simulator
	Contexts  *ctxstore.Store
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe readinessChecker
	version    string

	catalog   *registry.Registry
	resolver  *capability.Resolver
	platform  *platform.Store
	simulator *realtime.Simulator
	contexts  *ctxstore.Store

	rateBurst  int
	ratePerSec int
}

// Option configures API.
type Option func(*API)

// WithRateLimit sets the per-client token bucket.
func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		if burst > 0 && perSecond > 0 {
			a.rateBurst = burst
			a.ratePerSec = perSecond
		}
	}
}

func New(deps Deps, version string, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: deps.Ready,
		version:    version,
		catalog:    deps.Catalog,
		resolver:   deps.Resolver,
		platform:   deps.Platform,
		simulator:  deps.Simulator,
		contexts:   deps.Contexts,
		rateBurst:  20,
		ratePerSec: 10,
	}
	if a.readyProbe == nil {
		a.readyProbe = ReadyProbe{}
	}
	if a.catalog == nil {
		a.catalog = registry.Default()
	}
	if a.resolver == nil {
		a.resolver = capability.NewResolver(a.catalog, capability.WithVersion(version))
	}
	if a.platform == nil {
		a.platform = platform.New(nil)
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	// registry, context and capabilities
	a.mux.HandleFunc("/v1/apps", a.handleApps)
	a.mux.HandleFunc("/v1/networks", a.handleNetworks)
	a.mux.HandleFunc("/v1/capabilities", a.handleCapabilities)
	a.mux.HandleFunc("/v1/context", a.handleContext)

	// mock platform
	a.mux.HandleFunc("/v1/conversations", a.handleConversationsCollection)
	a.mux.HandleFunc("/v1/conversations/", a.handleConversationResource)
	a.mux.HandleFunc("/v1/threads", a.handleThreadsCollection)
	a.mux.HandleFunc("/v1/threads/", a.handleThreadResource)
	a.mux.HandleFunc("/v1/store/reset", a.handleStoreReset)
	a.mux.HandleFunc("/v1/events", a.StoreEvents)

	// realtime simulator
	a.mux.HandleFunc("/v1/realtime", a.Realtime)
	a.mux.HandleFunc("/v1/realtime/connect", a.handleRealtimeConnect)
	a.mux.HandleFunc("/v1/realtime/disconnect", a.handleRealtimeDisconnect)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler returns the mux wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = Delegation(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"name":     serviceName,
		"platform": capability.PlatformName,
		"time":     time.Now().UTC().Format(time.RFC3339),
		"version":  a.version,
	}
	if a.simulator != nil {
		info["simulator_running"] = a.simulator.Running()
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *API) auditEvent(ctx context.Context, event string, fields map[string]any) {
	if err := audit.LogEvent(ctx, event, fields); err != nil {
		obs.Warn("audit log failed", map[string]any{"event": event, "error": err.Error()})
	}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
