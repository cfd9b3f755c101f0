package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"

	"ndjobi.org/internal/auth"
	"ndjobi.org/internal/capability"
	"ndjobi.org/internal/config"
	"ndjobi.org/internal/ctxstore"
	"ndjobi.org/internal/httpapi"
	"ndjobi.org/internal/obs"
	"ndjobi.org/internal/platform"
	"ndjobi.org/internal/realtime"
	"ndjobi.org/internal/registry"
	"ndjobi.org/internal/store/pg"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if version == "dev" {
		version = cfg.Version
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	catalog := registry.Default()

	// Context backend: Postgres when a DSN is set, otherwise a local JSON file.
	var (
		db *sql.DB
		kv ctxstore.KV
	)
	if cfg.PGDSN != "" {
		store, err := pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db = store.DB()
		kv = store
	} else {
		kv = ctxstore.NewFileKV(cfg.ContextFile)
	}
	contexts := ctxstore.New(kv, catalog)

	sim, err := realtime.New(cfg.SimulatorConfig())
	if err != nil {
		log.Fatalf("simulator: %v", err)
	}
	if cfg.Simulator.Autostart {
		sim.Start()
	}

	auth.SetSecret(cfg.AuthSecret)
	if !auth.Configured() {
		obs.Warn("delegation tokens disabled", map[string]any{"reason": "NDJOBI_AUTH_SECRET is empty"})
	}

	probe := httpapi.ReadyProbe{DB: db}
	api := httpapi.New(httpapi.Deps{
		Ready:     probe,
		Catalog:   catalog,
		Resolver:  capability.NewResolver(catalog, capability.WithVersion(version), capability.WithRealtimeURL(cfg.RealtimeURL)),
		Platform:  platform.New(nil),
		Simulator: sim,
		Contexts:  contexts,
	}, version, httpapi.WithRateLimit(cfg.RateBurst, cfg.RatePerSecond))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcHealth := httpapi.NewGRPCServer(probe, version)
	grpcSrv := grpc.NewServer()
	grpcHealth.Register(grpcSrv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go grpcHealth.Watch(ctx, 10*time.Second)

	obs.Info("starting", map[string]any{
		"service":   "ndjobi-api",
		"version":   version,
		"http_addr": cfg.HTTPAddr,
		"grpc_addr": cfg.GRPCAddr,
		"context":   contextBackend(cfg),
		"simulator": sim.Running(),
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()
	go func() {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Fatalf("grpc serve: %v", err)
		}
	}()

	<-ctx.Done()
	obs.Info("shutting down", nil)

	sim.Stop()
	grpcHealth.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()
	if db != nil {
		_ = db.Close()
	}
	obs.Info("stopped", nil)
}

func contextBackend(cfg config.Config) string {
	if cfg.PGDSN != "" {
		return "postgres"
	}
	return "file:" + cfg.ContextFile
}
