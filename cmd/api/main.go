package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"google.golang.org/grpc"

	"designlab.org/internal/access"
	"designlab.org/internal/allowlist"
	"designlab.org/internal/audit"
	"designlab.org/internal/httpapi"
	"designlab.org/internal/identity"
	"designlab.org/internal/mail"
	"designlab.org/internal/obs"
	"designlab.org/internal/stream"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

const defaultPinnedOperator = "admin@designlab.org"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Every provider mints sessions, so the secret is required regardless of
	// which one is selected.
	if err := identity.CheckSecret(); err != nil {
		log.Fatalf("DESIGNLAB_AUTH_SECRET: %v", err)
	}

	env := envOr("DESIGNLAB_ENV", "development")
	baseURL := envOr("DESIGNLAB_BASE_URL", "http://localhost:8080")
	pinned := envOr("DESIGNLAB_PINNED_OPERATOR", defaultPinnedOperator)

	// DB is optional: without a DSN the allowlist lives in a JSON file and
	// audit events in memory.
	var db *sql.DB
	if dsn := os.Getenv("DESIGNLAB_PG_DSN"); dsn != "" {
		var err error
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	var store allowlist.Store
	var recorder audit.Recorder
	if db != nil {
		var err error
		store, err = allowlist.NewPGStore(db, pinned)
		if err != nil {
			log.Fatalf("allowlist store: %v", err)
		}
		recorder = audit.NewPGRecorder(db)
	} else {
		path := envOr("DESIGNLAB_ALLOWLIST_FILE", "allowlist.json")
		var err error
		store, err = allowlist.NewFileStore(path, pinned)
		if err != nil {
			log.Fatalf("allowlist store: %v", err)
		}
		recorder = audit.NewMemoryRecorder()
	}

	resolver, err := access.NewResolver(store, pinned)
	if err != nil {
		log.Fatalf("role resolver: %v", err)
	}

	provider, err := buildProvider()
	if err != nil {
		log.Fatalf("auth provider: %v", err)
	}

	sessionTTL := durationOr("DESIGNLAB_SESSION_TTL", identity.DefaultSessionTTL)

	api := httpapi.New(httpapi.Options{
		Version:    version,
		Env:        env,
		BaseURL:    baseURL,
		Provider:   provider,
		Allowlist:  store,
		Resolver:   resolver,
		Recorder:   recorder,
		Stream:     stream.New(),
		ReadyProbe: httpapi.ReadyProbe{DB: db},
		SessionTTL: sessionTTL,
	})

	srv := &http.Server{
		Addr:              envOr("DESIGNLAB_ADDR", ":8080"),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Optional gRPC health endpoint for orchestrators that probe over gRPC.
	var grpcSrv *grpc.Server
	if addr := os.Getenv("DESIGNLAB_GRPC_ADDR"); addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = grpc.NewServer()
		httpapi.NewGRPCServer(httpapi.ReadyProbe{DB: db}).Register(grpcSrv)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
		log.Printf("gRPC health on %s", addr)
	}

	log.Printf("Starting designlab-access %s on %s (provider=%s)", version, srv.Addr, provider.Name())

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

// buildProvider selects the sign-in mechanism from DESIGNLAB_AUTH_PROVIDER:
// "magiclink" (default), "stub" or "federated".
func buildProvider() (identity.Provider, error) {
	switch envOr("DESIGNLAB_AUTH_PROVIDER", "magiclink") {
	case "stub":
		return identity.NewStubProvider(os.Getenv("DESIGNLAB_STUB_USERS"))
	case "federated":
		return identity.NewFederatedProvider(os.Getenv("DESIGNLAB_FEDERATED_AUTHORIZE_URL"))
	case "magiclink":
		signer, err := identity.NewLinkSigner(
			os.Getenv("DESIGNLAB_AUTH_SECRET"),
			identity.WithLinkTTL(durationOr("DESIGNLAB_MAGIC_LINK_TTL", identity.DefaultLinkTTL)),
		)
		if err != nil {
			return nil, err
		}
		domains := envOr("DESIGNLAB_ALLOWED_DOMAINS", "designlab.org")
		return identity.NewMagicLinkProvider(signer, mail.LogSender{}, domains)
	default:
		return nil, fmt.Errorf("unknown DESIGNLAB_AUTH_PROVIDER %q", os.Getenv("DESIGNLAB_AUTH_PROVIDER"))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Fatalf("%s: invalid duration %q", key, raw)
	}
	return d
}
