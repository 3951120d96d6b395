// Command authd serves the token exchange and authorization API over HTTP
// and a gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"

	"satauth.org/internal/auth"
	"satauth.org/internal/authz"
	"satauth.org/internal/config"
	"satauth.org/internal/httpapi"
	"satauth.org/internal/migrate"
	"satauth.org/internal/obs"
	"satauth.org/internal/store/memory"
	"satauth.org/internal/store/mongo"
	"satauth.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", os.Getenv("AUTH_CONFIG"), "path to a YAML config file")
		runMigrate = pflag.Bool("migrate", false, "apply pending Postgres migrations before serving")
		showVer    = pflag.BoolP("version", "v", false, "print version and exit")
	)
	pflag.Parse()

	if *showVer {
		fmt.Printf("authd %s (%s)\n", version, commit)
		return
	}

	logger := obs.Logger()
	if err := run(*configPath, *runMigrate, logger); err != nil {
		logger.Error("authd exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(configPath string, runMigrate bool, logger *slog.Logger) error {
	cfg, err := config.Load(configPath, nil)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, runMigrate)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Warn("close store", slog.String("error", err.Error()))
		}
	}()

	authzSvc, err := authz.NewService(store,
		authz.WithModel(cfg.AuthzModel()),
		authz.WithEvaluator(authz.NewEvaluator(authz.WithOwnerDelete(cfg.OwnerDelete))),
		authz.WithStoreTimeout(cfg.StoreTimeout),
		authz.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	if len(cfg.Roles) > 0 {
		if err := authzSvc.SeedRoles(ctx, cfg.RoleRecords()); err != nil {
			return err
		}
		logger.Info("roles seeded", slog.Int("count", len(cfg.Roles)))
	}

	codec, err := auth.NewCodec(cfg.Secret,
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		return err
	}
	var idp auth.Verifier
	if cfg.GoogleClientID != "" {
		idp = auth.NewGoogleVerifier(cfg.GoogleClientID)
	} else {
		logger.Warn("GOOGLE_CLIENT_ID not set, sign-in is disabled")
	}
	authSvc, err := auth.NewService(codec, idp, authzSvc)
	if err != nil {
		return err
	}

	probe := httpapi.ReadyProbe{Store: store, Timeout: 2 * time.Second}
	api := httpapi.New(authSvc, authzSvc, probe, httpapi.Options{
		Version:     version,
		CORSOrigins: cfg.CORSOrigins,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcSrv := grpc.NewServer()
	httpapi.NewHealthServer(probe).Register(grpcSrv)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening",
			slog.String("addr", httpSrv.Addr),
			slog.String("model", string(authzSvc.Model())),
			slog.String("store", cfg.Store),
			slog.String("version", version),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		logger.Info("grpc listening", slog.String("addr", lis.Addr().String()))
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("server failed", slog.String("error", err.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutErr := httpSrv.Shutdown(shutdownCtx); shutErr != nil {
		logger.Warn("http shutdown", slog.String("error", shutErr.Error()))
	}
	grpcSrv.GracefulStop()
	logger.Info("stopped")
	return err
}

func openStore(ctx context.Context, cfg config.Config, runMigrate bool) (authz.Store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		s, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if runMigrate {
			mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := migrate.NewManager(s.DB(), pg.Migrations(), nil).Up(mctx); err != nil {
				_ = s.Close(ctx)
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return s, nil
	case config.StoreMongo:
		octx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		s, err := mongo.Open(octx, cfg.MongoURL, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		return s, nil
	default:
		return memory.New(), nil
	}
}
