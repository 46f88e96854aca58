package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"jobmate/matching-service/internal/config"
	"jobmate/matching-service/internal/grpcserver"
	"jobmate/matching-service/internal/httpapi"
	"jobmate/matching-service/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST and gRPC servers with the lifecycle scheduler",
	RunE:  serve,
}

func init() {
	serveCmd.Flags().Bool("in-memory", false, "use in-memory stores instead of PostgreSQL and Redis; candidates come only from --candidates")
	serveCmd.Flags().String("candidates", "", "JSON file of candidate profiles to seed --in-memory mode")
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, _ []string) error {
	var extra []config.LoadOption
	if inMem, _ := cmd.Flags().GetBool("in-memory"); inMem {
		extra = append(extra, config.WithOverride("IN_MEMORY", true))
	}
	if path, _ := cmd.Flags().GetString("candidates"); path != "" {
		extra = append(extra, config.WithOverride("IN_MEMORY_CANDIDATES", path))
	}
	cfg, log := setup(cmd, extra...)
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := buildServices(ctx, cfg, log, cfg.Async)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		return err
	}
	defer svc.Close()

	// ── Scheduler ────────────────────────────────────────────────────────────
	sched := scheduler.New(svc.registry, cfg.Scheduler, log.Named("scheduler"))
	if err := sched.Start(ctx); err != nil {
		return err
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	httpapi.NewHandler(svc.registry, svc.orch, svc.dispatch, svc.query, log.Named("http"), version).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RunTimeout + 10*time.Second,
	}

	// ── gRPC server ──────────────────────────────────────────────────────────
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	gs := grpc.NewServer()
	hs := grpcserver.Register(gs, grpcserver.NewServer(svc.orch, svc.query))

	errCh := make(chan error, 2)
	go func() {
		log.Info("http listening", zap.String("port", cfg.Port), zap.String("version", version), zap.Bool("async", cfg.Async))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		log.Info("grpc listening", zap.String("port", cfg.GRPCPort))
		if err := gs.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err = <-errCh:
		log.Error("server failed", zap.Error(err))
	}

	log.Info("shutting down")
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown error", zap.Error(err))
	}
	gs.GracefulStop()
	if svc.queue != nil {
		svc.queue.Shutdown(shutdownCtx)
	}
	cancel()
	log.Info("stopped")
	return err
}
