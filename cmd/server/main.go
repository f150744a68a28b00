// Command messenger-server starts the messenger gRPC server.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	v1 "github.com/TomaszGol/iOS-Messenger/internal/api/messengerv1"
	"github.com/TomaszGol/iOS-Messenger/internal/config"
	"github.com/TomaszGol/iOS-Messenger/internal/message"
	"github.com/TomaszGol/iOS-Messenger/internal/metrics"
	"github.com/TomaszGol/iOS-Messenger/internal/repository/kv"
	grpcserver "github.com/TomaszGol/iOS-Messenger/internal/server/grpc"
	"github.com/TomaszGol/iOS-Messenger/internal/service"
	"github.com/TomaszGol/iOS-Messenger/internal/store"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, opens the backends and serves gRPC until SIGINT/SIGTERM.
func main() {
	// Flags
	cfgPath := flag.String("config", "", "path to YAML config (optional)")
	addr := flag.String("addr", "", "listen address (overrides server.addr)")
	dev := flag.Bool("dev", false, "enable server reflection (dev only)")
	flag.Parse()

	newLogger := zap.NewProduction
	if *dev {
		newLogger = zap.NewDevelopment
	}
	logger, _ := newLogger()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dev {
		cfg.Server.Dev = true
	}
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Server.Addr),
		zap.String("store", cfg.Store.Backend),
		zap.String("blob", cfg.Blob.Backend),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	// Backends
	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer func() { _ = st.Close() }()

	bus, closeBus, err := openBus(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("open notification bus", zap.Error(err))
	}
	defer closeBus()

	blobs, err := openBlobs(ctx, cfg.Blob, logger)
	if err != nil {
		logger.Fatal("open blob store", zap.Error(err))
	}

	pub, closePub := openEvents(cfg.Kafka, logger, m)
	defer closePub()

	// Repositories and services
	ns := store.WithNotify(st, bus, logger)
	repo := kv.New(ns, store.NewWatcher(ns, bus, logger), kv.Options{
		MaxAttempts: uint64(cfg.Store.MaxAttempts),
		BaseDelay:   cfg.Store.BaseDelay,
	}, logger, m)
	accounts := service.NewAccountService(repo, blobs, logger)
	convs := service.NewConversationService(repo, message.NewCodec(blobs, logger), pub, logger, m)

	// gRPC server with interceptors
	auth := grpcserver.NewAuthenticator([]byte(cfg.JWT.Key), grpcserver.PublicMethods...)
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger, m),
			auth.Unary(),
		),
		grpc.ChainStreamInterceptor(
			grpcserver.RecoverStream(logger),
			grpcserver.LoggingStream(logger, m),
			auth.Stream(),
		),
	}
	if cfg.Server.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.Server.TLSCert, cfg.Server.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	} else {
		logger.Warn("TLS disabled; tokens travel in clear text")
	}
	s := grpc.NewServer(opts...)

	v1.RegisterMessengerServer(s, grpcserver.New(accounts, convs, logger))

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if cfg.Server.Dev {
		reflection.Register(s)
	}

	metricsSrv := &http.Server{
		Addr:              cfg.Server.MetricsAddr,
		Handler:           metricsMux(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()

	// Listen
	lis, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr), zap.String("metrics", cfg.Server.MetricsAddr))
		errCh <- s.Serve(lis)
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		hs.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)

		// graceful shutdown; watch streams are cut by Stop after the timeout
		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			s.Stop()
		}
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func metricsMux(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	return mux
}
