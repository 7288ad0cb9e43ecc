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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"chairside/backend/internal/config"
	"chairside/backend/internal/events"
	"chairside/backend/internal/metrics"
	"chairside/backend/internal/service/scheduling"
	"chairside/backend/internal/store"
	"chairside/backend/internal/store/cache"
	"chairside/backend/internal/store/memory"
	"chairside/backend/internal/store/postgres"
	grpcTransport "chairside/backend/internal/transport/grpc"
	"chairside/backend/internal/transport/rest"
	"chairside/backend/migrations"
)

type backend struct {
	bookings  store.BookingRepository
	templates store.AvailabilityRepository
	close     func() error
}

func openBackend(ctx context.Context, log *slog.Logger, cfg config.Config, applyMigrations bool) (backend, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn("using in-memory store; bookings are lost on restart")
		st := memory.New()
		return backend{bookings: st, templates: st, close: func() error { return nil }}, nil
	}

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		SlowQuery:       cfg.DBSlowQuery,
	}, log)
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		return backend{}, err
	}

	if applyMigrations {
		applied, err := postgres.Migrate(ctx, db, migrations.FS)
		if err != nil {
			_ = postgres.Close(db)
			return backend{}, fmt.Errorf("migration failed: %w", err)
		}
		log.Info("migrations applied", slog.Int("count", len(applied)))
	}

	return backend{
		bookings:  postgres.NewBookingRepo(db),
		templates: postgres.NewAvailabilityRepo(db),
		close:     func() error { return postgres.Close(db) },
	}, nil
}

func openPublisher(log *slog.Logger, cfg config.Config) (events.Publisher, func() error, error) {
	if cfg.AMQPURL == "" {
		log.Info("amqp url not set; booking events are not published")
		return events.Nop{}, func() error { return nil }, nil
	}
	p, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange, log)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp dial: %w", err)
	}
	log.Info("publishing booking events", slog.String("exchange", cfg.AMQPExchange))
	return p, p.Close, nil
}

func runServer(ctx context.Context, applyMigrations bool) error {
	cfg, err := config.Load()
	if err != nil {
		newLogger("info").Error("config load failed", slog.Any("err", err))
		return err
	}
	log := newLogger(cfg.LogLevel)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting",
		slog.String("grpc_addr", cfg.GRPCAddr()),
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("store", cfg.StoreDriver),
		slog.String("clinic_timezone", cfg.Location.String()),
		slog.Duration("granularity", cfg.Granularity),
		slog.String("log_level", cfg.LogLevel),
	)

	be, err := openBackend(ctx, log, cfg, applyMigrations)
	if err != nil {
		return err
	}
	defer func() {
		if err := be.close(); err != nil {
			log.Warn("store close failed", slog.Any("err", err))
		}
	}()

	publisher, closePublisher, err := openPublisher(log, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closePublisher(); err != nil {
			log.Warn("amqp close failed", slog.Any("err", err))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	templates := be.templates
	if cfg.TemplateCacheSize > 0 {
		templates = cache.NewTemplates(templates, cfg.TemplateCacheSize, cfg.TemplateCacheTTL)
	}

	schedCfg := scheduling.Config{
		Granularity: cfg.Granularity,
		MaxDuration: cfg.MaxDuration,
		Location:    cfg.Location,
	}
	opts := []scheduling.Option{
		scheduling.WithLogger(log),
		scheduling.WithPublisher(publisher),
		scheduling.WithMetrics(metrics.New(registry)),
	}
	engine := scheduling.NewEngine(be.bookings, schedCfg, opts...)
	slots := scheduling.NewSlotGenerator(templates, be.bookings, schedCfg, opts...)
	templateSvc := scheduling.NewTemplates(templates, opts...)

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(defaultRequestTimeoutInterceptor(cfg.GRPCRequestTimeout)),
	)
	grpcTransport.RegisterBookingsServiceServer(grpcServer,
		grpcTransport.NewBookingsServer(engine, slots, templateSvc, cfg.Location, log))
	healthServer := health.NewServer()
	healthServer.SetServingStatus(grpcTransport.BookingsServiceDesc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	httpServer := rest.NewServer(rest.NewHandler(engine, slots, templateSvc, cfg.Location, log), registry, log)

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr()))
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("grpc server started", slog.String("grpc_addr", cfg.GRPCAddr()))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("http server started", slog.String("http_addr", cfg.HTTPAddr))
		if err := httpServer.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown failed", slog.Any("err", err))
		}
		shutdown(log, grpcServer, cfg.ShutdownTimeout)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", slog.Any("err", err))
		return err
	}
	return nil
}

func defaultRequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

func shutdown(log *slog.Logger, s *grpc.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-timer.C:
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}
