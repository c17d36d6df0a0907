package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/PaulBabatuyi/marketChat-gRPC/internal/auth"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/config"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/data"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/db"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/events"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/listing"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/logger"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/metrics"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/middleware"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/realtime"
)

func main() {
	// Read configuration from defaults, CONFIG_FILE and the environment
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	zl, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		File:        cfg.Log.File,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAgeDays:  cfg.Log.MaxAgeDays,
		Compress:    cfg.Log.Compress,
	})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	dbClient, err := db.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return fmt.Errorf("connect to DB: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = dbClient.Close(closeCtx)
	}()

	// Ensure indexes exist
	if err := dbClient.CreateIndexes(ctx); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}

	// Create stores
	cols := data.CollectionsFrom(dbClient)
	convs := data.NewConversationsStore(cols)
	msgs := data.NewMessagesStore(cols)
	reactions := data.NewReactionsStore(cols)
	reports := data.NewReportsStore(cols)

	// JWT_KEYS enables key rotation; otherwise the single JWT_SECRET is used.
	var jwtMgr *auth.JWTManager
	if cfg.JWT.Keys != "" {
		keys, err := cfg.JWTKeys()
		if err != nil {
			return err
		}
		jwtMgr = auth.NewJWTManagerFromKeys(keys, cfg.JWT.ActiveKid, 24*time.Hour)
	} else {
		jwtMgr = auth.NewJWTManager(cfg.JWT.Secret, 24*time.Hour)
	}

	m := metrics.New()
	registry := realtime.NewRegistry(zl,
		realtime.WithSendTimeout(cfg.Realtime.SendTimeout),
		realtime.WithMetrics(m),
	)

	g, gctx := errgroup.WithContext(ctx)

	typingStore, closeTyping, err := newTypingStore(gctx, g, cfg, zl)
	if err != nil {
		return err
	}
	defer closeTyping()

	var publisher events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, zl)
		zl.Info("publishing chat events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			zl.Warn("closing event publisher", zap.Error(err))
		}
	}()

	var listings listing.Resolver = listing.Nop{}
	if cfg.Listing.BaseURL != "" {
		listings = listing.NewHTTPResolver(cfg.Listing.BaseURL, cfg.Listing.Timeout, zl)
	}

	// Unary calls and stream frames each get a per-user budget. A small burst
	// allows a couple of quick retries.
	limiterStore := middleware.NewLimiterStore(cfg.Server.RateLimitRPM, 10, time.Minute)
	defer limiterStore.Stop()
	frameLimiter := middleware.NewLimiterStore(cfg.Server.FrameRateLimitRPM, 30, time.Minute)
	defer frameLimiter.Stop()

	srv := newServer(serverDeps{
		Convs:          convs,
		Msgs:           msgs,
		Reactions:      reactions,
		Reports:        reports,
		Registry:       registry,
		TypingStore:    typingStore,
		TypingTTL:      cfg.Typing.TTL,
		Frames:         frameLimiter,
		Listings:       listings,
		Events:         publisher,
		Metrics:        m,
		TypingMetrics:  m,
		OutboxSize:     cfg.Realtime.OutboxSize,
		WriteTimeout:   cfg.Realtime.WriteTimeout,
		MaxConcurrency: cfg.Realtime.MaxConcurrency,
		Log:            zl,
	})

	var serverOpts []grpc.ServerOption

	// If TLS certs are configured, create server credentials and require TLS
	if cfg.Server.TLSCert != "" && cfg.Server.TLSKey != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.Server.TLSCert, cfg.Server.TLSKey)
		if err != nil {
			return fmt.Errorf("load TLS certs: %w", err)
		}
		serverOpts = append(serverOpts, grpc.Creds(creds))
	}

	// recovery -> metrics -> auth -> rate limiter
	serverOpts = append(serverOpts, grpc.ChainUnaryInterceptor(
		middleware.RecoveryUnaryInterceptor(zl),
		m.UnaryInterceptor(),
		authUnaryInterceptor(jwtMgr),
		middleware.RateLimitUnaryInterceptor(limiterStore, nil, userIDFromContext),
	))
	serverOpts = append(serverOpts, grpc.ChainStreamInterceptor(
		middleware.RecoveryStreamInterceptor(zl),
		authStreamInterceptor(jwtMgr),
	))

	grpcServer := grpc.NewServer(serverOpts...)
	registerService(grpcServer, srv)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)
	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	g.Go(func() error {
		zl.Info("gRPC server listening", zap.String("addr", listenAddr))
		return grpcServer.Serve(lis)
	})
	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			zl.Info("metrics listening", zap.String("addr", cfg.Metrics.Addr))
			return m.Serve(gctx, cfg.Metrics.Addr)
		})
	}

	// Graceful shutdown on SIGINT/SIGTERM or when any server fails
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutting down gRPC server")
		registry.CloseAll()

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(cfg.Server.ShutdownTimeout):
			zl.Warn("graceful stop timed out, forcing")
			grpcServer.Stop()
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// newTypingStore selects the typing backend. The memory store is swept in the
// background until ctx ends.
func newTypingStore(ctx context.Context, g *errgroup.Group, cfg *config.Config, zl *zap.Logger) (realtime.TypingStore, func(), error) {
	if cfg.Typing.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		zl.Info("typing backend: redis", zap.String("addr", cfg.Redis.Addr))
		// keys outlive the indicator a little so a late read still expires it
		store := realtime.NewRedisTypingStore(rdb, cfg.Redis.Prefix, 2*cfg.Typing.TTL)
		return store, func() { _ = rdb.Close() }, nil
	}

	store := realtime.NewMemoryTypingStore()
	g.Go(func() error {
		defer middleware.RecoverWithStack(zl, "typing-sweeper")
		store.RunSweeper(ctx, cfg.Typing.SweepInterval, time.Now)
		return nil
	})
	zl.Info("typing backend: memory")
	return store, func() {}, nil
}
