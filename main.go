package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/smartfit/internal/classifier"
	"github.com/example/smartfit/internal/config"
	"github.com/example/smartfit/internal/handlers"
	"github.com/example/smartfit/internal/healthcheck"
	"github.com/example/smartfit/internal/imageprocessor"
	"github.com/example/smartfit/internal/logging"
	"github.com/example/smartfit/internal/prediction"
	"github.com/example/smartfit/internal/productsearch"
	"github.com/example/smartfit/internal/recommendation"
	"github.com/example/smartfit/internal/repository"
	"github.com/example/smartfit/internal/usecase"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		os.Exit(runHealthcheck())
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db := initDatabase(ctx, cfg, logger)
	repo := repository.NewHistoryRepository(db, logger)
	if err := repo.Migrate(ctx); err != nil {
		logger.Fatal("database migration failed", zap.Error(err))
	}

	redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
	defer redisCancel()
	redisClient := initRedis(redisCtx, cfg.RedisAddr, logger)
	defer redisClient.Close()

	models, err := classifier.LoadPair(cfg.Models, logger)
	if err != nil {
		logger.Fatal("failed to load models", zap.Error(err))
	}
	defer classifier.ShutdownRuntime()
	defer models.Close()

	recommender, err := recommendation.Load()
	if err != nil {
		logger.Fatal("failed to load recommendation table", zap.Error(err))
	}
	if !recommender.HasCategory(cfg.DefaultClothingCategory) {
		logger.Fatal("default clothing category is not in the recommendation table",
			zap.String("category", cfg.DefaultClothingCategory),
			zap.Strings("categories", recommender.Categories()))
	}

	selection, err := prediction.ParseSelection(cfg.PredictionSelection)
	if err != nil {
		logger.Fatal("invalid prediction selection", zap.Error(err))
	}
	preprocessor := imageprocessor.NewPreprocessor(nil, imageprocessor.Layout(cfg.Models.TensorLayout), logger)
	coordinator := prediction.NewCoordinator(models.Seasonal, models.SkinTone, preprocessor, selection, logger)

	var products usecase.ProductSearcher
	if cfg.ProductSearch.Enabled() {
		products = productsearch.NewClient(cfg.ProductSearch, logger)
	} else {
		logger.Warn("RAPIDAPI_URL or RAPIDAPI_KEY not set, product search disabled")
	}

	cache := usecase.NewRedisCache(redisClient)
	uc := usecase.NewStyleUseCase(coordinator, recommender, products, repo, cache, usecase.Options{
		DefaultCategory: cfg.DefaultClothingCategory,
		ProductsPerItem: cfg.ProductSearch.ResultsPerItem,
		ProductsTotal:   cfg.ProductSearch.ResultsTotal,
		CacheTTL:        cfg.CacheTTL,
		ProductCacheTTL: cfg.ProductCacheTTL,
		Details: usecase.ModelDetails{
			Models:    []classifier.Details{models.Seasonal.Details(), models.SkinTone.Details()},
			Sizes:     coordinator.Sizes(),
			Layout:    string(preprocessor.Layout()),
			Selection: string(coordinator.Selection()),
		},
	}, logger)

	rateLimit, err := handlers.RateLimit(cfg.RateLimit)
	if err != nil {
		logger.Fatal("invalid rate limit", zap.Error(err))
	}

	healthServer := healthcheck.NewServer(logger)
	healthListener, err := net.Listen("tcp", cfg.GRPCHealthAddr)
	if err != nil {
		logger.Fatal("failed to listen for gRPC health", zap.Error(err), zap.String("addr", cfg.GRPCHealthAddr))
	}
	go func() {
		if err := healthServer.Serve(healthListener); err != nil {
			logger.Error("gRPC health server stopped", zap.Error(err))
		}
	}()
	healthServer.SetServing(true)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(uc, rateLimit, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("SmartFit API listening", zap.String("addr", cfg.HTTPAddr))
	serveErr := serveUntilShutdown(server, healthServer, cfg.ShutdownTimeout, logger, nil, nil)
	if serveErr != nil {
		logger.Fatal("server failed", zap.Error(serveErr))
	}
}

func initDatabase(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) *gorm.DB {
	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DatabaseDSN)
	default:
		dialector = postgres.Open(cfg.DatabaseDSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err), zap.String("driver", cfg.DatabaseDriver))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

// runHealthcheck probes the local gRPC health service; it backs the
// container HEALTHCHECK.
func runHealthcheck() int {
	addr := probeAddr(getEnv("GRPC_HEALTH_ADDR", ":9090"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := healthcheck.Probe(ctx, addr, healthcheck.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck failed: %v\n", err)
		return 1
	}
	fmt.Println(status.String())
	if status != grpc_health_v1.HealthCheckResponse_SERVING {
		return 1
	}
	return 0
}

// probeAddr turns a listen address such as ":9090" into a dialable one.
func probeAddr(listen string) string {
	if strings.HasPrefix(listen, ":") {
		return "localhost" + listen
	}
	return listen
}

// newRouter builds the gin engine behind CORS. rateLimit may be nil.
func newRouter(svc handlers.StyleService, rateLimit gin.HandlerFunc, logger *zap.Logger) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger(logger))
	r.MaxMultipartMemory = handlers.MaxUploadSize

	var middlewares []gin.HandlerFunc
	if rateLimit != nil {
		middlewares = append(middlewares, rateLimit)
	}
	handlers.RegisterRoutes(r, svc, middlewares...)

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{handlers.RequestIDHeader},
		MaxAge:         300,
	})
	return corsHandler(r)
}

// serveUntilShutdown serves HTTP until a shutdown signal, then drains the
// gRPC health server. listener and signalCh may be nil.
func serveUntilShutdown(server *http.Server, healthServer *healthcheck.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	serveErr := serveHTTPServerWithOptions(server, shutdownTimeout, logger, listener, signalCh)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	healthServer.Stop(ctx)
	return serveErr
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
