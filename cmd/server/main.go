package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/luminapay/invoice-engine/internal/config"
	"github.com/luminapay/invoice-engine/internal/database"
	"github.com/luminapay/invoice-engine/internal/events"
	"github.com/luminapay/invoice-engine/internal/handler"
	"github.com/luminapay/invoice-engine/internal/methods"
	"github.com/luminapay/invoice-engine/internal/middleware"
	"github.com/luminapay/invoice-engine/internal/rates"
	"github.com/luminapay/invoice-engine/internal/repository"
	"github.com/luminapay/invoice-engine/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.NewPool(ctx, cfg.DatabaseURL())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := database.RunMigrations(cfg.DatabaseURL()); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
		if err := database.SeedData(context.Background(), pool); err != nil {
			log.Fatal().Err(err).Msg("failed to seed data")
		}
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unreachable, rate cache and events degraded")
	}
	defer redisClient.Close()

	router := gin.New()
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())
	router.Use(gin.Recovery())

	healthHandler := handler.NewHealthHandler(pool)
	router.GET("/health", healthHandler.Health)

	setupAPIRoutes(router, pool, redisClient, cfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}

func setupAPIRoutes(router *gin.Engine, pool *pgxpool.Pool, redisClient *redis.Client, cfg *config.Config) {
	storeRepo := repository.NewStoreRepository(pool)
	invoiceRepo := repository.NewInvoiceRepository(pool)
	addressRepo := repository.NewAddressRepository(pool)

	source := rates.NewProviderSet(redisClient, cfg.RateCacheTTL,
		rates.NewHTTPProvider("kraken", cfg.RateGatewayURL),
		rates.NewHTTPProvider("bitstamp", cfg.RateGatewayURL),
		rates.NewHTTPProvider("coingecko", cfg.RateGatewayURL),
	)
	resolver := rates.NewResolver(source)

	handlers := []methods.Handler{
		methods.NewOnChainHandler("BTC", addressRepo),
		methods.NewOnChainHandler("LTC", addressRepo),
	}
	if cfg.LightningURL != "" {
		lnClient := methods.NewRESTLightningClient(cfg.LightningURL, cfg.LightningAPIKey)
		handlers = append(handlers, methods.NewLightningHandler("BTC", lnClient))
	}
	registry := methods.NewRegistry(handlers...)

	publisher := events.NewRedisPublisher(redisClient, cfg.EventChannel)

	invoiceService := service.NewInvoiceService(storeRepo, invoiceRepo, resolver, registry, publisher)
	invoiceHandler := handler.NewInvoiceHandler(invoiceService)

	// Legacy API.
	router.POST("/invoices", invoiceHandler.CreateLegacy)

	api := router.Group("/api/v1")
	{
		api.POST("/stores/:storeID/invoices", invoiceHandler.Create)
		api.GET("/stores/:storeID/invoices", invoiceHandler.List)
		api.GET("/invoices/:invoiceID", invoiceHandler.Get)
	}
}
