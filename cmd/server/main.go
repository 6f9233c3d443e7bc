package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"treasure-chest/internal/config"
	"treasure-chest/internal/database"
	"treasure-chest/internal/handlers"
	"treasure-chest/internal/kafka"
	"treasure-chest/internal/logger"
	"treasure-chest/internal/models"
	"treasure-chest/internal/redis"
	"treasure-chest/internal/services"
)

// Фабричные функции для подключения внешних сервисов (подменяемые в тестах).
var (
	dbConnect        = database.Connect
	redisConnect     = redis.Connect
	newKafkaProducer = kafka.NewProducer
	newKafkaConsumer = kafka.NewConsumer
	kafkaHealthCheck = handlers.CheckKafkaBrokers
	loadConfig       = config.Load
	newLogger        = logger.New
	migrate          = func(ctx context.Context, db *database.DB) error { return db.Migrate(ctx) }
)

const migrateTimeout = 30 * time.Second

// application агрегирует собранные зависимости.
type application struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB
	redis    *redis.Client
	producer *kafka.Producer
	consumer *kafka.Consumer
	mux      *http.ServeMux
	server   *http.Server
}

func main() {
	app, err := buildApplication()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build app: %v\n", err)
		os.Exit(1)
	}
	app.log.Info("Starting treasure chest server...")

	go func() {
		app.log.WithField("address", app.server.Addr).Info("HTTP server starting")
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	app.log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.server.Shutdown(ctx); err != nil {
		app.log.WithError(err).Error("Server forced to shutdown")
	}
	app.closeClients()
	app.log.Info("Server exited")
}

// closeClients закрывает внешние подключения; все Close безопасны для nil.
func (a *application) closeClients() {
	_ = a.consumer.Stop()
	_ = a.producer.Close()
	_ = a.redis.Close()
	_ = a.db.Close()
}

// buildApplication создает все зависимости (подменяемые в тестах).
func buildApplication() (*application, error) {
	cfg := loadConfig()
	log := newLogger(&cfg.Logger)
	app := &application{cfg: cfg, log: log}

	db, err := dbConnect(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	app.db = db

	migrateCtx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	err = migrate(migrateCtx, db)
	cancel()
	if err != nil {
		app.closeClients()
		return nil, fmt.Errorf("db migrate: %w", err)
	}

	redisClient, err := redisConnect(&cfg.Redis, log)
	if err != nil {
		app.closeClients()
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	app.redis = redisClient

	var (
		publisher  services.EventPublisher = kafka.NoopPublisher{}
		kafkaCheck func([]string) error
	)
	if cfg.Kafka.Enabled {
		producer, err := newKafkaProducer(&cfg.Kafka, log)
		if err != nil {
			app.closeClients()
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		app.producer = producer
		publisher = producer
		kafkaCheck = kafkaHealthCheck

		consumer, err := newKafkaConsumer(&cfg.Kafka, log)
		if err != nil {
			app.closeClients()
			return nil, fmt.Errorf("kafka consumer: %w", err)
		}
		app.consumer = consumer
	} else {
		log.Warn("Kafka disabled, domain events will not be published")
	}

	pool, err := buildPrizePool(cfg.Game.PrizePool)
	if err != nil {
		app.closeClients()
		return nil, fmt.Errorf("prize pool: %w", err)
	}
	selector, err := services.NewPrizeSelector(pool, nil)
	if err != nil {
		app.closeClients()
		return nil, fmt.Errorf("prize selector: %w", err)
	}

	statsService := services.NewStatsService(db, redisClient, log, &cfg.Game)
	codeService := services.NewCodeService(db, log, &cfg.Game, publisher, statsService)
	auditLog := services.NewAuditLog(db, log, &cfg.Game)
	gameService := services.NewGameService(db, codeService, selector, auditLog, publisher, statsService, log, &cfg.Game)
	rateLimiter := services.NewRateLimiter(redisClient, log, &cfg.RateLimit)

	gameHandler := handlers.NewGameHandler(gameService, log, &cfg.Game)
	adminHandler := handlers.NewAdminHandler(codeService, auditLog, log, &cfg.Game)
	statsHandler := handlers.NewStatsHandler(statsService, log, &cfg.Game)
	healthHandler := handlers.NewHealthHandler(
		handlers.DatabaseDependency(db),
		handlers.RedisDependency(redisClient),
		handlers.KafkaDependency(cfg.Kafka.Brokers, kafkaCheck),
	)
	rateLimitHandler := handlers.NewRateLimitHandler(rateLimiter, log, &cfg.RateLimit)

	if app.consumer != nil {
		registerEventHandlers(app.consumer, log)
		if err := app.consumer.Start(); err != nil {
			app.closeClients()
			return nil, fmt.Errorf("kafka consumer start: %w", err)
		}
	}

	app.mux = setupRoutes(gameHandler, adminHandler, statsHandler, healthHandler, rateLimitHandler, rateLimiter, cfg.Admin.Password, log)
	app.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      app.mux,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	log.WithFields(map[string]interface{}{
		"prizes":        len(pool),
		"kafka_enabled": cfg.Kafka.Enabled,
		"rate_limit":    cfg.RateLimit.Enabled,
	}).Info("Application initialized")

	return app, nil
}

// buildPrizePool разбирает пул из конфигурации; пустая строка даёт пул по умолчанию.
func buildPrizePool(raw string) ([]models.WeightedPrize, error) {
	if raw == "" {
		return services.DefaultPrizePool(), nil
	}
	return services.ParsePrizePool(raw)
}

// setupRoutes настраивает маршруты HTTP сервера
func setupRoutes(gameHandler *handlers.GameHandler, adminHandler *handlers.AdminHandler, statsHandler *handlers.StatsHandler, healthHandler *handlers.HealthHandler, rateLimitHandler *handlers.RateLimitHandler, rateLimiter handlers.MiddlewareLimiter, adminPassword string, log *logger.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	applyAPI := func(scope string, h http.HandlerFunc) http.HandlerFunc {
		return corsMiddleware(handlers.RateLimitMiddleware(rateLimiter, scope, log, h))
	}
	applyAdmin := func(h http.HandlerFunc) http.HandlerFunc {
		return applyAPI(handlers.ScopeAdmin, handlers.RequireAdmin(adminPassword, log, h))
	}

	// Health check endpoints
	mux.HandleFunc("/health", corsMiddleware(healthHandler.Health))
	mux.HandleFunc("/health/readiness", corsMiddleware(healthHandler.Readiness))
	mux.HandleFunc("/health/liveness", corsMiddleware(healthHandler.Liveness))

	// Game endpoints
	mux.HandleFunc("/api/redeem", applyAPI(handlers.ScopeRedeem, gameHandler.Redeem))
	mux.HandleFunc("/api/play", applyAPI(handlers.ScopePlay, gameHandler.Play))

	// Admin endpoints
	mux.HandleFunc("/admin/codes", applyAdmin(adminHandler.Codes))
	mux.HandleFunc("/admin/generate", applyAdmin(adminHandler.GenerateLegacy))
	mux.HandleFunc("/admin/list", applyAdmin(adminHandler.ListCodes))
	mux.HandleFunc("/admin/revoke", applyAdmin(adminHandler.Revoke))
	mux.HandleFunc("/admin/logs", applyAdmin(adminHandler.Logs))
	mux.HandleFunc("/admin/stats", applyAdmin(statsHandler.GetStats))

	// Rate limit status
	mux.HandleFunc("/api/rate-limit/status", applyAPI(handlers.ScopeAPI, rateLimitHandler.Status))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeErrorResponse(w, http.StatusNotFound, "Route not found")
	})

	return mux
}

// registerEventHandlers регистрирует обработчики событий Kafka
func registerEventHandlers(consumer *kafka.Consumer, log *logger.Logger) {
	logEvent := func(message string) kafka.EventHandler {
		return func(ctx context.Context, event *models.Event) error {
			log.WithFields(map[string]interface{}{
				"event_id":   event.ID,
				"event_type": event.Type,
				"data":       event.Data,
			}).Info(message)
			return nil
		}
	}

	consumer.RegisterHandler(models.EventTypeCodesIssued, logEvent("Processing codes issued event"))
	consumer.RegisterHandler(models.EventTypeCodeRevoked, logEvent("Processing code revoked event"))
	consumer.RegisterHandler(models.EventTypeCodeRedeemed, logEvent("Processing code redeemed event"))
}

// corsMiddleware и другие helper функции
func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+handlers.AdminPasswordHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	type errorResponse struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	})
}
