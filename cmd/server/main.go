package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/planlift/backend/docs"
	"github.com/planlift/backend/internal/config"
	"github.com/planlift/backend/internal/database"
	"github.com/planlift/backend/internal/gateway"
	"github.com/planlift/backend/internal/handlers"
	mW "github.com/planlift/backend/internal/middleware"
	"github.com/planlift/backend/internal/services"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title PlanLift Backend API
// @version 1.0
// @description Order and balance ledger API for the PlanLift BIM sheet-upgrade service
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	gatewayCfg := config.LoadGatewayConfig()
	sweeperCfg := config.LoadSweeperConfig()
	rateCfg := config.LoadRateLimitConfig()

	if gatewayCfg.InsecureSkipVerify {
		log.Println("WARNING: webhook signature verification is DISABLED " +
			"(GATEWAY_INSECURE_SKIP_VERIFY=true). Never run like this in production.")
	} else if gatewayCfg.WebhookSecret == "" {
		log.Fatal("GATEWAY_WEBHOOK_SECRET is required unless GATEWAY_INSECURE_SKIP_VERIFY is set")
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "PlanLift Backend API"
	docs.SwaggerInfo.Description = "Order and balance ledger API for the PlanLift BIM sheet-upgrade service"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	gatewayClient := gateway.NewClient(gatewayCfg.BaseURL, gatewayCfg.APIKey, gatewayCfg.WebhookSecret)

	ledgerService := services.NewLedgerService(db)
	companyService := services.NewCompanyService(db)
	balanceService := services.NewBalanceService(db, ledgerService, companyService,
		gatewayClient, gatewayCfg.Currency, gatewayCfg.CallbackURL)
	webhookService := services.NewWebhookService(redisClient, balanceService,
		gatewayClient, gatewayCfg.InsecureSkipVerify)

	balanceHandler := handlers.NewBalanceHandler(balanceService)
	companyHandler := handlers.NewCompanyHandler(companyService)
	webhookHandler := handlers.NewWebhookHandler(webhookService)

	// Background order expiry
	sweeperCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	sweeper := services.NewOrderSweeper(db, sweeperCfg.Interval, sweeperCfg.MaxAge)
	go sweeper.Run(sweeperCtx)

	rateLimiter := mW.NewRateLimiter(redisClient, rateCfg.Limit, rateCfg.Window)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Gateway notifications authenticate by signature, not by token
		r.Post("/webhooks/gateway", webhookHandler.HandleNotification)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)
			r.Use(rateLimiter.Limit)

			r.Get("/balances", balanceHandler.GetBalances)
			r.Post("/topups", balanceHandler.InitiateTopUp)
			r.Get("/transactions", balanceHandler.ListTransactions)

			r.Post("/orders/{orderId}/pay", balanceHandler.PayOrder)
			r.Post("/orders/{orderId}/card-payment", balanceHandler.PayOrderWithCard)
			r.Post("/orders/{orderId}/refund-request", balanceHandler.RequestRefund)

			r.Post("/companies", companyHandler.CreateCompany)
			r.Get("/companies/{companyId}/members", companyHandler.ListMembers)
			r.Post("/companies/{companyId}/members", companyHandler.AddMember)
			r.Delete("/companies/{companyId}/members/{userId}", companyHandler.RemoveMember)

			// Admin endpoints
			r.Group(func(r chi.Router) {
				r.Use(mW.AdminOnly)

				r.Get("/admin/refund-requests", balanceHandler.ListRefundRequests)
				r.Post("/admin/refund-requests/{transactionId}/approve", balanceHandler.ApproveRefund)
				r.Post("/admin/refund-requests/{transactionId}/reject", balanceHandler.RejectRefund)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	stopSweeper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
