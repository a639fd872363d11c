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
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"github.com/agrisubsidy/backend/internal/database"
	mW "github.com/agrisubsidy/backend/internal/middleware"
	"github.com/agrisubsidy/backend/internal/services"
)

// @title Subsidy Disbursement API
// @version 1.0
// @description Merchant-facing API for recording subsidized farm-input purchases
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("environment", "ENVIRONMENT")

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

	viper.BindEnv("session.ttl_seconds", "SESSION_TTL_SECONDS")

	viper.BindEnv("settlement.account", "SETTLEMENT_ACCOUNT")
	viper.BindEnv("settlement.currency", "SETTLEMENT_CURRENCY")
	viper.BindEnv("settlement.bic", "SETTLEMENT_BIC")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize stores
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Initialize services
	sessionStore := services.NewSessionStore(db, redisClient)
	authService := services.NewAuthService(db, sessionStore)
	catalogService := services.NewCatalogService(db)
	settlementService := services.NewSettlementService(redisClient)
	purchaseService := services.NewPurchaseService(db, settlementService)
	transactionService := services.NewTransactionService(db)
	receiptService := services.NewReceiptService(db, redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
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
		httpSwagger.URL("http://localhost:8080/openapi.yaml"),
	))

	// Serve OpenAPI spec
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yaml")
	})

	// Static file server for product images
	r.Handle("/static/product-images/*", http.StripPrefix("/static/product-images/",
		mW.StaticFileServer("./static/product-images")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no session required)
		r.With(mW.LoginRateLimit(rate.Every(time.Second), 5)).
			Post("/auth/login", authService.Login)
		r.Get("/auth/logout", authService.Logout)
		r.Post("/auth/logout", authService.Logout)
		r.Get("/auth/logged", authService.Logged)
		r.Get("/auth/check-username", authService.CheckUsername)
		r.Post("/receipts/verify", receiptService.VerifyReceipt)

		// Protected endpoints (session required)
		r.Group(func(r chi.Router) {
			r.Use(mW.RequireSession(sessionStore))

			r.Get("/products", catalogService.ListProducts)
			r.Post("/products/purchase", purchaseService.Purchase)
			r.Get("/products/{productId}", catalogService.GetProduct)

			r.Get("/transactions", transactionService.ListTransactions)
			r.Post("/transactions/settlement", settlementService.ProcessSettlements)
			r.Get("/transactions/{txId}", transactionService.GetTransaction)
			r.Get("/transactions/{txId}/receipt", receiptService.Receipt)
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
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
