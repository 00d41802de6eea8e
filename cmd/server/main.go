package main

import (
	"context" // context package is needed for Redis operations
	"log"     // log package is needed for logging
	"time"

	"sendpesa/internal/api"        // Custom package for API handlers
	"sendpesa/internal/auth"       // Custom package for authentication
	"sendpesa/internal/config"     // Custom package for configuration
	"sendpesa/internal/maintenance"
	"sendpesa/internal/metrics"
	"sendpesa/internal/middleware" // Custom package for middleware
	"sendpesa/internal/outbox"
	"sendpesa/internal/payments"
	"sendpesa/internal/rates"
	"sendpesa/internal/store/gormstore"
	"sendpesa/internal/wallet"

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/nats-io/nats.go"   // NATS client for the outbox dispatcher
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/robfig/cron/v3"    // Cron runner for maintenance sweeps
	"github.com/sirupsen/logrus"   // Logrus for structured logging
	"gorm.io/driver/mysql"         // MySQL driver for GORM
	"gorm.io/gorm"                 // GORM ORM library
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Setup Data Source Name (DSN) and connect to the database
	dsn := cfg.DBUser + ":" + cfg.DBPassword + "@tcp(" + cfg.DBHost + ":" + cfg.DBPort + ")/" + cfg.DBName + "?parseTime=true"
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}

	// Setup Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr, // Redis server address
		Password: cfg.RedisPass, // Redis password
		DB:       cfg.RedisDB,   // Redis database number
	})

	// Test Redis connection
	_, err = redisClient.Ping(context.Background()).Result()
	if err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	// Connect to NATS for notification delivery
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logrus.Fatalf("failed to connect to NATS: %v", err)
	}
	defer nc.Close()

	// Wire the services
	st := gormstore.New(db)
	oracle := rates.NewClient(cfg.RatesBaseURL, cfg.RatesAPIKey)
	gateway := payments.NewPayHeroClient(cfg.PayHeroBaseURL, cfg.PayHeroUsername, cfg.PayHeroPassword, cfg.PayHeroChannelID, cfg.CallbackBaseURL+"/payhero-callback")
	walletSvc := wallet.New(st, oracle, cfg.WithdrawFeeRate)
	authSvc := auth.New(st, auth.NewRedisPendingStore(redisClient), cfg.JWTSecret)
	initiator := payments.NewInitiator(st, gateway, cfg.CardPriceKES)
	reconciler := payments.NewReconciler(st, gateway)
	m := metrics.NewCollector()

	// Background workers: outbox dispatcher and maintenance sweeps
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher := outbox.NewDispatcher(st, nc, 5*time.Second)
	go dispatcher.Run(ctx)
	runner := cron.New()
	if err := maintenance.Schedule(runner, maintenance.NewSweeper(st)); err != nil {
		logrus.Fatalf("failed to schedule maintenance jobs: %v", err)
	}
	runner.Start()
	defer runner.Stop()

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup Gin
	r := gin.Default() // Gin router instance

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	// Health and metrics
	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	// Auth routes
	r.POST("/auth/register", api.RegisterHandler(authSvc))      // Registration endpoint
	r.POST("/auth/login", api.LoginHandler(authSvc, m))         // Login endpoint
	r.POST("/auth/verify-otp", api.VerifyOTPHandler(authSvc, m)) // OTP verification endpoint

	// Provider webhook (unauthenticated; the provider is the caller)
	r.POST("/payhero-callback", api.PayHeroCallbackHandler(reconciler, m))

	// Authenticated routes (protected by JWT)
	authGroup := r.Group("/")
	authGroup.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
	authGroup.GET("/wallet", api.GetWalletHandler(st, redisClient))                               // Get wallet endpoint
	authGroup.GET("/wallet/transactions", api.GetTransactionHistoryHandler(st, redisClient))      // Transaction history endpoint
	authGroup.POST("/transfer", api.TransferHandler(walletSvc, st, redisClient, m))               // Transfer endpoint
	authGroup.POST("/exchange/convert", api.ExchangeHandler(walletSvc, redisClient, m))           // Exchange endpoint
	authGroup.GET("/exchange/rate", api.RateHandler(oracle))                                      // Rate quote endpoint
	authGroup.POST("/deposit/initialize", api.InitializeDepositHandler(initiator))                // Deposit initiation endpoint
	authGroup.POST("/deposit/verify-payment", api.VerifyDepositHandler(reconciler, redisClient))  // Deposit verification endpoint
	authGroup.POST("/withdraw", api.WithdrawHandler(walletSvc, m))                                // Withdrawal request endpoint
	authGroup.POST("/airtime", api.AirtimeHandler(walletSvc, redisClient, m))                     // Airtime purchase endpoint
	authGroup.GET("/virtual-card", api.GetCardHandler(st))                                        // Get card endpoint
	authGroup.POST("/virtual-card/initialize-payment", api.InitializeCardPaymentHandler(initiator)) // Card purchase endpoint
	authGroup.POST("/virtual-card/freeze", api.FreezeCardHandler(st))                             // Freeze card endpoint
	authGroup.POST("/virtual-card/unfreeze", api.UnfreezeCardHandler(st))                         // Unfreeze card endpoint

	// Admin routes (protected, admin only)
	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret), middleware.AdminOnlyMiddleware(st))
	adminGroup.GET("/users", api.ListUsersHandler(st))                                                // List users endpoint
	adminGroup.GET("/transactions", api.ListTransactionsHandler(st))                                  // List transactions endpoint
	adminGroup.GET("/withdrawals", api.ListWithdrawalsHandler(st))                                    // List withdrawals endpoint
	adminGroup.POST("/withdrawals/:id/approve", api.ApproveWithdrawalHandler(walletSvc, redisClient)) // Approve withdrawal endpoint
	adminGroup.POST("/withdrawals/:id/reject", api.RejectWithdrawalHandler(walletSvc))                // Reject withdrawal endpoint
	adminGroup.POST("/users/:id/credit", api.AdjustBalanceHandler(walletSvc, redisClient))            // Balance adjustment endpoint

	log.Println("Server running on " + cfg.AppPort) // Log server start
	r.Run(":" + cfg.AppPort)                        // Start the server on port cfg.AppPort
}
