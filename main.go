package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"game-challenge-system/handlers"
	"game-challenge-system/middleware"
	"game-challenge-system/models"
	"game-challenge-system/services"
	"game-challenge-system/utils"
	"game-challenge-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func envInt64(key string, fallback int64) int64 {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return v
		}
		log.Printf("⚠️  Invalid %s value %q, using default %d", key, os.Getenv(key), fallback)
	}
	return fallback
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 16 * 1024 * 1024, // 16MB — game logos are the largest upload
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-User-Roles, X-Service-Token, X-Device-ID",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Game{},
		&models.Challenge{},
		&models.UserChallengeIndex{},
		&models.Wallet{},
		&models.WalletTransaction{},
		&models.GameSession{},
		&models.ChallengeInteraction{},
		&models.ChallengeMessage{},
		&models.ChallengeReaction{},
		&models.ChallengeUser{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	// --- Collaborator config ---
	authServiceURL := os.Getenv("AUTH_SERVICE_URL")
	if authServiceURL == "" {
		log.Fatal("AUTH_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("CHALLENGE_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("CHALLENGE_SERVICE_TOKEN environment variable not set")
	}
	settlementURL := os.Getenv("SETTLEMENT_SERVICE_URL")
	if settlementURL == "" {
		log.Fatal("SETTLEMENT_SERVICE_URL environment variable not set")
	}

	authClient := services.NewAuthServiceClient(authServiceURL, serviceToken)
	settlementClient := services.NewSettlementClient(settlementURL, serviceToken)

	var pushClient *services.PushClient
	if pushURL := os.Getenv("PUSH_SERVICE_URL"); pushURL != "" {
		pushClient = services.NewPushClient(pushURL, serviceToken)
	} else {
		log.Println("⚠️  PUSH_SERVICE_URL not set — mobile push disabled")
	}

	// The relay target is read once here and injected as an immutable
	// value; a stateless deployment sets STATELESS=true and the relay
	// carries real-time events instead of the in-process hub.
	relay := services.RelayConfig{
		BaseURL: os.Getenv("PUSH_RELAY_URL"),
		Secret:  os.Getenv("PUSH_RELAY_SECRET"),
	}
	var hub *services.Hub
	if os.Getenv("STATELESS") != "true" {
		hub = services.NewHub()
	} else if !relay.Enabled() {
		log.Println("⚠️  STATELESS=true but PUSH_RELAY_URL not set — real-time events disabled")
	}

	// --- Services ---
	walletService := services.NewWalletService(db)
	sessionService := services.NewSessionService(db)
	guard := services.NewChallengeGuard(db)
	notifyService := services.NewNotifyService(db, hub, relay, pushClient)
	gameService := services.NewGameService(db)
	interactionService := services.NewInteractionService(db)

	minBet := envInt64("MIN_BET_AMOUNT", 100)     // minor units
	maxBet := envInt64("MAX_BET_AMOUNT", 1000000) // minor units
	challengeService := services.NewChallengeService(db, walletService, sessionService,
		guard, notifyService, settlementClient, minBet, maxBet)

	// --- Workers ---
	syncServiceURL := os.Getenv("SYNC_SERVICE_URL")
	if syncServiceURL == "" {
		log.Fatal("SYNC_SERVICE_URL environment variable not set")
	}
	userSyncWorker := workers.NewUserSyncWorker(db, syncServiceURL, "/api/v1/public/profiles", serviceToken)
	depositClient := workers.NewDepositSyncClient(db, walletService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	userSyncWorker.Start(ctx)
	go workers.PollDeposits(ctx, depositClient, 30*time.Second)

	challengeService.StartExpirySweep()

	// ✅ Routes
	handlers.SetupChallengeRoutes(app, challengeService, interactionService, notifyService, authClient)
	handlers.SetupWalletRoutes(app, walletService)
	handlers.SetupGameRoutes(app, gameService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ User Sync Worker running")
	log.Println("✅ Deposit polling running (every 30s)")
	log.Println("✅ Expiry sweep running (every 1m)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
