package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"visit-verify-system/handlers"
	"visit-verify-system/middleware"
	"visit-verify-system/models"
	"visit-verify-system/services"
	"visit-verify-system/utils"
	"visit-verify-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 16 * 1024 * 1024, // proof photos only, nothing bigger
	})

	// 🔐 GLOBAL: Only Gateway requests allowed (healthz exempt)
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
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, X-User-ID, X-User-Roles, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
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
		&models.Submission{},
		&models.ChallengeMirror{},
		&models.VisitProfile{},
		&models.RewardGrant{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	clock := services.SystemClock()
	idGen := services.UUIDGenerator()

	fraudCfg := services.LoadFraudConfig()
	radiusCfg := services.LoadRadiusConfig()

	history := services.NewHistoryService(db, clock, idGen, fraudCfg.PatternWindow)
	challenges := services.NewChallengeStore(db)

	ledgerURL := os.Getenv("REWARD_LEDGER_URL")
	if ledgerURL == "" {
		log.Fatal("REWARD_LEDGER_URL environment variable not set")
	}
	serviceToken := os.Getenv("VERIFY_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("VERIFY_SERVICE_TOKEN environment variable not set")
	}
	rewards := services.NewRewardLedgerClient(ledgerURL, serviceToken, db, idGen)

	feedURL := os.Getenv("FEED_SERVICE_URL")
	if feedURL == "" {
		log.Fatal("FEED_SERVICE_URL environment variable not set")
	}
	notifier := services.NewNotificationClient(feedURL, serviceToken)

	pipeline := services.NewSubmissionPipeline(services.PipelineDeps{
		Validator:  services.NewCoordinateValidator(clock),
		Radius:     services.NewRadiusVerifier(radiusCfg),
		Fraud:      services.NewFraudDetector(fraudCfg),
		Challenges: challenges,
		History:    history,
		Rewards:    rewards,
		Notifier:   notifier,
		Clock:      clock,
		IDGen:      idGen,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncClient := workers.NewChallengeSyncClient(db)
	go workers.PollChallenges(ctx, syncClient, 60*time.Second)

	sched, err := services.StartMaintenanceScheduler(rewards, history)
	if err != nil {
		log.Fatal("failed to start maintenance scheduler:", err)
	}
	defer func() { _ = sched.Shutdown() }()

	handlers.SetupSubmissionRoutes(app, handlers.SubmissionDeps{
		DB:         db,
		Pipeline:   pipeline,
		Challenges: challenges,
		Rewards:    rewards,
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Challenge sync worker running (every 60s)")
	log.Println("✅ Maintenance scheduler running (reward retry, suspicious recount)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
