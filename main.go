package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"casual-game-core/config"
	"casual-game-core/handlers"
	"casual-game-core/middleware"
	"casual-game-core/services"
	"casual-game-core/store"
	"casual-game-core/store/gormstore"
	"casual-game-core/store/memstore"
	"casual-game-core/utils"
	"casual-game-core/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
)

func openStore(cfg *config.Config) store.Store {
	if cfg.StoreDriver == "memory" {
		log.Println("⚠️  STORE_DRIVER=memory, state is lost on restart")
		return memstore.New()
	}

	db, err := gormstore.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	if err := gormstore.Migrate(db); err != nil {
		log.Fatal("failed to migrate database:", err)
	}
	return gormstore.New(db)
}

func openRedis(ctx context.Context, cfg *config.Config) redis.Cmdable {
	if cfg.RedisAddr == "" {
		log.Println("⚠️  REDIS_ADDR not set, leaderboards are served from the database")
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("⚠️  redis ping failed, boards fall back to the database until it recovers: %v", err)
	}
	return rdb
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := openStore(cfg)
	limiter := services.NewActorLimiter(cfg.Admin.ModeratorRatePerMinute)
	mm := cfg.Matchmaking

	ledger := services.NewLedgerService(st)
	challenges := services.NewChallengeService(st, mm.ChallengeTTL, mm.WinBonus)
	leaderboards := services.NewLeaderboardService(st, openRedis(ctx, cfg), services.SuspiciousThresholds{
		Window:    cfg.Suspicious.Window,
		MaxGames:  cfg.Suspicious.MaxGames,
		MaxInflow: cfg.Suspicious.MaxInflow,
		MaxScore:  cfg.Suspicious.MaxScore,
	})

	svc := &handlers.Services{
		Profiles:     services.NewProfileService(st),
		Ledger:       ledger,
		Admin:        services.NewAdminService(st, limiter),
		Moderation:   services.NewModerationService(st, limiter),
		Challenges:   challenges,
		Matchmaking:  services.NewMatchmakingService(st, challenges, mm.SkillBand, mm.PoolRetention),
		Friends:      services.NewFriendshipService(st),
		Scores:       services.NewScoreService(st, leaderboards),
		Leaderboards: leaderboards,
	}
	if cfg.ReceiptServiceURL != "" {
		validator := services.NewReceiptValidatorClient(cfg.ReceiptServiceURL, cfg.GameServiceToken)
		svc.Receipts = services.NewReceiptService(st, ledger, validator, cfg.ReceiptProducts)
	} else {
		log.Println("⚠️  RECEIPT_SERVICE_URL not set, /receipts is disabled")
	}

	jobs := workers.Jobs{Challenges: challenges, Matchmaking: svc.Matchmaking, Intervals: mm}
	if leaderboards.Redis != nil {
		if _, err := leaderboards.Rebuild(ctx); err != nil {
			log.Printf("⚠️  initial leaderboard rebuild failed, boards are served from the database: %v", err)
		}
		jobs.Leaderboards = leaderboards
		jobs.RebuildEvery = cfg.Leaderboard.RebuildInterval
	}
	if cfg.Archive.Enabled() {
		r2, err := utils.NewR2Client(ctx, cfg.Archive)
		if err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		jobs.Archiver = workers.NewAuditArchiver(st, r2)
	}
	sched, err := workers.StartScheduler(ctx, jobs)
	if err != nil {
		log.Fatal(err)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})
	app.Use(recover.New())
	app.Use(logger.New())

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Idempotency-Key",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "store": cfg.StoreDriver})
	})

	// 🔐❗ GLOBAL: only Gateway requests are allowed
	app.Use(middleware.GatewayAuthMiddleware(cfg.GameServiceToken, "/healthz"))

	handlers.SetupRoutes(app, svc)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
			stop()
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s (store=%s)", cfg.Port, cfg.StoreDriver)
	log.Printf("✅ CORS configured for origins: %s", strings.Join(cfg.AllowedOrigins, ","))

	<-ctx.Done()
	log.Println("Shutting down server...")

	if err := sched.Shutdown(); err != nil {
		log.Printf("scheduler shutdown: %v", err)
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}
