package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"match-escrow-system/config"
	"match-escrow-system/events"
	"match-escrow-system/handlers"
	"match-escrow-system/middleware"
	"match-escrow-system/repository"
	"match-escrow-system/services"
	"match-escrow-system/utils"
	"match-escrow-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal("invalid configuration: ", err)
	}
	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		log.Fatal("invalid match rules: ", err)
	}
	log.Printf("✅ Rules loaded from %s: fee %d bp, board %dx%d, win length %d",
		cfg.RulesFile, rules.ServiceFeeBP, rules.BoardSize, rules.BoardSize, rules.WinLength)

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	store := repository.NewGormStore(db)
	if err := store.AutoMigrate(); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	archive := openArchive(ctx, cfg)

	broker := events.NewBroker(64)
	emitter := events.NewEmitter(broker, time.Now)
	holder := config.NewRulesHolder(rules)
	wake := workers.NewSignal()

	engine := services.NewEngine(services.Deps{
		Store:    store,
		Rules:    holder,
		Events:   emitter,
		Notifier: wake,
		Archive:  archive,
	})

	ledger := services.NewLedgerClient(cfg.LedgerServiceURL, cfg.ServiceToken, cfg.LedgerRatePerSec)
	dispatcher := workers.NewPayoutDispatcher(engine.Payouts, ledger, wake, cfg.PayoutDispatchInterval)
	transferSync := workers.NewTransferSyncWorker(engine.Payouts, ledger, utils.SystemClock{}, cfg.TransferSyncInterval)

	sched, err := engine.Expiry.StartExpiryScheduler(ctx, rules.SweepInterval)
	if err != nil {
		log.Fatal("failed to start expiry scheduler:", err)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})

	// 🔐❗ GLOBAL: only gateway requests are allowed
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken))

	allowedOrigins := strings.Join(cfg.AllowedOrigins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control, X-Service-Token, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	app.Use(middleware.UserContextMiddleware())

	stream := &services.EventStream{Broker: broker, Matches: engine.Matches}
	handlers.SetupLobbyRoutes(app, engine.Lobby)
	handlers.SetupMatchRoutes(app, engine.Matches, stream)
	handlers.SetupAccountRoutes(app, engine.Stats, engine.Payouts)
	handlers.SetupRulesRoutes(app, holder, emitter)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return transferSync.Run(gctx) })
	g.Go(func() error {
		log.Printf("✅ Server running on http://localhost:%s", cfg.Port)
		log.Printf("✅ CORS configured for origins: %s", allowedOrigins)
		return app.Listen(":" + cfg.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")
		if err := sched.Shutdown(); err != nil {
			log.Printf("[Scheduler] ⚠️ shutdown: %v", err)
		}
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("❌ Server stopped with error: %v", err)
	}
	engine.Wait()
	log.Println("👋 Shutdown complete")
}

// openArchive returns nil when archiving is disabled. R2 is used when fully
// configured, the local directory otherwise.
func openArchive(ctx context.Context, cfg *config.Config) services.Archiver {
	if !cfg.ArchiveEnabled {
		log.Println("⚠️  Transcript archive disabled")
		return nil
	}
	if cfg.R2.Configured() {
		a, err := utils.NewR2Archive(ctx, utils.R2Config{
			AccountID:       cfg.R2.AccountID,
			AccessKeyID:     cfg.R2.AccessKeyID,
			AccessKeySecret: cfg.R2.AccessKeySecret,
			Bucket:          cfg.R2.Bucket,
		})
		if err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		log.Printf("✅ Archiving transcripts to R2 bucket %s", cfg.R2.Bucket)
		return a
	}
	a, err := utils.NewLocalArchive(cfg.ArchiveDir)
	if err != nil {
		log.Fatal("failed to ensure archive dir:", err)
	}
	log.Printf("✅ Archiving transcripts to %s", cfg.ArchiveDir)
	return a
}
