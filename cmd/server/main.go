package main

import (
	"context"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/digkill/finassist/internal/admin"
	"github.com/digkill/finassist/internal/api"
	"github.com/digkill/finassist/internal/auth"
	"github.com/digkill/finassist/internal/completion"
	"github.com/digkill/finassist/internal/config"
	"github.com/digkill/finassist/internal/database"
	"github.com/digkill/finassist/internal/razorpay"
	"github.com/digkill/finassist/internal/repository"
	"github.com/digkill/finassist/internal/scheduler"
	"github.com/digkill/finassist/internal/service"
	"github.com/digkill/finassist/internal/storage"
	"github.com/digkill/finassist/internal/telegram"
	"github.com/digkill/finassist/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	profileRepo := repository.NewProfileRepository(db)
	chatRepo := repository.NewChatRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	questionRepo := repository.NewQuestionRepository(db)

	completionClient := completion.NewClient(cfg, logr)
	gateway := razorpay.NewClient(cfg, logr)
	provider := auth.NewProvider(cfg, logr)
	guard := auth.NewRedirectGuard(3, 10*time.Second)

	var exports service.ObjectStorage
	if cfg.ExportEnabled() {
		uploader, err := storage.NewUploader(storage.Config{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Bucket:       cfg.S3Bucket,
			UsePathStyle: cfg.S3UsePathStyle,
			Prefix:       cfg.S3Prefix,
			LinkTTL:      time.Duration(cfg.S3LinkTTLHours) * time.Hour,
		})
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
		exports = uploader
	} else {
		logr.Info("transcript export disabled, S3_BUCKET is empty")
	}

	var notifier service.PaymentNotifier
	if cfg.NotificationsEnabled() {
		n, err := telegram.NewNotifier(cfg, logr)
		if err != nil {
			logr.Error("telegram notifier unavailable, continuing without it", "err", err)
		} else {
			notifier = n
		}
	}

	planService := service.NewPlanService(cfg.PerplexityDefaultModel)
	profileService := service.NewProfileService(profileRepo, planService)
	authService := service.NewAuthService(logr, auth.NewVerifier(cfg.SupabaseJWTSecret), provider, profileService, guard)
	chatService := service.NewChatService(logr, planService, profileRepo, chatRepo, questionRepo, completionClient, exports, cfg.ChatHistoryLimit)
	paymentService := service.NewPaymentService(cfg, logr, paymentRepo, profileRepo, planService, gateway, notifier)
	statsService := service.NewStatsService(questionRepo)

	jobs, err := scheduler.New(cfg, logr, profileService, paymentService, guard)
	if err != nil {
		log.Fatalf("scheduler: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		jobs.Run(ctx)
	}()

	if cfg.AdminEnabled() {
		adminServer := admin.NewServer(cfg.AdminListenAddr, cfg.AdminUsername, cfg.AdminPasswordHash, logr, profileService, paymentService, statsService)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := adminServer.Run(ctx); err != nil {
				logr.Error("admin server stopped", "err", err)
				stop()
			}
		}()
	} else {
		logr.Info("admin panel disabled, ADMIN_PASSWORD_HASH is empty")
	}

	apiServer := api.NewServer(cfg, logr, authService, chatService, paymentService, profileService, planService)
	if err := apiServer.Run(ctx); err != nil {
		logr.Error("api server stopped", "err", err)
		stop()
	}

	wg.Wait()
	logr.Info("shutdown complete")
}
