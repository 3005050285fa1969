package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"creatorlink-api/internal/config"
	"creatorlink-api/internal/db"
	"creatorlink-api/internal/email"
	"creatorlink-api/internal/queue"
	"creatorlink-api/internal/repository"
	"creatorlink-api/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Binario de worker independiente: consume la cola de entrega y corre el
// sweep de limpieza, sin servir HTTP.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctxPing, cancelPing := context.WithTimeout(ctx, 2*time.Second)
	if err := redisClient.Ping(ctxPing).Err(); err != nil {
		logger.Warn("redis ping failed", zap.Error(err))
	}
	cancelPing()

	userRepo := repository.NewPgUserRepository(pool)
	codeRepo := repository.NewPgCodeRepository(pool)

	var emailSender email.Sender = email.NewDisabledSender("email sender not configured")
	if cfg.ResendAPIKey != "" {
		if sender, err := email.NewResendSender(cfg.ResendAPIKey, cfg.EmailFrom, cfg.FrontendURL); err == nil {
			emailSender = sender
		} else {
			logger.Warn("resend sender init failed", zap.Error(err))
		}
	} else if cfg.SMTPHost != "" {
		if sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.EmailFrom, cfg.SMTPFromName, cfg.FrontendURL); err == nil {
			emailSender = sender
		} else {
			logger.Warn("smtp sender init failed", zap.Error(err))
		}
	}

	deliveryQueue := queue.NewQueue(redisClient, logger)
	verifSvc := service.NewVerificationService(logger, userRepo, codeRepo, deliveryQueue, nil, nil)

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := verifSvc.CleanupExpiredCodes(ctx); err != nil {
					logger.Warn("cleanup expired codes failed", zap.Error(err))
				}
			}
		}
	}()

	otpTTL := time.Duration(cfg.OTPExpiryHours) * time.Hour
	worker := queue.NewWorker(deliveryQueue, codeRepo, emailSender, logger, otpTTL)

	logger.Info("starting delivery worker")
	if err := worker.Run(ctx); err != nil {
		logger.Fatal("delivery worker stopped", zap.Error(err))
	}
}
