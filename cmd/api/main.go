package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"creatorlink-api/internal/config"
	"creatorlink-api/internal/db"
	"creatorlink-api/internal/email"
	"creatorlink-api/internal/events"
	apihttp "creatorlink-api/internal/http"
	"creatorlink-api/internal/queue"
	"creatorlink-api/internal/repository"
	"creatorlink-api/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

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

	emailSender := buildEmailSender(cfg, logger)

	deliveryQueue := queue.NewQueue(redisClient, logger)
	limiter := service.NewRedisResendRateLimiter(redisClient, time.Hour, 3)
	tokenStore := service.NewRedisRefreshTokenStore(redisClient)

	jwtSvc := service.NewJWTServiceWithStore(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		tokenStore,
	)

	publisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	if publisher != nil {
		defer publisher.Close()
	}

	verifSvc := service.NewVerificationService(logger, userRepo, codeRepo, deliveryQueue, limiter, eventPublisherOrNil(publisher))
	authSvc := service.NewAuthService(logger, userRepo, verifSvc, eventPublisherOrNil(publisher))

	otpTTL := time.Duration(cfg.OTPExpiryHours) * time.Hour
	worker := queue.NewWorker(deliveryQueue, codeRepo, emailSender, logger, otpTTL)
	go func() {
		if err := worker.Run(ctx); err != nil {
			logger.Error("delivery worker stopped", zap.Error(err))
		}
	}()
	go cleanupLoop(ctx, logger, verifSvc)

	authHandler := apihttp.NewAuthHandler(logger, authSvc, userRepo, jwtSvc)
	verifHandler := apihttp.NewVerificationHandler(logger, verifSvc, cfg.OTPExpiryHours)
	router := apihttp.NewRouter(logger, authHandler, verifHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}

func buildEmailSender(cfg *config.Config, logger *zap.Logger) email.Sender {
	if cfg.ResendAPIKey != "" {
		sender, err := email.NewResendSender(cfg.ResendAPIKey, cfg.EmailFrom, cfg.FrontendURL)
		if err == nil {
			return sender
		}
		logger.Warn("resend sender init failed", zap.Error(err))
	}
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.EmailFrom, cfg.SMTPFromName, cfg.FrontendURL)
		if err == nil {
			return sender
		}
		logger.Warn("smtp sender init failed", zap.Error(err))
	}
	logger.Warn("email sender not configured")
	return email.NewDisabledSender("email sender not configured")
}

// cleanupLoop corre el sweep de códigos vencidos una vez por hora.
func cleanupLoop(ctx context.Context, logger *zap.Logger, verifSvc *service.VerificationService) {
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
}

// eventPublisherOrNil evita guardar un puntero nil detrás de la interfaz.
func eventPublisherOrNil(p *events.KafkaPublisher) service.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}
