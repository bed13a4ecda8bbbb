package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spotsort-be/config"
	"spotsort-be/controllers"
	"spotsort-be/metrics"
	"spotsort-be/middlewares"
	"spotsort-be/notify"
	"spotsort-be/otp"
	"spotsort-be/routes"
	"spotsort-be/services"
	"spotsort-be/storage"
	"spotsort-be/store"
	"spotsort-be/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
)

var serveCommand = &cli.Command{
	Name:   "serve",
	Usage:  "Start the HTTP server",
	Action: serve,
}

func serve(cCtx *cli.Context) error {
	ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	client, db, err := config.ConnectDB(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	if err := store.EnsureIndexes(ctx, db); err != nil {
		return err
	}

	rdb, err := config.ConnectRedis(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rdb.Close()

	images, err := storage.NewMinioStore(ctx, storage.MinioOptions{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	}, logger)
	if err != nil {
		return err
	}

	var mailer notify.Mailer = notify.LogMailer{Logger: logger}
	if cfg.SMTPHost != "" {
		smtp, err := notify.NewSMTPMailer(notify.SMTPOptions{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
		if err != nil {
			return err
		}
		mailer = smtp
	} else {
		logger.Warn("SMTP_HOST not set, mail will only be logged")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	dispatcher := notify.NewDispatcher(mailer, logger,
		notify.WithWorkers(cfg.MailWorkers),
		notify.WithQueueSize(cfg.MailQueueSize),
		notify.WithOnResult(func(_ notify.Message, err error) { m.MailResult(err) }),
	)

	tokens, err := utils.NewTokenIssuer(cfg.JWTSecret, cfg.JWTLifetime)
	if err != nil {
		return err
	}

	var hasher otp.Hasher = otp.BcryptHasher{Cost: cfg.OtpBcryptCost}
	if cfg.OtpHMACKey != "" {
		hasher = otp.HMACHasher{Key: []byte(cfg.OtpHMACKey)}
	}

	users := store.NewMongoUserStore(db)
	audit := services.NewAuditRecorder(store.NewMongoAuditStore(db), logger, m)
	deps := services.Deps{
		Issues:    store.NewMongoIssueStore(db),
		Pending:   store.NewMongoPendingStore(db),
		Users:     users,
		Audit:     audit,
		Challenge: otp.NewChallenge(hasher, store.NewRedisCodeStore(rdb, "otp")),
		Images:    images,
		Notifier:  dispatcher,
		Logger:    logger,
		Metrics:   m,
		Settings: services.Settings{
			PendingTTL:    cfg.ReportOtpTTL,
			SignupOtpTTL:  cfg.SignupOtpTTL,
			MaxImageBytes: cfg.MaxImageBytes,
		},
	}

	router := routes.New(routes.Handlers{
		Issues: controllers.NewIssueController(
			services.NewSubmissionService(deps),
			services.NewIssueService(deps),
			services.NewResolutionService(deps),
		),
		Auth:  controllers.NewAuthController(services.NewAuthService(deps, tokens)),
		Audit: controllers.NewAuditController(audit),
	}, routes.Options{
		Logger:   logger,
		Resolver: services.NewIdentityResolver(tokens, users),
		OtpLimiter: middlewares.RateLimiter(rdb, middlewares.RateLimit{
			Prefix: "ratelimit",
			Group:  "otp",
			Limit:  cfg.OtpRateLimit,
			Window: cfg.OtpRateWindow,
		}, m, logger),
		AllowedOrigins:     cfg.AllowedOrigins(),
		Gatherer:           reg,
		MaxMultipartMemory: cfg.MaxImageBytes,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSec) * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.ServerPort).Infof("server starting http://localhost:%d", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.WithError(err).Warn("mail queue not drained before shutdown")
	}
	return nil
}
