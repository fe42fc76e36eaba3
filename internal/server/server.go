package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stockpos/internal/activity"
	"stockpos/internal/config"
	"stockpos/internal/database"
	"stockpos/internal/logger"
	"stockpos/internal/mailer"
	"stockpos/internal/notify"
)

const (
	activityThrottle = time.Minute
	shutdownTimeout  = 15 * time.Second
)

func newMailer(cfg config.Config) mailer.Mailer {
	if !cfg.SMTPEnabled() {
		logger.Named("server").Warn("SMTP not configured, password reset mail will only be logged")
		return mailer.LogMailer{}
	}
	return mailer.NewSMTP(mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func Run(ctx context.Context, cfg config.Config) error {
	log := logger.Named("server")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	client, err := database.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return err
	}
	defer database.Disconnect(client)

	db := client.Database(cfg.DBName)
	if err := database.EnsureIndexes(ctx, db); err != nil {
		log.Warn("index setup incomplete", zap.Error(err))
	}
	if created, err := database.EnsureDefaultExpenseCategories(ctx, db); err != nil {
		log.Warn("default expense categories not seeded", zap.Error(err))
	} else if created > 0 {
		log.Info("default expense categories created", zap.Int64("count", created))
	}

	rdb := database.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if rdb != nil {
		defer rdb.Close()
	}

	tracker := activity.NewTracker(db, rdb, activityThrottle)
	defer tracker.Wait()

	hub := notify.NewHub()
	router := NewRouter(cfg, Deps{
		DB:      db,
		Hub:     hub,
		Mailer:  newMailer(cfg),
		Tracker: tracker,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr), zap.String("db", db.Name()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
