package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/suratbrts/cms/internal/auth"
	"github.com/suratbrts/cms/internal/config"
	"github.com/suratbrts/cms/internal/database"
	"github.com/suratbrts/cms/internal/logging"
	"github.com/suratbrts/cms/internal/push"
	"github.com/suratbrts/cms/internal/report"
	"github.com/suratbrts/cms/internal/server"
	"github.com/suratbrts/cms/internal/sms"
	ws "github.com/suratbrts/cms/internal/websocket"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "vapid" {
		generateVAPIDKeys()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sender sms.Sender = sms.LogSender{Logger: logger.With("component", "sms")}
	if gw := sms.NewGatewayClient(cfg.SMS.BaseURL, cfg.SMS.APIKey, cfg.SMS.Template); gw.Configured() {
		sender = gw
	} else if !cfg.App.Development() {
		slog.Warn("sms gateway not configured; OTP codes will only be logged")
	}

	hub := ws.NewHub(logger.With("component", "websocket"))
	srvCfg := server.Config{
		Development:    cfg.App.Development(),
		Tokens:         auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		SMS:            sender,
		VAPIDPublicKey: cfg.Push.VAPIDPublicKey,
		Hub:            hub,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Archiver: report.NewArchiver(report.S3Config{
			Endpoint:   cfg.S3.Endpoint,
			Bucket:     cfg.S3.Bucket,
			Region:     cfg.S3.Region,
			AccessKey:  cfg.S3.AccessKey,
			SecretKey:  cfg.S3.SecretKey,
			Passphrase: cfg.S3.Passphrase,
		}, logger),
	}
	if cfg.Push.VAPIDPublicKey != "" && cfg.Push.VAPIDPrivateKey != "" {
		srvCfg.PushSender = push.NewService(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey, cfg.Push.Subscriber)
	} else {
		slog.Info("push notifications disabled; VAPID keys not configured")
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		relay := ws.NewRedisRelay(rdb, cfg.Redis.Channel, hub, logger.With("component", "relay"))
		srvCfg.Publisher = relay
		go relay.Serve(ctx)
	}

	srv := server.New(db, srvCfg, logger)

	if cfg.Auth.BootstrapAdminEmail != "" && cfg.Auth.BootstrapAdminPassword != "" {
		created, err := srv.Auth().Bootstrap(ctx, cfg.Auth.BootstrapAdminName, cfg.Auth.BootstrapAdminEmail, cfg.Auth.BootstrapAdminPassword)
		if err != nil {
			slog.Error("bootstrap admin", "error", err)
			os.Exit(1)
		}
		if created {
			slog.Info("bootstrap admin created", "email", cfg.Auth.BootstrapAdminEmail)
		}
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	// Background cleanup goroutine
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := srv.Auth().CleanupOTP(ctx); err != nil {
					slog.Error("cleanup expired otp sessions", "error", err)
				} else if n > 0 {
					slog.Info("cleaned up expired otp sessions", "count", n)
				}
				if n := srv.RateLimiter().Cleanup(); n > 0 {
					slog.Debug("cleaned up rate limit windows", "count", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("brts server starting", "addr", httpServer.Addr, "env", cfg.App.Env)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

// generateVAPIDKeys prints a fresh key pair in the environment form config.Load reads.
func generateVAPIDKeys() {
	pub, priv, err := push.GenerateVAPIDKeys()
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate vapid keys:", err)
		os.Exit(1)
	}
	fmt.Printf("BRTS_PUSH_VAPID_PUBLIC_KEY=%s\nBRTS_PUSH_VAPID_PRIVATE_KEY=%s\n", pub, priv)
}
