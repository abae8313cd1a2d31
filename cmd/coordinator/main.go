// The coordinator binary accepts transfer requests and drives 2PC across
// the account participants, with the recovery worker running alongside.
package main

import (
	"context"
	log "log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sharedcode/xfer"
	"github.com/sharedcode/xfer/auth"
	"github.com/sharedcode/xfer/coordinator"
	"github.com/sharedcode/xfer/redis"
)

func main() {
	xfer.ConfigureLogging("xfer-api")

	redisURL := getenv("REDIS_URL", "redis://redis:6379/0")
	jwtSecret := getenv("JWT_SECRET", "dev-secret")
	addr := getenv("LISTEN_ADDR", ":8000")
	urls := map[string]string{
		"A": getenv("PARTICIPANT_A_URL", "http://account-a:8000"),
		"B": getenv("PARTICIPANT_B_URL", "http://account-b:8000"),
	}
	recoveryTimeout := time.Duration(getenvInt("RECOVERY_ROLLBACK_TIMEOUT_SECONDS", 10)) * time.Second
	dev := os.Getenv("XFER_ENV") == "DEV"

	if _, err := redis.OpenConnection(redis.Options{URL: redisURL}); err != nil {
		log.Error("opening redis connection failed", "url", redisURL, "error", err.Error())
		os.Exit(1)
	}
	defer redis.CloseConnection()
	cache := redis.NewClient()

	parts := coordinator.NewHTTPParticipants(urls, 5*time.Second)
	svc := coordinator.NewService(cache, parts, coordinator.Options{AllowSimulate: dev})
	worker := coordinator.NewRecoveryWorker(cache, parts, coordinator.RecoveryOptions{
		RollbackTimeout: recoveryTimeout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go worker.RunSupervised(ctx)

	router := coordinator.NewRouter(svc, auth.NewVerifier(jwtSecret))
	log.Info("coordinator listening", "addr", addr, "participants", urls, "dev", dev)
	if err := router.Run(addr); err != nil {
		log.Error("http server failed", "error", err.Error())
		os.Exit(1)
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Warn("ignoring non-integer env value", "key", key, "value", v)
		return def
	}
	return n
}
