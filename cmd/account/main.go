// The account binary hosts one 2PC participant owning a single account.
package main

import (
	log "log/slog"
	"os"
	"strconv"

	"github.com/sharedcode/xfer"
	"github.com/sharedcode/xfer/participant"
)

func main() {
	xfer.ConfigureLogging("xfer-account")

	account := getenv("ACCOUNT_NAME", "A")
	dataPath := getenv("DATA_PATH", "/data")
	initialBalance := getenvInt("INITIAL_BALANCE", 1000)
	addr := getenv("LISTEN_ADDR", ":8000")

	store := participant.NewStore(dataPath)
	svc, err := participant.NewService(store, account, initialBalance)
	if err != nil {
		log.Error("loading account state failed", "error", err.Error())
		os.Exit(1)
	}

	router := participant.NewRouter(svc)
	log.Info("participant listening", "account", account, "addr", addr, "state", store.Path())
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
