// Command governor wires config, store, host client, catch-up,
// daemon, the runaway-detection pipeline, cross-replica kill fan-out,
// and the health/debug HTTP surface into a running control-plane
// process: flags/env -> .env -> dependencies -> HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tarsy-labs/session-governor/pkg/catchup"
	"github.com/tarsy-labs/session-governor/pkg/config"
	"github.com/tarsy-labs/session-governor/pkg/daemon"
	"github.com/tarsy-labs/session-governor/pkg/governor"
	"github.com/tarsy-labs/session-governor/pkg/healthsrv"
	"github.com/tarsy-labs/session-governor/pkg/hostclient"
	"github.com/tarsy-labs/session-governor/pkg/notify"
	"github.com/tarsy-labs/session-governor/pkg/store"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	envFile := flag.String("env-file", getEnv("GOVERNOR_ENV_FILE", ".env"), "Path to a .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("warning: could not load %s: %v", *envFile, err)
		log.Printf("continuing with existing environment variables...")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting session governor", "replica_id", cfg.ReplicaID, "host_base_url", cfg.Host.BaseURL)

	st, err := store.Connect(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("failed to connect to store: %v", err)
	}
	defer st.Close()
	slog.Info("connected to store")

	host := hostclient.New(cfg.Host.BaseURL, cfg.Host.Timeout)

	var gov *governor.Governor
	listener := notify.NewListener(storeDSN(cfg.Store), cfg.ReplicaID, func(n notify.KillNotice) {
		if n.ReplicaID == cfg.ReplicaID {
			return // this replica's own publish, already handled locally
		}
		slog.Info("dropping stale detector state on sibling kill notice", "session_id", n.SessionID, "replica_id", n.ReplicaID)
		gov.DropSession(n.SessionID)
	})
	if err := listener.Start(ctx); err != nil {
		log.Fatalf("failed to start cross-replica kill listener: %v", err)
	}
	defer listener.Stop(ctx)

	gov = governor.New(cfg.Loop, cfg.Fitter, cfg.AdvertiseHost, cfg.HealthPort, governor.Pipeline{
		Aborter:    host,
		Writer:     st,
		Fetcher:    host,
		Dispatcher: host,
		Publisher:  listener,
	})

	tee := governor.Tee(st, gov)

	catchUpRunner := catchup.New(host, host, st, cfg.CatchupWindow)
	d := daemon.New(host, tee, host, catchUpRunner.Run, cfg.Reconnect)

	health := &healthsrv.Server{Daemon: d, Gov: gov, Store: st}
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HealthPort)
		slog.Info("health/debug HTTP surface listening", "addr", addr)
		if err := health.Router().Run(addr); err != nil {
			slog.Error("health server stopped", "error", err)
		}
	}()

	if err := d.Start(ctx); err != nil {
		log.Fatalf("daemon exited with error: %v", err)
	}
	slog.Info("session governor shut down cleanly")
}

func storeDSN(cfg config.StoreConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
}
