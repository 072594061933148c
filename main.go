// FILE: main.go
// Package main – Program entrypoint.
//
// Boot sequence:
//   1) loadBotEnv()               – read .env (no shell exports required)
//   2) cfg := loadConfigFromEnv() – build runtime Config
//   3) cfg.Validate()             – exit 2 on an unsafe config
//   4) eng := NewEngine(cfg)      – wire every component (C1-C9)
//   5) start the HTTP surface (C11) on cfg.Port
//   6) scheduler.Run(ctx)         – drive C10's cadences until signalled
//   7) graceful shutdown: final monitor sweep, optional forced close, then
//      stop the HTTP server
//
// Exit codes (spec.md §6.5): 0 clean stop, 2 invalid configuration,
// 3 unrecoverable startup error, 130 SIGINT, 143 SIGTERM.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	os.Exit(run())
}

func run() int {
	loadBotEnv()
	cfg := loadConfigFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Printf("[FATAL] invalid configuration: %v", err)
		return 2
	}

	eng, err := NewEngine(&cfg)
	if err != nil {
		log.Printf("[FATAL] engine startup failed: %v", err)
		return 3
	}
	log.Printf("[INFO] engine started: strategy_mode=%s system_mode=%s (effective=%s) etrade_mode=%s",
		cfg.StrategyMode, cfg.SystemMode, eng.effectiveSystemMode, cfg.ETradeMode)

	mux := NewHTTPMux(eng)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}
	go func() {
		log.Printf("[INFO] http surface listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[ERROR] http server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())

	exitCode := 0
	go func() {
		sig := <-sigCh
		switch sig {
		case syscall.SIGTERM:
			exitCode = 143
		default:
			exitCode = 130
		}
		log.Printf("[INFO] received %s, shutting down", sig)
		cancel()
	}()

	scheduler := NewScheduler(eng)
	scheduler.Run(ctx) // blocks until ctx is cancelled, then runs the final sweep

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	return exitCode
}
