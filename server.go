// FILE: server.go
// Package main – HTTP operator surface (C11).
//
// Three operator routes (spec.md §6.4): /health, /status, and
// /api/build-watchlist (an out-of-scope trigger this engine merely
// acknowledges), plus /metrics. Handler shape -- ServeMux, small JSON structs, no
// framework -- mirrors the teacher's healthz/metrics mux in main.go before
// it was rewritten for this domain; /metrics keeps using promhttp exactly
// as the teacher wired it.
package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type statusResponse struct {
	TradingThreadActive bool   `json:"trading_thread_active"`
	Phase               string `json:"phase"`
	OpenPositions       int    `json:"open_positions"`
	SignalsToday        int64  `json:"signals_today"`
	SafeMode            bool   `json:"safe_mode"`
	SystemMode          string `json:"system_mode"`
	ETradeToken         string `json:"etrade_token"`
	UptimeSec           int64  `json:"uptime_sec"`
}

// NewHTTPMux builds C11's handler (spec.md §6.4).
func NewHTTPMux(eng *Engine) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Timestamp: time.Now().UTC()})
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		tokenState := string(eng.tokenManager.State())
		resp := statusResponse{
			TradingThreadActive: true,
			Phase:               string(eng.clock.Phase(time.Now().UTC())),
			OpenPositions:       eng.positions.Count(),
			SignalsToday:        eng.SignalsToday(),
			SafeMode:            eng.risk.SafeMode(),
			SystemMode:          string(eng.effectiveSystemMode),
			ETradeToken:         tokenState,
			UptimeSec:           int64(time.Since(eng.startedAt).Seconds()),
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("/api/build-watchlist", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"status": "error", "message": "POST required"})
			return
		}
		// The watchlist builder itself is out of scope (spec.md §1); this
		// route only acknowledges the trigger and reloads whatever CSV
		// already exists on disk.
		go eng.reloadWatchlist()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	})

	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
