// FILE: watchlist.go
// Package main – Daily watchlist loading (§6.6).
//
// The watchlist builder itself (ranking, optional sentiment enrichment) is
// out of scope (spec.md §1); this file only loads the resulting ranked
// symbol list the builder writes to ./data/watchlist/dynamic_watchlist.csv,
// one column headed "symbol". Uses stdlib encoding/csv: the format is
// genuinely tabular, unlike the teacher's key=value .env reader in env.go.
package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

const defaultWatchlistPath = "./data/watchlist/dynamic_watchlist.csv"
const maxWatchlistSize = 118

// LoadDailyWatchlist reads the single-column "symbol" CSV written by the
// out-of-scope watchlist builder.
func LoadDailyWatchlist(path string) ([]Symbol, error) {
	if path == "" {
		path = defaultWatchlistPath
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("watchlist: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("watchlist: parse: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("watchlist: empty file")
	}
	header := rows[0]
	if len(header) == 0 || strings.ToLower(strings.TrimSpace(header[0])) != "symbol" {
		return nil, fmt.Errorf("watchlist: expected header \"symbol\", got %v", header)
	}
	var out []Symbol
	for _, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		sym := Symbol(strings.ToUpper(strings.TrimSpace(row[0])))
		if sym == "" || !sym.Valid() {
			continue
		}
		out = append(out, sym)
		if len(out) >= maxWatchlistSize {
			break
		}
	}
	return out, nil
}
