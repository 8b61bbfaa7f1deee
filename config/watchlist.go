package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// WatchlistEntry is one symbol/interval pair tracked from startup
type WatchlistEntry struct {
	Symbol   string `yaml:"symbol"`
	Interval string `yaml:"interval"`
}

// Watchlist is the YAML document referenced by WATCHLIST_FILE
type Watchlist struct {
	Subscriptions []WatchlistEntry `yaml:"subscriptions"`
}

// LoadWatchlist reads a watchlist file. A missing file yields an empty watchlist.
func LoadWatchlist(path string) (*Watchlist, error) {
	wl := &Watchlist{}
	if path == "" {
		return wl, nil
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read watchlist: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, wl); err != nil {
			return nil, fmt.Errorf("parse watchlist: %w", err)
		}
	}

	for i := range wl.Subscriptions {
		entry := &wl.Subscriptions[i]
		entry.Symbol = strings.ToUpper(strings.TrimSpace(entry.Symbol))
		if entry.Symbol == "" {
			return nil, fmt.Errorf("watchlist entry %d: symbol is required", i)
		}
		if entry.Interval == "" {
			entry.Interval = "1h"
		}
	}

	return wl, nil
}
