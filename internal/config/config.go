// Package config loads and validates the JWCC (JSON-with-comments,
// trailing-commas-allowed) node configuration file via
// github.com/tailscale/hujson, the same standardize-then-unmarshal
// pattern the calvinalkan-agent-task example uses for its own config
// file.
package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tailscale/hujson"

	"github.com/raida-net/coinnode/internal/protocol"
)

// Config is the typed form of the node's JWCC config document.
type Config struct {
	NodeID          byte     `json:"node_id"`
	CoinID          byte     `json:"coin_id"`
	DataDir         string   `json:"data_dir"`
	ListenAddr      string   `json:"listen_addr"`
	Peers           []string `json:"peers"`
	AdminKeyHex     string   `json:"admin_key_hex"`
	RecordsPerPage  uint32   `json:"records_per_page"`
	TotalPages      uint32   `json:"total_pages"`
	FlushIntervalMS int64    `json:"flush_interval_ms"`
	TicketTTLS      int64    `json:"ticket_ttl_s"`
	ReservationTTLS int64    `json:"reservation_ttl_s"`
	AdminHTTPListen string   `json:"admin_http_listen"`
}

// FlushInterval returns the configured flush interval as a Duration.
func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMS) * time.Millisecond
}

// TicketTTL returns the configured ticket TTL as a Duration.
func (c Config) TicketTTL() time.Duration {
	return time.Duration(c.TicketTTLS) * time.Second
}

// ReservationTTL returns the configured reservation TTL as a Duration.
func (c Config) ReservationTTL() time.Duration {
	return time.Duration(c.ReservationTTLS) * time.Second
}

// AdminKey decodes the 16-byte admin key from its hex encoding.
func (c Config) AdminKey() ([16]byte, error) {
	var key [16]byte
	raw, err := hex.DecodeString(c.AdminKeyHex)
	if err != nil {
		return key, fmt.Errorf("config: admin_key_hex: %w", err)
	}
	if len(raw) != len(key) {
		return key, fmt.Errorf("config: admin_key_hex must decode to %d bytes, got %d", len(key), len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// Load reads path as a JWCC document, standardizes it to plain JSON, and
// unmarshals it into a Config, validating the result.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s is not valid JWCC: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every range spec.md and SPEC_FULL.md §4.L require.
func (c Config) Validate() error {
	if int(c.NodeID) >= protocol.TotalPeers {
		return fmt.Errorf("config: node_id %d out of range [0,%d)", c.NodeID, protocol.TotalPeers)
	}
	if len(c.Peers) != protocol.TotalPeers {
		return fmt.Errorf("config: peers must list exactly %d addresses, got %d", protocol.TotalPeers, len(c.Peers))
	}
	if _, err := c.AdminKey(); err != nil {
		return err
	}
	if c.RecordsPerPage == 0 {
		return fmt.Errorf("config: records_per_page must be > 0")
	}
	if c.TotalPages == 0 {
		return fmt.Errorf("config: total_pages must be > 0")
	}
	if c.FlushIntervalMS <= 0 {
		return fmt.Errorf("config: flush_interval_ms must be > 0")
	}
	if c.TicketTTLS <= 0 {
		return fmt.Errorf("config: ticket_ttl_s must be > 0")
	}
	if c.ReservationTTLS <= 0 {
		return fmt.Errorf("config: reservation_ttl_s must be > 0")
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir must be set")
	}
	return nil
}
