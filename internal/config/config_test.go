package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.jsonc")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func validConfigJWCC(peers string) string {
	return `{
  // node identity
  "node_id": 3,
  "coin_id": 1,
  "data_dir": "/var/lib/coinnode",
  "listen_addr": ":8080",
  "peers": [` + peers + `],
  "admin_key_hex": "00112233445566778899aabbccddeeff",
  "records_per_page": 256,
  "total_pages": 64,
  "flush_interval_ms": 1000,
  "ticket_ttl_s": 30,
  "reservation_ttl_s": 60,
  "admin_http_listen": ":9090", // trailing comma below is allowed
}
`
}

func peerList() string {
	out := make([]string, 25)
	for i := range out {
		out[i] = `"10.0.0.` + string(rune('0'+i%10)) + `:8080"`
	}
	return strings.Join(out, ",")
}

func TestLoadParsesValidJWCC(t *testing.T) {
	path := writeConfigFile(t, validConfigJWCC(peerList()))
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NodeID != 3 {
		t.Errorf("NodeID = %d, want 3", cfg.NodeID)
	}
	if len(cfg.Peers) != 25 {
		t.Errorf("len(Peers) = %d, want 25", len(cfg.Peers))
	}
	if cfg.FlushInterval().Milliseconds() != 1000 {
		t.Errorf("FlushInterval = %v, want 1s", cfg.FlushInterval())
	}
}

func TestLoadRejectsWrongPeerCount(t *testing.T) {
	path := writeConfigFile(t, validConfigJWCC(`"10.0.0.1:8080"`))
	if _, err := Load(path); err == nil {
		t.Fatal("Load: expected error for wrong peer count, got nil")
	}
}

func TestLoadRejectsNodeIDOutOfRange(t *testing.T) {
	body := strings.Replace(validConfigJWCC(peerList()), `"node_id": 3,`, `"node_id": 25,`, 1)
	path := writeConfigFile(t, body)
	if _, err := Load(path); err == nil {
		t.Fatal("Load: expected error for node_id out of range, got nil")
	}
}

func TestLoadRejectsMalformedAdminKey(t *testing.T) {
	body := strings.Replace(validConfigJWCC(peerList()), `"admin_key_hex": "00112233445566778899aabbccddeeff",`, `"admin_key_hex": "nothex",`, 1)
	path := writeConfigFile(t, body)
	if _, err := Load(path); err == nil {
		t.Fatal("Load: expected error for malformed admin key, got nil")
	}
}

func TestLoadRejectsZeroTTL(t *testing.T) {
	body := strings.Replace(validConfigJWCC(peerList()), `"ticket_ttl_s": 30,`, `"ticket_ttl_s": 0,`, 1)
	path := writeConfigFile(t, body)
	if _, err := Load(path); err == nil {
		t.Fatal("Load: expected error for zero ticket TTL, got nil")
	}
}

func TestAdminKeyDecodesToSixteenBytes(t *testing.T) {
	cfg := Config{AdminKeyHex: "00112233445566778899aabbccddeeff"}
	key, err := cfg.AdminKey()
	if err != nil {
		t.Fatalf("AdminKey: %v", err)
	}
	if key[0] != 0x00 || key[15] != 0xff {
		t.Errorf("AdminKey = %x, want boundary bytes 0x00.. 0xff", key)
	}
}
