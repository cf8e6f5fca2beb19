package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Database.Port != 5432 || cfg.Database.Name != "codedox" {
		t.Errorf("unexpected database defaults: %+v", cfg.Database)
	}
	if cfg.API.Port != 8000 || cfg.API.MaxRequestSize != 10<<20 {
		t.Errorf("unexpected api defaults: %+v", cfg.API)
	}
	if cfg.LLM.Enabled {
		t.Error("annotation must be off by default")
	}
	if !cfg.Upload.Enabled {
		t.Error("upload must be on by default")
	}
	if cfg.Crawler.MaxConcurrentCrawls != 5 || cfg.Crawler.UserAgent != "codedox/1.0" {
		t.Errorf("unexpected crawler defaults: %+v", cfg.Crawler)
	}
	if cfg.Search.DefaultMaxResults != 10 || cfg.Search.MaxResults != 100 {
		t.Errorf("unexpected search defaults: %+v", cfg.Search)
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, Name: "docs", User: "u", Password: "p"}
	want := "postgres://u:p@db:5433/docs"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
database:
  host: pg.internal
  port: 5433
api:
  port: 9000
crawler:
  politeDelayMs: 500
upload:
  enabled: false
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path)
	if cfg.Database.Host != "pg.internal" || cfg.Database.Port != 5433 {
		t.Errorf("file values not applied: %+v", cfg.Database)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("api port = %d, want 9000", cfg.API.Port)
	}
	if cfg.Crawler.PoliteDelayMs != 500 {
		t.Errorf("polite delay = %d, want 500", cfg.Crawler.PoliteDelayMs)
	}
	if cfg.Upload.Enabled {
		t.Error("upload.enabled: false not applied")
	}
	// Values the file does not mention keep their defaults.
	if cfg.Database.Name != "codedox" {
		t.Errorf("unset field lost its default: %q", cfg.Database.Name)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if cfg.API.Port != 8000 {
		t.Errorf("missing file must fall back to defaults, got port %d", cfg.API.Port)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("database:\n  host: fromfile\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("DB_HOST", "fromenv")
	t.Setenv("API_MAX_REQUEST_SIZE", "1048576")
	t.Setenv("UPLOAD_ENABLED", "false")
	t.Setenv("CODE_LLM_API_KEY", "sk-test")

	cfg := Load(path)
	if cfg.Database.Host != "fromenv" {
		t.Errorf("env must win over file, got %q", cfg.Database.Host)
	}
	if cfg.API.MaxRequestSize != 1048576 {
		t.Errorf("max request size = %d, want 1048576", cfg.API.MaxRequestSize)
	}
	if cfg.Upload.Enabled {
		t.Error("UPLOAD_ENABLED=false not applied")
	}
	if !cfg.LLM.Enabled {
		t.Error("an API key must enable annotation")
	}
}

func TestMCPAuthTokensFromEnv(t *testing.T) {
	t.Setenv("MCP_AUTH_ENABLED", "true")
	t.Setenv("MCP_AUTH_TOKEN", "primary")
	t.Setenv("MCP_AUTH_TOKENS", "alpha, beta,,gamma")

	cfg := Load("")
	if !cfg.MCPAuth.Enabled {
		t.Error("MCP_AUTH_ENABLED=true not applied")
	}
	want := []string{"primary", "alpha", "beta", "gamma"}
	if len(cfg.MCPAuth.Tokens) != len(want) {
		t.Fatalf("tokens = %v, want %v", cfg.MCPAuth.Tokens, want)
	}
	for i, tok := range want {
		if cfg.MCPAuth.Tokens[i] != tok {
			t.Errorf("token[%d] = %q, want %q", i, cfg.MCPAuth.Tokens[i], tok)
		}
	}
}

func TestEnvMsAcceptsSecondsAndDurations(t *testing.T) {
	t.Setenv("CRAWL_HEARTBEAT_STALL_THRESHOLD", "90")
	cfg := Load("")
	if cfg.Crawler.HeartbeatStallThresholdMs != 90000 {
		t.Errorf("bare seconds: got %d ms, want 90000", cfg.Crawler.HeartbeatStallThresholdMs)
	}

	t.Setenv("CRAWL_HEARTBEAT_STALL_THRESHOLD", "2m30s")
	cfg = Load("")
	if cfg.Crawler.HeartbeatStallThresholdMs != 150000 {
		t.Errorf("duration string: got %d ms, want 150000", cfg.Crawler.HeartbeatStallThresholdMs)
	}
}

func TestClampBounds(t *testing.T) {
	t.Setenv("CRAWL_MAX_CONCURRENT_CRAWLS", "0")
	cfg := Load("")
	if cfg.Crawler.MaxConcurrentCrawls != 1 {
		t.Errorf("zero crawls must clamp to 1, got %d", cfg.Crawler.MaxConcurrentCrawls)
	}

	t.Setenv("CRAWL_MAX_CONCURRENT_CRAWLS", "500")
	cfg = Load("")
	if cfg.Crawler.MaxConcurrentCrawls != 100 {
		t.Errorf("excess crawls must clamp to 100, got %d", cfg.Crawler.MaxConcurrentCrawls)
	}

	t.Setenv("SEARCH_MAX_RESULTS", "5")
	t.Setenv("SEARCH_DEFAULT_MAX_RESULTS", "20")
	cfg = Load("")
	if cfg.Search.MaxResults < cfg.Search.DefaultMaxResults {
		t.Errorf("max results %d must not drop below default %d",
			cfg.Search.MaxResults, cfg.Search.DefaultMaxResults)
	}
}

func TestDurationHelpers(t *testing.T) {
	l := LLMConfig{TimeoutMs: 5000}
	if got := l.Timeout(); got != 5*time.Second {
		t.Errorf("Timeout() = %v, want 5s", got)
	}
	l.TimeoutMs = 0
	if got := l.Timeout(); got != 30*time.Second {
		t.Errorf("zero timeout must fall back to 30s, got %v", got)
	}

	c := CrawlerConfig{}
	if got := c.HeartbeatStallThreshold(); got != time.Minute {
		t.Errorf("stall threshold fallback = %v, want 1m", got)
	}
}
