package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// DSN builds a pgx-compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", d.User, d.Password, d.Host, d.Port, d.Name)
}

type APIConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	CORSOrigins    []string `yaml:"corsOrigins"`
	MaxRequestSize int      `yaml:"maxRequestSize"`
}

type LLMConfig struct {
	APIKey      string `yaml:"apiKey"`
	BaseURL     string `yaml:"baseURL"`
	Model       string `yaml:"model"`
	NumParallel int    `yaml:"numParallel"`
	BatchSize   int    `yaml:"batchSize"`
	TimeoutMs   int    `yaml:"timeoutMs"`
	Enabled     bool   `yaml:"enabled"`
}

func (l LLMConfig) Timeout() time.Duration {
	return durationOr(l.TimeoutMs, 30*time.Second)
}

type CrawlerConfig struct {
	MaxConcurrentPages        int    `yaml:"maxConcurrentPages"`
	MaxConcurrentSessions     int    `yaml:"maxConcurrentSessions"`
	MaxConcurrentCrawls       int    `yaml:"maxConcurrentCrawls"`
	ContentSizeLimit          int    `yaml:"contentSizeLimit"`
	RespectRobotsTxt          bool   `yaml:"respectRobotsTxt"`
	UserAgent                 string `yaml:"userAgent"`
	FetchTimeoutMs            int    `yaml:"fetchTimeoutMs"`
	TaskCancellationTimeoutMs int    `yaml:"taskCancellationTimeoutMs"`
	HeartbeatStallThresholdMs int    `yaml:"heartbeatStallThresholdMs"`
	PoliteDelayMs             int    `yaml:"politeDelayMs"`
}

func (c CrawlerConfig) FetchTimeout() time.Duration {
	return durationOr(c.FetchTimeoutMs, 30*time.Second)
}

func (c CrawlerConfig) TaskCancellationTimeout() time.Duration {
	return durationOr(c.TaskCancellationTimeoutMs, 5*time.Second)
}

func (c CrawlerConfig) HeartbeatStallThreshold() time.Duration {
	return durationOr(c.HeartbeatStallThresholdMs, 60*time.Second)
}

type RodConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BrowserURL string `yaml:"browserURL"`
}

type MCPAuthConfig struct {
	Enabled bool     `yaml:"enabled"`
	Tokens  []string `yaml:"tokens"`
}

type CodeConfig struct {
	MaxCodeBlockSize int `yaml:"maxCodeBlockSize"`
	MinCodeLines     int `yaml:"minCodeLines"`
	MaxContextLength int `yaml:"maxContextLength"`
}

type SearchConfig struct {
	MaxResults           int     `yaml:"maxResults"`
	DefaultMaxResults    int     `yaml:"defaultMaxResults"`
	MinScore             float64 `yaml:"minScore"`
	SnippetPreviewLength int     `yaml:"snippetPreviewLength"`
	BoostRecentDays      int     `yaml:"boostRecentDays"`
	CharsPerToken        int     `yaml:"charsPerToken"`
	ChunkOverlapPercent  int     `yaml:"chunkOverlapPercent"`
}

type UploadConfig struct {
	Enabled bool `yaml:"enabled"`
}

type RedisConfig struct {
	URL             string `yaml:"url"`
	RateLimitPerMin int    `yaml:"rateLimitPerMinute"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	LLM      LLMConfig      `yaml:"llm"`
	Crawler  CrawlerConfig  `yaml:"crawler"`
	Rod      RodConfig      `yaml:"rod"`
	MCPAuth  MCPAuthConfig  `yaml:"mcpAuth"`
	Code     CodeConfig     `yaml:"code"`
	Search   SearchConfig   `yaml:"search"`
	Upload   UploadConfig   `yaml:"upload"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
}

// Default returns a Config populated with built-in defaults. File and env
// loading layer on top of this.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Host: "localhost", Port: 5432, Name: "codedox", User: "codedox"},
		API:      APIConfig{Host: "0.0.0.0", Port: 8000, MaxRequestSize: 10 << 20},
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com/v1",
			NumParallel: 5,
			BatchSize:   5,
			TimeoutMs:   30000,
		},
		Crawler: CrawlerConfig{
			MaxConcurrentPages:        5,
			MaxConcurrentSessions:     20,
			MaxConcurrentCrawls:       5,
			ContentSizeLimit:          5 << 20,
			UserAgent:                 "codedox/1.0",
			FetchTimeoutMs:            30000,
			TaskCancellationTimeoutMs: 5000,
			HeartbeatStallThresholdMs: 60000,
			PoliteDelayMs:             250,
		},
		Code: CodeConfig{
			MaxCodeBlockSize: 50000,
			MinCodeLines:     1,
			MaxContextLength: 2000,
		},
		Search: SearchConfig{
			MaxResults:           100,
			DefaultMaxResults:    10,
			SnippetPreviewLength: 400,
			CharsPerToken:        4,
			ChunkOverlapPercent:  10,
		},
		Upload: UploadConfig{Enabled: true},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads the optional YAML config file at path (a missing file is fine)
// and then applies environment variable overrides. The env names are part
// of the external contract and always win over the file.
func Load(path string) *Config {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err == nil {
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
				log.Fatalf("failed to decode config: %v", err)
			}
		} else if !os.IsNotExist(err) {
			log.Fatalf("failed to open config file: %v", err)
		}
	}

	cfg.applyEnv()
	cfg.clamp()
	return cfg
}

func (c *Config) applyEnv() {
	envStr(&c.Database.Host, "DB_HOST")
	envInt(&c.Database.Port, "DB_PORT")
	envStr(&c.Database.Name, "DB_NAME")
	envStr(&c.Database.User, "DB_USER")
	envStr(&c.Database.Password, "DB_PASSWORD")

	envStr(&c.LLM.APIKey, "CODE_LLM_API_KEY")
	envStr(&c.LLM.BaseURL, "CODE_LLM_BASE_URL")
	envStr(&c.LLM.Model, "CODE_LLM_EXTRACTION_MODEL")
	envInt(&c.LLM.NumParallel, "CODE_LLM_NUM_PARALLEL")
	if c.LLM.APIKey != "" {
		c.LLM.Enabled = true
	}

	envInt(&c.Crawler.MaxConcurrentPages, "CRAWL_MAX_CONCURRENT_PAGES")
	envInt(&c.Crawler.MaxConcurrentSessions, "CRAWL_MAX_CONCURRENT_SESSIONS")
	envInt(&c.Crawler.MaxConcurrentCrawls, "CRAWL_MAX_CONCURRENT_CRAWLS")
	envInt(&c.Crawler.ContentSizeLimit, "CRAWL_CONTENT_SIZE_LIMIT")
	envBool(&c.Crawler.RespectRobotsTxt, "CRAWL_RESPECT_ROBOTS_TXT")
	envStr(&c.Crawler.UserAgent, "CRAWL_USER_AGENT")
	envMs(&c.Crawler.TaskCancellationTimeoutMs, "CRAWL_TASK_CANCELLATION_TIMEOUT")
	envMs(&c.Crawler.HeartbeatStallThresholdMs, "CRAWL_HEARTBEAT_STALL_THRESHOLD")

	envBool(&c.MCPAuth.Enabled, "MCP_AUTH_ENABLED")
	if tok := os.Getenv("MCP_AUTH_TOKEN"); tok != "" {
		c.MCPAuth.Tokens = append(c.MCPAuth.Tokens, tok)
	}
	if toks := os.Getenv("MCP_AUTH_TOKENS"); toks != "" {
		for _, t := range strings.Split(toks, ",") {
			if t = strings.TrimSpace(t); t != "" {
				c.MCPAuth.Tokens = append(c.MCPAuth.Tokens, t)
			}
		}
	}

	envStr(&c.API.Host, "API_HOST")
	envInt(&c.API.Port, "API_PORT")
	if origins := os.Getenv("API_CORS_ORIGINS"); origins != "" {
		c.API.CORSOrigins = strings.Split(origins, ",")
	}
	envInt(&c.API.MaxRequestSize, "API_MAX_REQUEST_SIZE")

	envInt(&c.Code.MaxCodeBlockSize, "CODE_MAX_CODE_BLOCK_SIZE")
	envInt(&c.Code.MinCodeLines, "CODE_MIN_CODE_LINES")
	envInt(&c.Code.MaxContextLength, "CODE_MAX_CONTEXT_LENGTH")

	envInt(&c.Search.MaxResults, "SEARCH_MAX_RESULTS")
	envInt(&c.Search.DefaultMaxResults, "SEARCH_DEFAULT_MAX_RESULTS")
	envFloat(&c.Search.MinScore, "SEARCH_MIN_SCORE")
	envInt(&c.Search.SnippetPreviewLength, "SEARCH_SNIPPET_PREVIEW_LENGTH")
	envInt(&c.Search.BoostRecentDays, "SEARCH_BOOST_RECENT_DAYS")

	envBool(&c.Upload.Enabled, "UPLOAD_ENABLED")
	envStr(&c.Redis.URL, "REDIS_URL")

	envStr(&c.Log.Level, "LOG_LEVEL")
	envStr(&c.Log.File, "LOG_FILE")
}

// clamp enforces hard bounds that hold regardless of where a value came from.
func (c *Config) clamp() {
	if c.Crawler.MaxConcurrentCrawls < 1 {
		c.Crawler.MaxConcurrentCrawls = 1
	}
	if c.Crawler.MaxConcurrentCrawls > 100 {
		c.Crawler.MaxConcurrentCrawls = 100
	}
	if c.Crawler.MaxConcurrentSessions < 1 {
		c.Crawler.MaxConcurrentSessions = 1
	}
	if c.LLM.NumParallel < 1 {
		c.LLM.NumParallel = 1
	}
	if c.LLM.BatchSize < 1 {
		c.LLM.BatchSize = 1
	}
	if c.Search.CharsPerToken < 1 {
		c.Search.CharsPerToken = 4
	}
	if c.Search.ChunkOverlapPercent < 0 || c.Search.ChunkOverlapPercent > 50 {
		c.Search.ChunkOverlapPercent = 10
	}
	if c.Search.DefaultMaxResults < 1 {
		c.Search.DefaultMaxResults = 10
	}
	if c.Search.MaxResults < c.Search.DefaultMaxResults {
		c.Search.MaxResults = c.Search.DefaultMaxResults
	}
}

func envStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		}
	}
}

// envMs accepts either a bare number of seconds or a Go duration string,
// storing the result in milliseconds.
func envMs(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n * 1000
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = int(d.Milliseconds())
	}
}

func durationOr(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
