package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service.
type Config struct {
	Server      ServerConfig              `json:"server"`
	Chat        ChatConfig                `json:"chat"`
	LLM         LLMConfig                 `json:"llm"`
	Persistence PersistenceConfig         `json:"persistence"`
	Redis       RedisConfig               `json:"redis"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Admin       AdminConfig               `json:"admin"`
	Worker      WorkerConfig              `json:"worker"`
}

type ServerConfig struct {
	Address string `json:"address"`
}

// ChatConfig tunes the dialog engine.
type ChatConfig struct {
	RateLimitMessages      int `json:"rate_limit_messages"`
	RateLimitPeriodSeconds int `json:"rate_limit_period_seconds"`
	HistoryCap             int `json:"history_cap"`
	SearchDelayMinMS       int `json:"search_delay_min_ms"`
	SearchDelayMaxMS       int `json:"search_delay_max_ms"`
}

// LLMConfig configures the inference gateway.
type LLMConfig struct {
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	APIKey         string `json:"api_key"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	ProxyURL       string `json:"proxy_url"`
	MaxTokens      int    `json:"max_tokens"`
	SystemPrompt   string `json:"system_prompt"`
}

// PersistenceConfig selects the snapshot backend. Backend is "file",
// "redis", or a key of the databases map ("sqlite3", "mysql").
type PersistenceConfig struct {
	Backend   string `json:"backend"`
	StateFile string `json:"state_file"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

// AdminConfig lists privileged users and the outbound bridge endpoint.
type AdminConfig struct {
	AdminIDs    []int64 `json:"admin_ids"`
	OutboundURL string  `json:"outbound_url"`
}

type WorkerConfig struct {
	Workers   int `json:"workers"`
	QueueSize int `json:"queue_size"`
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyDefaults()

	if cfg.LLM.Model == "" {
		return nil, fmt.Errorf("llm.model must be configured")
	}
	if cfg.Persistence.StateFile != "" && !filepath.IsAbs(cfg.Persistence.StateFile) {
		cfg.Persistence.StateFile = filepath.Join(filepath.Dir(absPath), cfg.Persistence.StateFile)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8090"
	}
	if c.Chat.RateLimitMessages <= 0 {
		c.Chat.RateLimitMessages = 5
	}
	if c.Chat.RateLimitPeriodSeconds <= 0 {
		c.Chat.RateLimitPeriodSeconds = 10
	}
	if c.Chat.HistoryCap <= 0 {
		c.Chat.HistoryCap = 30
	}
	if c.Chat.SearchDelayMinMS <= 0 {
		c.Chat.SearchDelayMinMS = 3000
	}
	if c.Chat.SearchDelayMaxMS < c.Chat.SearchDelayMinMS {
		c.Chat.SearchDelayMaxMS = c.Chat.SearchDelayMinMS + 3000
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://inference.api.nscale.com/v1"
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 60
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 800
	}
	if c.Persistence.Backend == "" {
		c.Persistence.Backend = "file"
	}
	if c.Persistence.StateFile == "" {
		c.Persistence.StateFile = "bot_state.json"
	}
	if c.Worker.Workers <= 0 {
		c.Worker.Workers = 16
	}
	if c.Worker.QueueSize <= 0 {
		c.Worker.QueueSize = 256
	}
}
