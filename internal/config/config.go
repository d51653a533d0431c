package config

import (
	"os"
	"strconv"
	"time"
)

// Config medquery（HTTP API）配置
type Config struct {
	HTTP struct {
		Addr string
	}

	DBEnabled bool
	Database  DatabaseConfig

	Redis struct {
		Enabled  bool
		Addr     string
		Password string
		DB       int
		CacheTTL time.Duration
	}

	Log struct {
		Level  string
		Format string
	}

	// Data 本地快照数据文件（JSON，可选）
	Data struct {
		File         string
		SnapshotSize int
	}

	Bridge BridgeConfig
	AI     AIConfig    
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// BridgeConfig 远端工具桥配置（MCP 风格 HTTP 工具服务）
type BridgeConfig struct {
	Enabled bool         
	URL     string       
	Timeout time.Duration
}

// AIConfig 生成式后端配置（OpenAI 兼容网关 + 内容安全校验）
type AIConfig struct {
	Enabled     bool         
	BaseURL     string       
	APIKey      string       
	Model       string       
	MaxTokens   int          
	Temperature float64      
	Timeout     time.Duration

	ShieldEnabled bool  
	ShieldURL     string
	ShieldAPIKey  string
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	// Default to true for local dev: if DB is unavailable, medquery
	// falls back to the in-memory repository.
	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "medquery")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Enabled = getEnv("REDIS_ENABLED", "false") == "true"
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0
	cfg.Redis.CacheTTL = parseDuration(getEnv("RESPONSE_CACHE_TTL", "60s"), 60*time.Second)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Data.File = getEnv("PATIENT_DATA_FILE", "data/mock_patient_data.json")
	cfg.Data.SnapshotSize = parseInt(getEnv("SNAPSHOT_SIZE", "1000"), 1000)

	// 远端工具桥（默认禁用；失败时本地兜底）
	cfg.Bridge.Enabled = getEnv("MCP_ENABLED", "false") == "true"
	cfg.Bridge.URL = getEnv("MCP_URL", "http://localhost:8000")
	cfg.Bridge.Timeout = parseDuration(getEnv("MCP_TIMEOUT", "10s"), 10*time.Second)

	// 生成式后端（默认禁用；失败时规则路径兜底）
	cfg.AI.Enabled = getEnv("AI_ENABLED", "false") == "true"
	cfg.AI.BaseURL = getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1")
	cfg.AI.APIKey = getEnv("OPENAI_API_KEY", "")
	cfg.AI.Model = getEnv("OPENAI_MODEL", "gpt-4")
	cfg.AI.MaxTokens = parseInt(getEnv("OPENAI_MAX_TOKENS", "1000"), 1000)
	cfg.AI.Temperature = parseFloat(getEnv("OPENAI_TEMPERATURE", "0.1"), 0.1)
	cfg.AI.Timeout = parseDuration(getEnv("OPENAI_TIMEOUT", "60s"), 60*time.Second)
	cfg.AI.ShieldEnabled = getEnv("SHIELD_ENABLED", "false") == "true"
	cfg.AI.ShieldURL = getEnv("SHIELD_URL", "")
	cfg.AI.ShieldAPIKey = getEnv("SHIELD_API_KEY", "")

	return cfg
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Database +
		" sslmode=" + c.SSLMode
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseFloat(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
