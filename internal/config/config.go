package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string
	// 可选的全局访问密码（Basic Auth），为空则不启用
	BasicAuthUser string
	BasicAuthPass string

	PostgresDSN string
	RedisAddr   string

	CronSpec string
	// CronJobs 形如 "bbc:crossrail:1-3;guardian:hs2:1-9"，为空则 API 进程只提供查询
	CronJobs string

	GuardianAPIKey string
	BBCBaseURL     string
	GuardianAPIURL string
	ResultsPerPage int

	SentimentBackend string
	HFAPIToken       string
	HFEndpoint       string
	AnthropicAPIKey  string

	FetchWorkers int
	FetchPerHost int
	FetchTimeout time.Duration
	FetchDelay   time.Duration
	UserAgent    string

	LogLevel      string
	BulkDelimiter rune
	ResultsDir    string
	PageCacheTTL  time.Duration
	StripMode     string
}

// Load 先尝试加载 .env（不存在时忽略），再从环境变量读取配置
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		AppPort:          getEnv("APP_PORT", "9000"),
		BasicAuthUser:    getEnv("APP_BASIC_USER", ""),
		BasicAuthPass:    getEnv("APP_BASIC_PASS", ""),
		PostgresDSN:      getEnv("POSTGRES_DSN", "host=localhost user=newsharvest password=newsharvest dbname=newsharvest port=5432 sslmode=disable TimeZone=UTC"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		CronSpec:         getEnv("CRON_SPEC", "0 */6 * * *"),
		CronJobs:         getEnv("CRON_JOBS", ""),
		GuardianAPIKey:   getEnv("GUARDIAN_API_KEY", ""),
		BBCBaseURL:       getEnv("BBC_BASE_URL", "https://www.bbc.co.uk"),
		GuardianAPIURL:   getEnv("GUARDIAN_API_URL", "https://content.guardianapis.com"),
		ResultsPerPage:   getEnvInt("GUARDIAN_RESULTS_PER_PAGE", 9),
		SentimentBackend: strings.ToLower(getEnv("SENTIMENT_BACKEND", "huggingface")),
		HFAPIToken:       getEnv("HF_API_TOKEN", ""),
		HFEndpoint:       getEnv("HF_ENDPOINT", "https://api-inference.huggingface.co"),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		FetchWorkers:     getEnvInt("FETCH_WORKERS", 1),
		FetchPerHost:     getEnvInt("FETCH_PER_HOST", 2),
		FetchTimeout:     getEnvDuration("FETCH_TIMEOUT", 20*time.Second),
		FetchDelay:       getEnvDuration("FETCH_DELAY", 500*time.Millisecond),
		UserAgent:        getEnv("USER_AGENT", "NewsHarvestBot/1.0"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		BulkDelimiter:    getEnvRune("BULK_DELIMITER", '|'),
		ResultsDir:       getEnv("RESULTS_DIR", "results"),
		PageCacheTTL:     getEnvDuration("PAGE_CACHE_TTL", time.Hour),
		StripMode:        getEnv("STRIP_MODE", "first"),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// getEnvRune 只接受单个字符的分隔符
func getEnvRune(key string, def rune) rune {
	rs := []rune(os.Getenv(key))
	if len(rs) != 1 {
		return def
	}
	return rs[0]
}
