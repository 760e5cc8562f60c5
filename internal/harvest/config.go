package harvest

import (
	"fmt"

	"github.com/LJTian/NewsHarvest/internal/collector"
	"github.com/LJTian/NewsHarvest/internal/config"
	"github.com/LJTian/NewsHarvest/internal/logger"
	"github.com/LJTian/NewsHarvest/internal/processor"
	"github.com/LJTian/NewsHarvest/internal/sentiment"
	"github.com/LJTian/NewsHarvest/internal/storage"
)

// Deps 由调用方提供的可选依赖
type Deps struct {
	Loader    Loader
	PageCache collector.PageCache
	// NoSentiment 为 true 时忽略 SENTIMENT_BACKEND
	NoSentiment bool
	Logger      logger.Logger
}

// FromConfig 按环境配置组装 Service
func FromConfig(cfg *config.Config, deps Deps) (*Service, error) {
	mode, err := processor.ParseStripMode(cfg.StripMode)
	if err != nil {
		return nil, err
	}

	fetcher, err := collector.NewCollyFetcher(collector.FetcherOptions{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.FetchTimeout,
		PerHost:   cfg.FetchPerHost,
		Delay:     cfg.FetchDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}

	var scorer sentiment.Scorer
	if !deps.NoSentiment {
		scorer, err = sentiment.New(sentiment.Options{
			Backend:         sentiment.Backend(cfg.SentimentBackend),
			HFEndpoint:      cfg.HFEndpoint,
			HFToken:         cfg.HFAPIToken,
			AnthropicAPIKey: cfg.AnthropicAPIKey,
		})
		if err != nil {
			return nil, err
		}
	}

	return NewService(fetcher, scorer, deps.Loader, Options{
		Sources:      SourceConfig(cfg, deps.PageCache),
		Workers:      cfg.FetchWorkers,
		FetchTimeout: cfg.FetchTimeout,
		StripMode:    mode,
		ResultsDir:   cfg.ResultsDir,
		Delimiter:    cfg.BulkDelimiter,
		Logger:       deps.Logger,
	}), nil
}

func SourceConfig(cfg *config.Config, cache collector.PageCache) collector.SourceConfig {
	return collector.SourceConfig{
		BBCBaseURL:     cfg.BBCBaseURL,
		GuardianAPIURL: cfg.GuardianAPIURL,
		GuardianAPIKey: cfg.GuardianAPIKey,
		ResultsPerPage: cfg.ResultsPerPage,
		PageCache:      cache,
		PageCacheTTL:   cfg.PageCacheTTL,
	}
}

// Registry storage.Store 满足该接口
type Registry interface {
	EnsureSource(id int, code, name, baseURL string) (*storage.NewsSource, error)
}

// RegisterSources 确保所有数据源在 news_sources 表中存在
func RegisterSources(reg Registry, cfg collector.SourceConfig) error {
	for _, info := range collector.Describe(cfg) {
		if _, err := reg.EnsureSource(info.ID, info.Code, info.Name, info.BaseURL); err != nil {
			return fmt.Errorf("ensure source %s: %w", info.Code, err)
		}
	}
	return nil
}
