package harvest

import (
	"context"
	"fmt"
	"time"

	"github.com/LJTian/NewsHarvest/internal/collector"
	"github.com/LJTian/NewsHarvest/internal/export"
	"github.com/LJTian/NewsHarvest/internal/logger"
	"github.com/LJTian/NewsHarvest/internal/pipeline"
	"github.com/LJTian/NewsHarvest/internal/processor"
	"github.com/LJTian/NewsHarvest/internal/sentiment"
)

// Loader 批量入库，storage.Store 满足该接口
type Loader interface {
	BulkLoad(ctx context.Context, term string, records []sentiment.ScoredRecord) (int64, error)
}

type Options struct {
	Sources      collector.SourceConfig
	Workers      int
	FetchTimeout time.Duration
	StripMode    processor.StripMode
	// ResultsDir Task.Save 为 true 时导出文件的目录
	ResultsDir string
	Delimiter  rune
	Resolver   pipeline.Resolver
	Logger     logger.Logger
}

// Task 一次完整的采集任务
type Task struct {
	pipeline.Request
	Save bool
	// Boilerplate 非空时覆盖数据源默认的短语
	Boilerplate []string
}

type Result struct {
	Source   string                   `json:"source"`
	Term     string                   `json:"term"`
	Stats    pipeline.Stats           `json:"stats"`
	Scored   bool                     `json:"scored"`
	File     string                   `json:"file,omitempty"`
	Inserted int64                    `json:"inserted"`
	Records  []sentiment.ScoredRecord `json:"-"`
}

// Service 串起 采集 -> 情感分析 -> 导出 -> 入库。scorer 与 loader 均可为 nil
type Service struct {
	opts    Options
	fetcher collector.Fetcher
	scorer  sentiment.Scorer
	loader  Loader
	log     logger.Logger
}

func NewService(fetcher collector.Fetcher, scorer sentiment.Scorer, loader Loader, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.ResultsDir == "" {
		opts.ResultsDir = "results"
	}
	return &Service{
		opts:    opts,
		fetcher: fetcher,
		scorer:  scorer,
		loader:  loader,
		log:     opts.Logger,
	}
}

// Harvest 执行一个任务。输入校验失败时返回原始错误，数据源整体失败时返回 *pipeline.RunError
func (s *Service) Harvest(ctx context.Context, task Task) (*Result, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}
	kind, _ := collector.ParseKind(string(task.Kind))

	cfg := s.opts.Sources
	if len(task.Boilerplate) > 0 {
		cfg.Boilerplate = task.Boilerplate
	}
	src, err := collector.New(kind, cfg)
	if err != nil {
		return nil, err
	}

	p := pipeline.New(src, s.fetcher, pipeline.Options{
		Workers:      s.opts.Workers,
		FetchTimeout: s.opts.FetchTimeout,
		StripMode:    s.opts.StripMode,
		Resolver:     s.opts.Resolver,
		Logger:       s.log,
	})
	records, err := p.Run(ctx, task.Term, task.Pages)
	if err != nil {
		return nil, err
	}

	res := &Result{Source: src.Name(), Term: task.Term, Stats: p.LastStats()}
	log := s.log.With(logger.String("source", res.Source), logger.String("term", res.Term))

	if s.scorer != nil && len(records) > 0 {
		scored, err := sentiment.ScoreRecords(ctx, s.scorer, records)
		if err != nil {
			return nil, fmt.Errorf("sentiment: %w", err)
		}
		res.Records = scored
		res.Scored = true
	} else {
		res.Records = sentiment.Unscored(records)
	}

	if task.Save {
		path, err := export.SaveScored(s.opts.ResultsDir, task.Term, res.Source, s.opts.Delimiter, res.Records)
		if err != nil {
			return nil, fmt.Errorf("export: %w", err)
		}
		res.File = path
		log.Info("results exported", logger.String("file", path))
	}

	if s.loader != nil && len(res.Records) > 0 {
		n, err := s.loader.BulkLoad(ctx, task.Term, res.Records)
		if err != nil {
			return nil, fmt.Errorf("bulk load: %w", err)
		}
		res.Inserted = n
	}

	log.Info("harvest job done",
		logger.Int("records", len(res.Records)),
		logger.Int("inserted", int(res.Inserted)),
	)
	return res, nil
}
