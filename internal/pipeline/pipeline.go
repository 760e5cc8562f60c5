package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/LJTian/NewsHarvest/internal/collector"
	"github.com/LJTian/NewsHarvest/internal/logger"
	"github.com/LJTian/NewsHarvest/internal/processor"
)

var (
	ErrEmptyTerm = errors.New("empty search term")
	ErrNoPages   = errors.New("empty page range")
)

const defaultFetchTimeout = 20 * time.Second

// Request 一次采集请求，由调用方构造，运行期间不修改
type Request struct {
	Term  string
	Kind  collector.Kind
	Pages []int
}

// Validate 在任何网络请求之前检查输入
func (r Request) Validate() error {
	if strings.TrimSpace(r.Term) == "" {
		return ErrEmptyTerm
	}
	if _, err := collector.ParseKind(string(r.Kind)); err != nil {
		return err
	}
	return validatePages(r.Pages)
}

func validatePages(pages []int) error {
	if len(pages) == 0 {
		return ErrNoPages
	}
	for _, p := range pages {
		if p < 1 {
			return &collector.InvalidPageError{Page: p}
		}
	}
	return nil
}

// RunError 整次运行失败（例如数据源域名无法解析），Stage 为失败时所处阶段
type RunError struct {
	Source string
	Stage  Stage
	Err    error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: run failed while %s: %v", e.Source, e.Stage, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Resolver net.Resolver 满足该接口；测试中可替换
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

type Options struct {
	// Workers <= 1 时逐条顺序抓取文章；大于 1 时同一结果页内的文章并发抓取
	Workers      int
	FetchTimeout time.Duration
	StripMode    processor.StripMode
	Resolver     Resolver
	Logger       logger.Logger
}

// Stats 最近一次运行的计数
type Stats struct {
	Pages          int `json:"pages"`
	FailedPages    int `json:"failedPages"`
	Candidates     int `json:"candidates"`
	FailedArticles int `json:"failedArticles"`
	BadDates       int `json:"badDates"`
	Dropped        int `json:"dropped"`
	Records        int `json:"records"`
}

// Pipeline 单个数据源的采集流程：地址 -> 结果页 -> 文章 -> 清洗 -> 聚合。
// 同一个 Pipeline 不应并发调用 Run。
type Pipeline struct {
	source  collector.Source
	fetcher collector.Fetcher
	opts    Options
	log     logger.Logger

	mu      sync.Mutex
	stage   Stage
	stats   Stats
	results []collector.SearchResultPage
}

func New(source collector.Source, fetcher collector.Fetcher, opts Options) *Pipeline {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Resolver == nil {
		opts.Resolver = net.DefaultResolver
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Pipeline{
		source:  source,
		fetcher: fetcher,
		opts:    opts,
		log:     log.With(logger.String("source", source.Name())),
	}
}

func (p *Pipeline) Source() collector.Source {
	return p.source
}

// Stage 当前所处阶段
func (p *Pipeline) Stage() Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stage
}

// LastResultPages 最近一次 Run 成功取回的结果页及其候选链接
func (p *Pipeline) LastResultPages() []collector.SearchResultPage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]collector.SearchResultPage(nil), p.results...)
}

// LastStats 最近一次 Run 的统计
func (p *Pipeline) LastStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Pipeline) setStage(s Stage) {
	p.mu.Lock()
	p.stage = s
	p.mu.Unlock()
}

// Run 采集 term 在 pages 范围内的文章，返回去重、编号后的记录。
// 单条失败只记录日志并在聚合时丢弃；只有数据源整体不可用或 ctx 取消时返回 *RunError。
func (p *Pipeline) Run(ctx context.Context, term string, pages []int) ([]processor.Record, error) {
	p.mu.Lock()
	p.stage = StagePending
	p.stats = Stats{}
	p.results = nil
	p.mu.Unlock()

	if strings.TrimSpace(term) == "" {
		p.setStage(StageFailed)
		return nil, ErrEmptyTerm
	}
	if err := validatePages(pages); err != nil {
		p.setStage(StageFailed)
		return nil, err
	}

	log := p.log.With(logger.String("term", term))
	start := time.Now()
	log.Info("harvest started", logger.Ints("pages", pages))

	p.setStage(StageBuildingAddresses)
	if err := p.resolveSource(ctx); err != nil {
		return nil, p.fail(StageBuildingAddresses, err)
	}
	addresses := make([]string, len(pages))
	for i, page := range pages {
		addr, err := p.source.PageAddress(term, page)
		if err != nil {
			return nil, p.fail(StageBuildingAddresses, err)
		}
		addresses[i] = addr
	}

	var (
		stats    Stats
		articles []processor.Article
		results  []collector.SearchResultPage
	)
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, p.fail(StageFetchingResultPages, err)
		}

		p.setStage(StageFetchingResultPages)
		stats.Pages++
		cands, err := p.resultPage(ctx, addresses[i])
		if err != nil {
			if ctx.Err() != nil {
				return nil, p.fail(StageFetchingResultPages, ctx.Err())
			}
			stats.FailedPages++
			log.Warn("result page failed", logger.Int("page", page), logger.Error(err))
			continue
		}
		stats.Candidates += len(cands)
		results = append(results, resultPageOf(p.source.Name(), page, cands))
		log.Debug("result page fetched", logger.Int("page", page), logger.Int("candidates", len(cands)))

		p.setStage(StageExtractingArticles)
		raws, failed := p.extractAll(ctx, cands)
		if err := ctx.Err(); err != nil {
			return nil, p.fail(StageExtractingArticles, err)
		}
		stats.FailedArticles += failed

		p.setStage(StageNormalizing)
		for _, raw := range raws {
			a, err := processor.Normalize(raw, p.source.Boilerplate(), p.opts.StripMode)
			if err != nil {
				stats.BadDates++
				log.Warn("article date rejected", logger.String("url", raw.URL), logger.Error(err))
			}
			articles = append(articles, a)
		}
	}

	p.setStage(StageAggregating)
	records := processor.NewProcessor(p.source.ID()).Process(articles)
	stats.Records = len(records)
	stats.Dropped = len(articles) - len(records)

	p.mu.Lock()
	p.stage = StageDone
	p.stats = stats
	p.results = results
	p.mu.Unlock()

	log.Info("harvest done",
		logger.Int("pages", stats.Pages),
		logger.Int("failed_pages", stats.FailedPages),
		logger.Int("candidates", stats.Candidates),
		logger.Int("failed_articles", stats.FailedArticles),
		logger.Int("dropped", stats.Dropped),
		logger.Int("records", stats.Records),
		logger.Duration("elapsed", time.Since(start)),
	)
	return records, nil
}

// RunRequest 校验 Request 后执行；Request 的数据源必须与 Pipeline 一致
func (p *Pipeline) RunRequest(ctx context.Context, req Request) ([]processor.Record, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	kind, _ := collector.ParseKind(string(req.Kind))
	if string(kind) != p.source.Name() {
		return nil, fmt.Errorf("%w: pipeline serves %q, request wants %q", collector.ErrUnknownSource, p.source.Name(), req.Kind)
	}
	return p.Run(ctx, req.Term, req.Pages)
}

func (p *Pipeline) fail(stage Stage, err error) error {
	p.setStage(StageFailed)
	p.log.Error("harvest failed", logger.String("stage", stage.String()), logger.Error(err))
	return &RunError{Source: p.source.Name(), Stage: stage, Err: err}
}

// resolveSource 数据源域名无法解析时整次运行失败；IP 地址直接跳过
func (p *Pipeline) resolveSource(ctx context.Context) error {
	u, err := url.Parse(p.source.BaseURL())
	if err != nil {
		return fmt.Errorf("parse source base url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("source base url %q has no host", p.source.BaseURL())
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	lctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()
	if _, err := p.opts.Resolver.LookupHost(lctx, host); err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	return nil
}

func resultPageOf(source string, page int, cands []collector.Candidate) collector.SearchResultPage {
	links := make([]string, len(cands))
	for i, c := range cands {
		links[i] = c.URL
	}
	return collector.SearchResultPage{Source: source, Page: page, Links: links}
}

func (p *Pipeline) resultPage(ctx context.Context, address string) ([]collector.Candidate, error) {
	fctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()
	return p.source.Links(fctx, p.fetcher, address)
}

// extractAll 按候选顺序返回抽取结果。Workers > 1 时并发抓取，
// 结果按下标写入，join 之后顺序与发现顺序一致
func (p *Pipeline) extractAll(ctx context.Context, cands []collector.Candidate) ([]collector.RawArticle, int) {
	raws := make([]collector.RawArticle, len(cands))
	ok := make([]bool, len(cands))

	if p.opts.Workers <= 1 {
		for i, c := range cands {
			if ctx.Err() != nil {
				break
			}
			raws[i], ok[i] = p.extractOne(ctx, c)
		}
	} else {
		var (
			wg  sync.WaitGroup
			sem = make(chan struct{}, p.opts.Workers)
		)
		for i, c := range cands {
			if ctx.Err() != nil {
				break
			}
			wg.Add(1)
			sem <- struct{}{}
			go func(i int, c collector.Candidate) {
				defer wg.Done()
				defer func() { <-sem }()
				raws[i], ok[i] = p.extractOne(ctx, c)
			}(i, c)
		}
		wg.Wait()
	}

	failed := 0
	for i := range cands {
		if !ok[i] {
			failed++
			if raws[i].URL == "" {
				raws[i] = collector.Absent(cands[i].URL)
			}
		}
	}
	return raws, failed
}

func (p *Pipeline) extractOne(ctx context.Context, c collector.Candidate) (collector.RawArticle, bool) {
	fctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()

	doc, err := p.fetcher.Fetch(fctx, c.URL)
	if err != nil {
		p.log.Warn("article fetch failed", logger.String("url", c.URL), logger.Error(err))
		return collector.Absent(c.URL), false
	}
	return collector.Extract(doc, p.source.Extractor(), c), true
}
