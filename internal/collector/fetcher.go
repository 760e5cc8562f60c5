package collector

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// Fetcher 抓取一个地址并返回解析好的文档。
// 传输错误与非 2xx 状态统一返回 *FetchError，调用方按单条失败处理。
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*goquery.Document, error)
}

// FetchError 单个地址抓取失败
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type FetcherOptions struct {
	UserAgent string
	Timeout   time.Duration
	// PerHost 同一域名的并发上限
	PerHost int
	Delay   time.Duration
}

const (
	defaultUserAgent    = "NewsHarvestBot/1.0"
	defaultFetchTimeout = 20 * time.Second
)

// CollyFetcher 基于 colly 的 Fetcher。每次 Fetch 都 Clone 基础 collector，
// clone 共享同一个 http backend，因此 LimitRule 的域名并发上限对所有并发抓取生效。
type CollyFetcher struct {
	base *colly.Collector
}

func NewCollyFetcher(opts FetcherOptions) (*CollyFetcher, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultFetchTimeout
	}
	if opts.PerHost <= 0 {
		opts.PerHost = 1
	}

	c := colly.NewCollector(
		colly.UserAgent(opts.UserAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(opts.Timeout)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: opts.PerHost,
		RandomDelay: opts.Delay,
	}); err != nil {
		return nil, fmt.Errorf("colly limit rule: %w", err)
	}

	return &CollyFetcher{base: c}, nil
}

func (f *CollyFetcher) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	c := f.base.Clone()

	var (
		doc      *goquery.Document
		parseErr error
		status   int
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		doc, parseErr = goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	})
	c.OnError(func(r *colly.Response, _ error) {
		status = r.StatusCode
	})

	done := make(chan error, 1)
	go func() {
		done <- c.Visit(url)
	}()

	select {
	case <-ctx.Done():
		// 放弃仍在进行的请求，colly 自身的 RequestTimeout 保证 goroutine 最终退出
		return nil, &FetchError{URL: url, Err: ctx.Err()}
	case err := <-done:
		if err != nil {
			return nil, &FetchError{URL: url, StatusCode: status, Err: err}
		}
	}

	if parseErr != nil {
		return nil, &FetchError{URL: url, StatusCode: status, Err: fmt.Errorf("parse html: %w", parseErr)}
	}
	if doc == nil {
		return nil, &FetchError{URL: url, StatusCode: status, Err: fmt.Errorf("empty response")}
	}
	return doc, nil
}
