package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var (
	ErrUnknownSource = errors.New("unknown news source")
	ErrMissingAPIKey = errors.New("missing api key")
)

// Kind 数据源标识
type Kind string

const (
	KindBBC      Kind = "bbc"
	KindGuardian Kind = "guardian"
)

// Kinds 已实现的数据源
var Kinds = []Kind{KindBBC, KindGuardian}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
}

// Info 数据源登记信息，不依赖 API key
type Info struct {
	ID      int
	Code    string
	Name    string
	BaseURL string
}

// Describe 按配置返回所有数据源的登记信息
func Describe(cfg SourceConfig) []Info {
	bbc := NewBBCSource(cfg)
	guardianURL := strings.TrimRight(cfg.GuardianAPIURL, "/")
	if guardianURL == "" {
		guardianURL = guardianDefaultAPIURL
	}
	return []Info{
		{ID: guardianSourceID, Code: string(KindGuardian), Name: "The Guardian", BaseURL: guardianURL},
		{ID: bbc.ID(), Code: string(KindBBC), Name: "BBC News", BaseURL: bbc.BaseURL()},
	}
}

// Source 抽象一个新闻源：分页地址、结果页链接、正文抽取规则
type Source interface {
	Name() string
	// ID 写入 news_source_id 列，同一数据源恒定
	ID() int
	// BaseURL 数据源根地址，pipeline 用它做域名解析检查
	BaseURL() string
	PageAddress(term string, page int) (string, error)
	Links(ctx context.Context, f Fetcher, address string) ([]Candidate, error)
	Extractor() ArticleExtractor
	Boilerplate() []string
}

// ArticleExtractor 单个数据源的字段抽取规则。
// 找不到字段时返回 ok=false，不返回错误。
type ArticleExtractor interface {
	Title(doc *goquery.Document) (string, bool)
	Body(doc *goquery.Document) (string, bool)
	PublishedAt(doc *goquery.Document) (string, bool)
}

// SearchResultPage 一页搜索结果中的候选链接（页内去重）
type SearchResultPage struct {
	Source string
	Page   int
	Links  []string
}

// Candidate 可能是文章的链接。Title / PublishedAt 是 API 型数据源随结果给出的提示，可为空。
type Candidate struct {
	URL         string
	Source      string
	Title       string
	PublishedAt string
}

// RawArticle 抽取结果，nil 表示该字段缺失
type RawArticle struct {
	URL         string
	Title       *string
	Body        *string
	PublishedAt *string
}

// Complete 三个字段都存在
func (a RawArticle) Complete() bool {
	return a.Title != nil && a.Body != nil && a.PublishedAt != nil
}

// Absent 抓取失败时使用：所有字段缺失
func Absent(url string) RawArticle {
	return RawArticle{URL: url}
}

// Extract 按数据源规则抽取三个字段，页面上缺失时回退到候选链接的提示
func Extract(doc *goquery.Document, ex ArticleExtractor, c Candidate) RawArticle {
	if doc == nil {
		return Absent(c.URL)
	}
	title, titleOK := ex.Title(doc)
	body, bodyOK := ex.Body(doc)
	published, publishedOK := ex.PublishedAt(doc)
	return RawArticle{
		URL:         c.URL,
		Title:       present(title, titleOK, c.Title),
		Body:        present(body, bodyOK),
		PublishedAt: present(published, publishedOK, c.PublishedAt),
	}
}

func present(s string, ok bool, fallbacks ...string) *string {
	if ok && strings.TrimSpace(s) != "" {
		return &s
	}
	for _, f := range fallbacks {
		if strings.TrimSpace(f) != "" {
			v := f
			return &v
		}
	}
	return nil
}

// PageCache 缓存 API 型数据源的结果页，减少限流接口的调用次数
type PageCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration)
}

// SourceConfig 构造数据源所需的全部配置，不依赖任何全局变量
type SourceConfig struct {
	BBCBaseURL     string
	GuardianAPIURL string
	GuardianAPIKey string
	ResultsPerPage int
	// Boilerplate 为空时使用数据源自带的默认短语
	Boilerplate  []string
	HTTPClient   *http.Client
	PageCache    PageCache
	PageCacheTTL time.Duration
}

func New(kind Kind, cfg SourceConfig) (Source, error) {
	switch kind {
	case KindBBC:
		return NewBBCSource(cfg), nil
	case KindGuardian:
		return NewGuardianSource(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, string(kind))
	}
}
