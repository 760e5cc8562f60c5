package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	guardianSourceID         = 1
	guardianDefaultAPIURL    = "https://content.guardianapis.com"
	guardianDefaultPerPage   = 9
	guardianMaxResponseBytes = 4 << 20 // 4MB
	guardianClientTimeout    = 15 * time.Second
	guardianDefaultCacheTTL  = time.Hour
	guardianCacheKeyPrefix   = "guardian:page:"
)

// GuardianSource 通过 Guardian Content API 搜索，再抓取文章页取正文
type GuardianSource struct {
	apiURL   string
	apiKey   string
	perPage  int
	client   *http.Client
	cache    PageCache
	cacheTTL time.Duration
	phrases  []string
}

type guardianResponse struct {
	Response struct {
		Status  string           `json:"status"`
		Message string           `json:"message"`
		Results []guardianResult `json:"results"`
	} `json:"response"`
}

type guardianResult struct {
	Type               string `json:"type"`
	WebTitle           string `json:"webTitle"`
	WebURL             string `json:"webUrl"`
	WebPublicationDate string `json:"webPublicationDate"`
}

func NewGuardianSource(cfg SourceConfig) (*GuardianSource, error) {
	if strings.TrimSpace(cfg.GuardianAPIKey) == "" {
		return nil, fmt.Errorf("guardian: %w", ErrMissingAPIKey)
	}
	apiURL := strings.TrimRight(cfg.GuardianAPIURL, "/")
	if apiURL == "" {
		apiURL = guardianDefaultAPIURL
	}
	perPage := cfg.ResultsPerPage
	if perPage <= 0 {
		perPage = guardianDefaultPerPage
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: guardianClientTimeout}
	}
	ttl := cfg.PageCacheTTL
	if ttl <= 0 {
		ttl = guardianDefaultCacheTTL
	}
	return &GuardianSource{
		apiURL:   apiURL,
		apiKey:   cfg.GuardianAPIKey,
		perPage:  perPage,
		client:   client,
		cache:    cfg.PageCache,
		cacheTTL: ttl,
		phrases:  cfg.Boilerplate,
	}, nil
}

func (s *GuardianSource) Name() string {
	return string(KindGuardian)
}

func (s *GuardianSource) ID() int {
	return guardianSourceID
}

func (s *GuardianSource) BaseURL() string {
	return s.apiURL
}

func (s *GuardianSource) Boilerplate() []string {
	return s.phrases
}

func (s *GuardianSource) PageAddress(term string, page int) (string, error) {
	if err := checkPage(page); err != nil {
		return "", err
	}
	return searchAddress(s.apiURL, "/search", url.Values{
		"api-key": {s.apiKey},
		"page":    {strconv.Itoa(page)},
		"q":       {strings.TrimSpace(term)},
	}), nil
}

// Links 查询 API 一页结果，只保留 type=article，每页最多取 perPage 条；
// 结果不足 perPage 时提前结束该页
func (s *GuardianSource) Links(ctx context.Context, _ Fetcher, address string) ([]Candidate, error) {
	body, err := s.page(ctx, address)
	if err != nil {
		return nil, err
	}

	var resp guardianResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("guardian: decode search page: %w", err)
	}
	if resp.Response.Status != "" && resp.Response.Status != "ok" {
		return nil, fmt.Errorf("guardian: api status %q: %s", resp.Response.Status, resp.Response.Message)
	}

	articles := make([]guardianResult, 0, len(resp.Response.Results))
	for _, r := range resp.Response.Results {
		if r.Type == "article" {
			articles = append(articles, r)
		}
	}

	out := make([]Candidate, 0, s.perPage)
	for i := 0; i < s.perPage; i++ {
		if i >= len(articles) {
			break
		}
		r := articles[i]
		if r.WebURL == "" {
			continue
		}
		out = append(out, Candidate{
			URL:         r.WebURL,
			Source:      s.Name(),
			Title:       r.WebTitle,
			PublishedAt: r.WebPublicationDate,
		})
	}
	return out, nil
}

func (s *GuardianSource) page(ctx context.Context, address string) ([]byte, error) {
	key := guardianCacheKeyPrefix + redactAPIKey(address)
	if s.cache != nil {
		if data, ok := s.cache.Get(ctx, key); ok {
			return data, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return nil, &FetchError{URL: redactAPIKey(address), Err: err}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: redactAPIKey(address), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{
			URL:        redactAPIKey(address),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status"),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, guardianMaxResponseBytes))
	if err != nil {
		return nil, &FetchError{URL: redactAPIKey(address), StatusCode: resp.StatusCode, Err: err}
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, data, s.cacheTTL)
	}
	return data, nil
}

// redactAPIKey 去掉查询串中的 api-key，用于日志和缓存 key
func redactAPIKey(address string) string {
	u, err := url.Parse(address)
	if err != nil {
		return address
	}
	q := u.Query()
	q.Del("api-key")
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *GuardianSource) Extractor() ArticleExtractor {
	return guardianExtractor{}
}

type guardianExtractor struct{}

func (guardianExtractor) Title(doc *goquery.Document) (string, bool) {
	return firstText(doc, `[data-gu-name="headline"] h1`, "h1")
}

func (guardianExtractor) Body(doc *goquery.Document) (string, bool) {
	block := doc.Find(`div[data-gu-name="body"]`).First()
	if block.Length() == 0 {
		return "", false
	}
	t := textNodes(block)
	return t, t != ""
}

func (guardianExtractor) PublishedAt(doc *goquery.Document) (string, bool) {
	return firstAttr(doc, "content", `meta[property="article:published_time"]`)
}
