package collector

import (
	"context"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	bbcSourceID       = 2
	bbcDefaultBaseURL = "https://www.bbc.co.uk"
)

// 旧版文章路径形如 /news/uk-england-london-61093756，
// 新版形如 /news/articles/c4gzxv4eqq7o
var (
	bbcArticleSlug = regexp.MustCompile(`-\d{6,}$`)
	bbcArticleID   = regexp.MustCompile(`^[0-9a-z]{10,}$`)
)

var bbcDefaultBoilerplate = []string{
	"Follow BBC News on Facebook, X and Instagram.",
	"Follow BBC London on Facebook, X and Instagram. Send your story ideas to hello.bbclondon@bbc.co.uk",
}

// BBCSource 通过搜索结果页抓取 BBC News 文章
type BBCSource struct {
	baseURL string
	host    string
	phrases []string
}

func NewBBCSource(cfg SourceConfig) *BBCSource {
	base := strings.TrimRight(cfg.BBCBaseURL, "/")
	if base == "" {
		base = bbcDefaultBaseURL
	}
	phrases := cfg.Boilerplate
	if len(phrases) == 0 {
		phrases = bbcDefaultBoilerplate
	}
	host := ""
	if u, err := url.Parse(base); err == nil {
		host = u.Hostname()
	}
	return &BBCSource{baseURL: base, host: host, phrases: phrases}
}

func (s *BBCSource) Name() string {
	return string(KindBBC)
}

func (s *BBCSource) ID() int {
	return bbcSourceID
}

func (s *BBCSource) BaseURL() string {
	return s.baseURL
}

func (s *BBCSource) Boilerplate() []string {
	return s.phrases
}

func (s *BBCSource) PageAddress(term string, page int) (string, error) {
	if err := checkPage(page); err != nil {
		return "", err
	}
	return searchAddress(s.baseURL, "/search", url.Values{
		"q":    {strings.TrimSpace(term)},
		"page": {strconv.Itoa(page)},
	}), nil
}

func (s *BBCSource) Links(ctx context.Context, f Fetcher, address string) ([]Candidate, error) {
	doc, err := f.Fetch(ctx, address)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(address)
	if err != nil {
		return nil, err
	}

	links := extractLinks(doc, base, s.isArticle)
	out := make([]Candidate, 0, len(links))
	for _, l := range links {
		out = append(out, Candidate{URL: l, Source: s.Name()})
	}
	return out, nil
}

func (s *BBCSource) isArticle(u *url.URL) bool {
	h := u.Hostname()
	if h != s.host && !strings.HasSuffix(h, ".bbc.co.uk") && !strings.HasSuffix(h, ".bbc.com") {
		return false
	}
	if !strings.Contains(u.Path, "/news/") {
		return false
	}
	dir, slug := path.Split(strings.TrimRight(u.Path, "/"))
	if strings.HasSuffix(dir, "/news/articles/") {
		return bbcArticleID.MatchString(slug)
	}
	return bbcArticleSlug.MatchString(slug)
}

func (s *BBCSource) Extractor() ArticleExtractor {
	return bbcExtractor{}
}

// bbcExtractor 页面结构经常改版，这里按新版到旧版依次尝试
type bbcExtractor struct{}

func (bbcExtractor) Title(doc *goquery.Document) (string, bool) {
	if t, ok := firstText(doc, "h1#main-heading", `h1[class*="StyledHeading"]`, `[class*="StyledHeading"]`); ok {
		return t, true
	}
	return firstAttr(doc, "content", `meta[property="og:title"]`)
}

func (bbcExtractor) Body(doc *goquery.Document) (string, bool) {
	article := doc.Find("article")
	if article.Length() == 0 {
		return "", false
	}

	var paras []string
	article.Find("p").Each(func(_ int, p *goquery.Selection) {
		if t := strings.TrimSpace(p.Text()); t != "" {
			paras = append(paras, t)
		}
	})
	if len(paras) == 0 {
		t := strings.TrimSpace(article.Text())
		return t, t != ""
	}
	return strings.Join(paras, " "), true
}

func (bbcExtractor) PublishedAt(doc *goquery.Document) (string, bool) {
	return firstAttr(doc, "datetime", "article time[datetime]", "time[datetime]")
}
