package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func newTestFetcher(t *testing.T) *CollyFetcher {
	t.Helper()
	f, err := NewCollyFetcher(FetcherOptions{Timeout: 2 * time.Second, PerHost: 2})
	require.NoError(t, err)
	return f
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" BBC ")
	require.NoError(t, err)
	assert.Equal(t, KindBBC, k)

	k, err = ParseKind("guardian")
	require.NoError(t, err)
	assert.Equal(t, KindGuardian, k)

	_, err = ParseKind("reuters")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestNewSource(t *testing.T) {
	s, err := New(KindBBC, SourceConfig{})
	require.NoError(t, err)
	assert.Equal(t, 2, s.ID())
	assert.Equal(t, "https://www.bbc.co.uk", s.BaseURL())
	assert.NotEmpty(t, s.Boilerplate())

	_, err = New(KindGuardian, SourceConfig{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	g, err := New(KindGuardian, SourceConfig{GuardianAPIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, 1, g.ID())
	assert.Equal(t, "https://content.guardianapis.com", g.BaseURL())

	_, err = New(Kind("cnn"), SourceConfig{})
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestPageAddressRejectsPagesBelowOne(t *testing.T) {
	bbc := NewBBCSource(SourceConfig{})
	guardian, err := NewGuardianSource(SourceConfig{GuardianAPIKey: "key"})
	require.NoError(t, err)

	for _, s := range []Source{bbc, guardian} {
		for _, page := range []int{0, -1, -100} {
			_, err := s.PageAddress("crossrail", page)
			var pageErr *InvalidPageError
			require.ErrorAs(t, err, &pageErr, "%s page %d", s.Name(), page)
			assert.Equal(t, page, pageErr.Page)
		}
	}
}

func TestPageAddressEscapesTerm(t *testing.T) {
	bbc := NewBBCSource(SourceConfig{})
	guardian, err := NewGuardianSource(SourceConfig{GuardianAPIKey: "key"})
	require.NoError(t, err)

	for _, s := range []Source{bbc, guardian} {
		for page := 1; page <= 3; page++ {
			addr, err := s.PageAddress("search with  spaces & more ", page)
			require.NoError(t, err)
			assert.NotContains(t, addr, " ")
			assert.Contains(t, addr, "q=search+with++spaces+%26+more")
			assert.Contains(t, addr, fmt.Sprintf("page=%d", page))
		}
	}

	addr, err := bbc.PageAddress("hs2", 2)
	require.NoError(t, err)
	assert.Equal(t, "https://www.bbc.co.uk/search?page=2&q=hs2", addr)

	addr, err = guardian.PageAddress("hs2", 1)
	require.NoError(t, err)
	assert.Equal(t, "https://content.guardianapis.com/search?api-key=key&page=1&q=hs2", addr)
}

const bbcSearchPage = `<html><body>
<a href="/news/uk-england-london-61093756">Crossrail opens</a>
<a href="/news/uk-england-london-61093756">Crossrail opens (image)</a>
<a href="%[1]s/news/business-60000001#comments">Costs</a>
<a href="/news/articles/c4gzxv4eqq7o">New layout</a>
<a href="/news/topics/crossrail">Topic page</a>
<a href="/sport/football-61000000">Football</a>
<a href="https://example.com/news/other-61111111">Elsewhere</a>
<a href="javascript:void(0)">js</a>
<a href="#top">top</a>
</body></html>`

func TestBBCLinksFiltersArticleLinks(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, bbcSearchPage, srv.URL)
	}))
	defer srv.Close()

	s := NewBBCSource(SourceConfig{BBCBaseURL: srv.URL})
	addr, err := s.PageAddress("crossrail", 1)
	require.NoError(t, err)

	cands, err := s.Links(context.Background(), newTestFetcher(t), addr)
	require.NoError(t, err)

	require.Len(t, cands, 3)
	assert.Equal(t, srv.URL+"/news/uk-england-london-61093756", cands[0].URL)
	assert.Equal(t, srv.URL+"/news/business-60000001", cands[1].URL)
	assert.Equal(t, srv.URL+"/news/articles/c4gzxv4eqq7o", cands[2].URL)
	for _, c := range cands {
		assert.Equal(t, "bbc", c.Source)
		assert.Empty(t, c.Title)
	}
}

func TestBBCIsArticle(t *testing.T) {
	s := NewBBCSource(SourceConfig{})
	cases := []struct {
		raw  string
		want bool
	}{
		{raw: "https://www.bbc.co.uk/news/uk-england-london-61093756", want: true},
		{raw: "https://www.bbc.com/news/business-60000001", want: true},
		{raw: "https://www.bbc.co.uk/news/articles/c4gzxv4eqq7o", want: true},
		{raw: "https://www.bbc.com/news/articles/cn4l2y9x1dpo/", want: true},
		{raw: "https://www.bbc.co.uk/news/articles/", want: false},
		{raw: "https://www.bbc.co.uk/news/articles/short", want: false},
		{raw: "https://www.bbc.co.uk/news/topics/c1vw6q14rzqt", want: false},
		{raw: "https://www.bbc.co.uk/news/uk", want: false},
		{raw: "https://www.bbc.co.uk/sport/football-61093756", want: false},
		{raw: "https://example.com/news/articles/c4gzxv4eqq7o", want: false},
	}
	for _, c := range cases {
		u, err := url.Parse(c.raw)
		require.NoError(t, err)
		assert.Equal(t, c.want, s.isArticle(u), c.raw)
	}
}

func TestBBCLinksReportsFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewBBCSource(SourceConfig{BBCBaseURL: srv.URL})
	addr, err := s.PageAddress("crossrail", 1)
	require.NoError(t, err)

	cands, err := s.Links(context.Background(), newTestFetcher(t), addr)
	assert.Empty(t, cands)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusServiceUnavailable, fe.StatusCode)
}

func TestBBCExtractor(t *testing.T) {
	doc := mustDoc(t, `<html><head><meta property="og:title" content="OG title"></head><body>
<article>
  <h1 id="main-heading">Elizabeth line to open</h1>
  <time datetime="2022-05-04T10:48:53.000Z">4 May</time>
  <p>First paragraph.</p>
  <p>  </p>
  <p>Second paragraph.</p>
</article></body></html>`)
	ex := NewBBCSource(SourceConfig{}).Extractor()

	title, ok := ex.Title(doc)
	assert.True(t, ok)
	assert.Equal(t, "Elizabeth line to open", title)

	body, ok := ex.Body(doc)
	assert.True(t, ok)
	assert.Equal(t, "First paragraph. Second paragraph.", body)

	date, ok := ex.PublishedAt(doc)
	assert.True(t, ok)
	assert.Equal(t, "2022-05-04T10:48:53.000Z", date)
}

func TestBBCExtractorLegacyAndMissing(t *testing.T) {
	ex := bbcExtractor{}

	legacy := mustDoc(t, `<html><body>
<h1 class="ssrcss-15xko80-StyledHeading e1fj1fc10">Legacy heading</h1>
<article class="ssrcss-pv1rh6-ArticleWrapper e1nh2i2l6">Plain text body</article>
</body></html>`)
	title, ok := ex.Title(legacy)
	assert.True(t, ok)
	assert.Equal(t, "Legacy heading", title)
	body, ok := ex.Body(legacy)
	assert.True(t, ok)
	assert.Equal(t, "Plain text body", body)
	_, ok = ex.PublishedAt(legacy)
	assert.False(t, ok)

	ogOnly := mustDoc(t, `<html><head><meta property="og:title" content="OG title"></head><body><div>no article</div></body></html>`)
	title, ok = ex.Title(ogOnly)
	assert.True(t, ok)
	assert.Equal(t, "OG title", title)
	_, ok = ex.Body(ogOnly)
	assert.False(t, ok)
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.data[key]
	return d, ok
}

func (c *memCache) Set(_ context.Context, key string, data []byte, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = make(map[string][]byte)
	}
	c.data[key] = data
	c.sets++
}

const guardianSearchJSON = `{"response":{"status":"ok","results":[
{"type":"liveblog","webTitle":"Live","webUrl":"https://www.theguardian.com/live/1","webPublicationDate":"2022-05-01T09:00:00Z"},
{"type":"article","webTitle":"Crossrail delayed","webUrl":"https://www.theguardian.com/uk-news/1","webPublicationDate":"2022-05-04T10:48:53Z"},
{"type":"article","webTitle":"Crossrail opens","webUrl":"https://www.theguardian.com/uk-news/2","webPublicationDate":"2022-05-24T06:00:00Z"},
{"type":"article","webTitle":"Third","webUrl":"https://www.theguardian.com/uk-news/3","webPublicationDate":"2022-05-25T06:00:00Z"}
]}}`

func TestGuardianLinks(t *testing.T) {
	var hits int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("api-key"))
		assert.Equal(t, "cross rail", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(guardianSearchJSON))
	}))
	defer srv.Close()

	cache := &memCache{}
	s, err := NewGuardianSource(SourceConfig{
		GuardianAPIURL: srv.URL,
		GuardianAPIKey: "secret",
		ResultsPerPage: 2,
		PageCache:      cache,
	})
	require.NoError(t, err)

	addr, err := s.PageAddress("cross rail", 1)
	require.NoError(t, err)

	cands, err := s.Links(context.Background(), nil, addr)
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, Candidate{
		URL:         "https://www.theguardian.com/uk-news/1",
		Source:      "guardian",
		Title:       "Crossrail delayed",
		PublishedAt: "2022-05-04T10:48:53Z",
	}, cands[0])
	assert.Equal(t, "https://www.theguardian.com/uk-news/2", cands[1].URL)

	// 第二次命中缓存，不再请求 API
	_, err = s.Links(context.Background(), nil, addr)
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, cache.sets)
	for key := range cache.data {
		assert.NotContains(t, key, "secret")
	}
}

func TestGuardianLinksStopsWhenResultsRunOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(guardianSearchJSON))
	}))
	defer srv.Close()

	s, err := NewGuardianSource(SourceConfig{GuardianAPIURL: srv.URL, GuardianAPIKey: "k"})
	require.NoError(t, err)
	addr, err := s.PageAddress("crossrail", 1)
	require.NoError(t, err)

	cands, err := s.Links(context.Background(), nil, addr)
	require.NoError(t, err)
	assert.Len(t, cands, 3)
}

func TestGuardianLinksErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "1":
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		case "2":
			_, _ = w.Write([]byte(`{"response":{"status":"error","message":"Invalid authentication credentials"}}`))
		default:
			_, _ = w.Write([]byte(`not json`))
		}
	}))
	defer srv.Close()

	s, err := NewGuardianSource(SourceConfig{GuardianAPIURL: srv.URL, GuardianAPIKey: "secret"})
	require.NoError(t, err)

	addr, _ := s.PageAddress("x", 1)
	_, err = s.Links(context.Background(), nil, addr)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusTooManyRequests, fe.StatusCode)
	assert.NotContains(t, err.Error(), "secret")

	addr, _ = s.PageAddress("x", 2)
	_, err = s.Links(context.Background(), nil, addr)
	assert.ErrorContains(t, err, "Invalid authentication credentials")

	addr, _ = s.PageAddress("x", 3)
	_, err = s.Links(context.Background(), nil, addr)
	assert.ErrorContains(t, err, "decode")
}

func TestGuardianExtractorAndHints(t *testing.T) {
	doc := mustDoc(t, `<html><head><meta property="article:published_time" content="2022-05-04T10:48:53.000Z"></head><body>
<div data-gu-name="headline"><h1>Much-delayed Elizabeth line to open</h1></div>
<div data-gu-name="body"><p>The <a href="#">Elizabeth line</a> will open.</p><script>var x = 1;</script><p>More text.</p></div>
</body></html>`)
	ex := guardianExtractor{}

	title, ok := ex.Title(doc)
	assert.True(t, ok)
	assert.Equal(t, "Much-delayed Elizabeth line to open", title)
	body, ok := ex.Body(doc)
	assert.True(t, ok)
	assert.Equal(t, "The Elizabeth line will open. More text.", body)
	date, ok := ex.PublishedAt(doc)
	assert.True(t, ok)
	assert.Equal(t, "2022-05-04T10:48:53.000Z", date)

	// 页面缺少标题与日期时回退到 API 提示
	bare := mustDoc(t, `<html><body><div data-gu-name="body">Only body</div></body></html>`)
	raw := Extract(bare, ex, Candidate{URL: "u", Title: "Hint title", PublishedAt: "2022-05-04T10:48:53Z"})
	require.True(t, raw.Complete())
	assert.Equal(t, "Hint title", *raw.Title)
	assert.Equal(t, "Only body", *raw.Body)
	assert.Equal(t, "2022-05-04T10:48:53Z", *raw.PublishedAt)

	// 没有正文容器：正文缺失，不报错
	noBody := mustDoc(t, `<html><body><h1>Title</h1></body></html>`)
	raw = Extract(noBody, ex, Candidate{URL: "u"})
	assert.False(t, raw.Complete())
	assert.Nil(t, raw.Body)
	assert.Nil(t, raw.PublishedAt)
	require.NotNil(t, raw.Title)
	assert.Equal(t, "Title", *raw.Title)
}

func TestExtractNilDocumentIsAbsent(t *testing.T) {
	raw := Extract(nil, bbcExtractor{}, Candidate{URL: "https://x/news/a-12345678", Title: "hint"})
	assert.Equal(t, Absent("https://x/news/a-12345678"), raw)
	assert.False(t, raw.Complete())
}

func TestCollyFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><body><h1>hello</h1></body></html>`))
		case "/slow":
			time.Sleep(500 * time.Millisecond)
			_, _ = w.Write([]byte(`<html></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := newTestFetcher(t)

	// 同一地址可重复抓取
	for i := 0; i < 2; i++ {
		doc, err := f.Fetch(context.Background(), srv.URL+"/ok")
		require.NoError(t, err)
		assert.Equal(t, "hello", doc.Find("h1").Text())
	}

	_, err := f.Fetch(context.Background(), srv.URL+"/missing")
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(ctx, srv.URL+"/slow")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	_, err = f.Fetch(cancelled, srv.URL+"/ok")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDescribe(t *testing.T) {
	infos := Describe(SourceConfig{BBCBaseURL: "https://bbc.test/"})
	require.Len(t, infos, 2)
	assert.Equal(t, Info{ID: 1, Code: "guardian", Name: "The Guardian", BaseURL: "https://content.guardianapis.com"}, infos[0])
	assert.Equal(t, Info{ID: 2, Code: "bbc", Name: "BBC News", BaseURL: "https://bbc.test"}, infos[1])
}
