package harvest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/LJTian/NewsHarvest/internal/collector"
	"github.com/LJTian/NewsHarvest/internal/config"
	"github.com/LJTian/NewsHarvest/internal/export"
	"github.com/LJTian/NewsHarvest/internal/pipeline"
	"github.com/LJTian/NewsHarvest/internal/processor"
	"github.com/LJTian/NewsHarvest/internal/sentiment"
	"github.com/LJTian/NewsHarvest/internal/storage"
	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bbcBase = "https://www.bbc.co.uk"

type mapFetcher map[string]string

func (m mapFetcher) Fetch(_ context.Context, url string) (*goquery.Document, error) {
	html, ok := m[url]
	if !ok {
		return nil, &collector.FetchError{URL: url, StatusCode: 404, Err: errors.New("Not Found")}
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

type okResolver struct{}

func (okResolver) LookupHost(context.Context, string) ([]string, error) {
	return []string{"192.0.2.1"}, nil
}

type fixedScorer struct{ err error }

func (s fixedScorer) Score(context.Context, string) (sentiment.Sentiment, error) {
	return sentiment.Sentiment{Negative: 0.3, Positive: 0.7}, s.err
}

type memLoader struct {
	term    string
	records []sentiment.ScoredRecord
	err     error
}

func (l *memLoader) BulkLoad(_ context.Context, term string, records []sentiment.ScoredRecord) (int64, error) {
	if l.err != nil {
		return 0, l.err
	}
	l.term = term
	l.records = records
	return int64(len(records)), nil
}

func fixture() mapFetcher {
	article := func(title string) string {
		return fmt.Sprintf(`<html><body><article><h1 id="main-heading">%s</h1>
<time datetime="2022-04-01T08:00:00Z"></time><p>%s text.</p></article></body></html>`, title, title)
	}
	return mapFetcher{
		bbcBase + "/search?page=1&q=hs2": `<html><body>
<a href="/news/uk-12345678">a</a><a href="/news/uk-23456789">b</a></body></html>`,
		bbcBase + "/news/uk-12345678": article("Alpha"),
		bbcBase + "/news/uk-23456789": article("Beta"),
	}
}

func newService(scorer sentiment.Scorer, loader Loader, dir string) *Service {
	return NewService(fixture(), scorer, loader, Options{
		Sources:    collector.SourceConfig{BBCBaseURL: bbcBase},
		ResultsDir: dir,
		Resolver:   okResolver{},
	})
}

func bbcTask() Task {
	return Task{Request: pipeline.Request{Term: "hs2", Kind: collector.KindBBC, Pages: []int{1}}}
}

func TestHarvestScoresExportsAndLoads(t *testing.T) {
	dir := t.TempDir()
	loader := &memLoader{}
	task := bbcTask()
	task.Save = true

	res, err := newService(fixedScorer{}, loader, dir).Harvest(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, "bbc", res.Source)
	assert.True(t, res.Scored)
	assert.Equal(t, int64(2), res.Inserted)
	assert.Equal(t, 2, res.Stats.Records)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "Alpha", res.Records[0].ArticleTitle)
	assert.Equal(t, 0.7, res.Records[1].Positive)

	assert.Equal(t, "hs2", loader.term)
	assert.Equal(t, res.Records, loader.records)

	saved, err := export.LoadScored(res.File, 0)
	require.NoError(t, err)
	assert.Equal(t, res.Records, saved)
}

func TestHarvestWithoutScorerOrLoader(t *testing.T) {
	res, err := newService(nil, nil, t.TempDir()).Harvest(context.Background(), bbcTask())
	require.NoError(t, err)
	assert.False(t, res.Scored)
	assert.Empty(t, res.File)
	assert.Zero(t, res.Inserted)
	require.Len(t, res.Records, 2)
	assert.Equal(t, sentiment.Sentiment{}, res.Records[0].Sentiment)
}

func TestHarvestErrors(t *testing.T) {
	svc := newService(nil, nil, t.TempDir())

	_, err := svc.Harvest(context.Background(), Task{Request: pipeline.Request{Term: "", Kind: collector.KindBBC, Pages: []int{1}}})
	assert.ErrorIs(t, err, pipeline.ErrEmptyTerm)

	_, err = svc.Harvest(context.Background(), Task{Request: pipeline.Request{Term: "hs2", Kind: collector.KindGuardian, Pages: []int{1}}})
	assert.ErrorIs(t, err, collector.ErrMissingAPIKey)

	_, err = newService(fixedScorer{err: errors.New("quota")}, nil, t.TempDir()).Harvest(context.Background(), bbcTask())
	assert.ErrorContains(t, err, "sentiment")

	_, err = newService(nil, &memLoader{err: errors.New("db down")}, t.TempDir()).Harvest(context.Background(), bbcTask())
	assert.ErrorContains(t, err, "bulk load")
}

func TestHarvestBoilerplateOverride(t *testing.T) {
	task := bbcTask()
	task.Boilerplate = []string{"text."}
	res, err := newService(nil, nil, t.TempDir()).Harvest(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, "Alpha", res.Records[0].ArticleText)
}

type memRegistry struct {
	codes []string
	ids   []int
}

func (r *memRegistry) EnsureSource(id int, code, name, baseURL string) (*storage.NewsSource, error) {
	r.codes = append(r.codes, code)
	r.ids = append(r.ids, id)
	return &storage.NewsSource{ID: uint(id), Code: code, Name: name, BaseURL: baseURL}, nil
}

func TestRegisterSources(t *testing.T) {
	reg := &memRegistry{}
	require.NoError(t, RegisterSources(reg, collector.SourceConfig{}))
	assert.Equal(t, []string{"guardian", "bbc"}, reg.codes)
	assert.Equal(t, []int{1, 2}, reg.ids)
}

func TestFromConfig(t *testing.T) {
	cfg := &config.Config{
		SentimentBackend: "none",
		StripMode:        "all",
		FetchWorkers:     3,
		FetchPerHost:     2,
		ResultsDir:       "out",
		BulkDelimiter:    ';',
	}
	svc, err := FromConfig(cfg, Deps{})
	require.NoError(t, err)
	assert.Nil(t, svc.scorer)
	assert.Equal(t, processor.StripAllPhrases, svc.opts.StripMode)
	assert.Equal(t, 3, svc.opts.Workers)
	assert.Equal(t, ';', svc.opts.Delimiter)

	cfg.SentimentBackend = "huggingface"
	svc, err = FromConfig(cfg, Deps{NoSentiment: true})
	require.NoError(t, err)
	assert.Nil(t, svc.scorer)

	svc, err = FromConfig(cfg, Deps{})
	require.NoError(t, err)
	assert.NotNil(t, svc.scorer)

	cfg.StripMode = "some"
	_, err = FromConfig(cfg, Deps{})
	assert.Error(t, err)
}
