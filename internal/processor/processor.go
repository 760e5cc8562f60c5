package processor

import (
	"strconv"
	"strings"
	"time"

	"github.com/LJTian/NewsHarvest/internal/collector"
)

// Columns 下游情感分析与批量入库依赖的列名和顺序，不能改动
var Columns = []string{
	"id",
	"article_title",
	"article_date",
	"source_url",
	"article_text",
	"news_source_id",
}

// Record 入库前的统一结构，所有字段都必须存在
type Record struct {
	ID           int
	ArticleTitle string
	ArticleDate  time.Time
	SourceURL    string
	ArticleText  string
	NewsSourceID int
}

// Values 按 Columns 顺序输出字段
func (r Record) Values() []string {
	return []string{
		strconv.Itoa(r.ID),
		r.ArticleTitle,
		r.ArticleDate.Format(time.DateOnly),
		r.SourceURL,
		r.ArticleText,
		strconv.Itoa(r.NewsSourceID),
	}
}

// Article 清洗后的单篇文章，nil 表示字段缺失
type Article struct {
	URL   string
	Title *string
	Text  *string
	Date  *time.Time
}

// Normalize 清洗正文样板、把日期转成自然日。
// 日期无法解析时 Date 为 nil 并返回 *DateFormatError，由调用方记录，记录会在聚合时被丢弃。
func Normalize(raw collector.RawArticle, phrases []string, mode StripMode) (Article, error) {
	out := Article{URL: raw.URL}
	if raw.Title != nil {
		t := strings.TrimSpace(*raw.Title)
		out.Title = &t
	}
	if raw.Body != nil {
		b := StripBoilerplate(*raw.Body, phrases, mode)
		out.Text = &b
	}
	if raw.PublishedAt == nil {
		return out, nil
	}
	d, err := ToCalendarDate(*raw.PublishedAt)
	if err != nil {
		return out, err
	}
	out.Date = &d
	return out, nil
}

// Processor 丢弃缺字段的文章、按 URL 去重、重新编号
type Processor struct {
	newsSourceID int
}

func NewProcessor(newsSourceID int) *Processor {
	return &Processor{newsSourceID: newsSourceID}
}

// Process 先过滤缺失字段，再按 URL 去重保留首次出现，最后从 0 开始连续编号
func (p *Processor) Process(items []Article) []Record {
	out := make([]Record, 0, len(items))
	seen := make(map[string]struct{})

	for _, it := range items {
		if it.Title == nil || it.Text == nil || it.Date == nil {
			continue
		}
		if _, ok := seen[it.URL]; ok {
			continue
		}
		seen[it.URL] = struct{}{}

		out = append(out, Record{
			ID:           len(out),
			ArticleTitle: *it.Title,
			ArticleDate:  *it.Date,
			SourceURL:    it.URL,
			ArticleText:  *it.Text,
			NewsSourceID: p.newsSourceID,
		})
	}

	return out
}
