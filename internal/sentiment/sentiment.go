package sentiment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/LJTian/NewsHarvest/internal/processor"
)

// Backend 可选的打分后端
type Backend string

const (
	BackendHuggingFace Backend = "huggingface"
	BackendAnthropic   Backend = "anthropic"
	BackendNone        Backend = "none"
)

var (
	ErrUnknownBackend = errors.New("unknown sentiment backend")
	ErrEmptyScore     = errors.New("scorer returned an empty score")
)

// Columns 导出/入库时追加在 processor.Columns 之后
var Columns = append(append([]string(nil), processor.Columns...), "negative", "positive")

// Sentiment 标题情感概率，Negative + Positive == 1
type Sentiment struct {
	Negative float64 `json:"negative"`
	Positive float64 `json:"positive"`
}

// Scorer 对一段文本给出情感概率
type Scorer interface {
	Score(ctx context.Context, text string) (Sentiment, error)
}

// ScoredRecord 带情感分数的记录
type ScoredRecord struct {
	processor.Record
	Sentiment
}

func (r ScoredRecord) Values() []string {
	return append(r.Record.Values(),
		strconv.FormatFloat(r.Negative, 'f', -1, 64),
		strconv.FormatFloat(r.Positive, 'f', -1, 64),
	)
}

// Unscored 不做情感分析时使用，两列均为 0
func Unscored(records []processor.Record) []ScoredRecord {
	out := make([]ScoredRecord, len(records))
	for i, r := range records {
		out[i] = ScoredRecord{Record: r}
	}
	return out
}

// ScoreRecords 按顺序为每条记录的标题打分；任意一条失败即整体返回错误
func ScoreRecords(ctx context.Context, s Scorer, records []processor.Record) ([]ScoredRecord, error) {
	out := make([]ScoredRecord, 0, len(records))
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sent, err := s.Score(ctx, r.ArticleTitle)
		if err != nil {
			return nil, fmt.Errorf("score record %d: %w", r.ID, err)
		}
		out = append(out, ScoredRecord{Record: r, Sentiment: sent})
	}
	return out, nil
}

// normalize 截到 [0,1] 后按和归一
func normalize(neg, pos float64) (Sentiment, error) {
	neg, pos = clamp(neg), clamp(pos)
	sum := neg + pos
	if sum == 0 {
		return Sentiment{}, ErrEmptyScore
	}
	return Sentiment{Negative: neg / sum, Positive: pos / sum}, nil
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

type Options struct {
	Backend         Backend
	HFEndpoint      string
	HFToken         string
	AnthropicAPIKey string
}

// New 按 Backend 构造 Scorer；BackendNone 返回 nil, nil
func New(opts Options) (Scorer, error) {
	switch opts.Backend {
	case BackendHuggingFace, "":
		return NewHuggingFaceScorer(opts.HFEndpoint, opts.HFToken, nil), nil
	case BackendAnthropic:
		if opts.AnthropicAPIKey == "" {
			return nil, errors.New("anthropic backend requires ANTHROPIC_API_KEY")
		}
		return NewAnthropicScorer(opts.AnthropicAPIKey), nil
	case BackendNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
