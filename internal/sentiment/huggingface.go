package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultHFEndpoint = "https://api-inference.huggingface.co"
	hfModel           = "distilbert-base-uncased-finetuned-sst-2-english"
	hfTimeout         = 30 * time.Second
)

// HuggingFaceScorer 调用 Inference API 上的 sst-2 分类模型
type HuggingFaceScorer struct {
	endpoint string
	token    string
	client   *http.Client
}

func NewHuggingFaceScorer(endpoint, token string, client *http.Client) *HuggingFaceScorer {
	endpoint = strings.TrimRight(endpoint, "/")
	if endpoint == "" {
		endpoint = defaultHFEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: hfTimeout}
	}
	return &HuggingFaceScorer{endpoint: endpoint, token: token, client: client}
}

type hfLabel struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func (s *HuggingFaceScorer) Score(ctx context.Context, text string) (Sentiment, error) {
	body, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return Sentiment{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/models/"+hfModel, bytes.NewReader(body))
	if err != nil {
		return Sentiment{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Sentiment{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Sentiment{}, fmt.Errorf("huggingface status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out [][]hfLabel
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Sentiment{}, fmt.Errorf("decode huggingface response: %w", err)
	}
	if len(out) == 0 {
		return Sentiment{}, ErrEmptyScore
	}
	return fromLabels(out[0])
}

func fromLabels(labels []hfLabel) (Sentiment, error) {
	var neg, pos float64
	for _, l := range labels {
		switch strings.ToUpper(l.Label) {
		case "NEGATIVE", "LABEL_0":
			neg = l.Score
		case "POSITIVE", "LABEL_1":
			pos = l.Score
		}
	}
	return normalize(neg, pos)
}
