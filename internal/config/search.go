package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/LJTian/NewsHarvest/internal/collector"
	"github.com/LJTian/NewsHarvest/internal/pipeline"
	"gopkg.in/yaml.v3"
)

// Search 单次采集的输入：搜索词、数据源与页码范围
type Search struct {
	SearchTerm  string   `yaml:"search_term"`
	NewsSource  string   `yaml:"news_source"`
	Pages       Pages    `yaml:"pages"`
	Save        bool     `yaml:"save"`
	Boilerplate []string `yaml:"boilerplate"`
}

// Request 转换为采集请求；数据源名称大小写不敏感
func (s *Search) Request() pipeline.Request {
	kind := collector.Kind(strings.TrimSpace(s.NewsSource))
	if k, err := collector.ParseKind(string(kind)); err == nil {
		kind = k
	}
	return pipeline.Request{Term: strings.TrimSpace(s.SearchTerm), Kind: kind, Pages: s.Pages}
}

// Pages 支持 YAML 列表 [1, 2, 3] 或区间字符串 "1-9"
type Pages []int

func (p *Pages) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		pages, err := ParsePages(value.Value)
		if err != nil {
			return err
		}
		*p = pages
		return nil
	case yaml.SequenceNode:
		var pages []int
		if err := value.Decode(&pages); err != nil {
			return fmt.Errorf("pages: %w", err)
		}
		*p = pages
		return nil
	default:
		return fmt.Errorf("pages: unsupported yaml node at line %d", value.Line)
	}
}

// LoadSearch 读取 search.yml
func LoadSearch(path string) (*Search, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read search config: %w", err)
	}
	var s Search
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse search config %s: %w", path, err)
	}
	if len(s.Pages) == 0 {
		s.Pages = Pages{1}
	}
	return &s, nil
}

// MaxPages 一次采集最多的页数
const MaxPages = 1000

// ParsePages 解析 "1-3"、"1,2,5" 或二者混合 "1-3,7"。
// 这里只做语法解析，页码是否 >= 1 由 pipeline 校验。
func ParsePages(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("pages: empty")
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		if !isRange || lo == "" {
			n, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("pages: invalid page %q", part)
			}
			if len(out) >= MaxPages {
				return nil, fmt.Errorf("pages: more than %d pages", MaxPages)
			}
			out = append(out, n)
			continue
		}
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("pages: invalid range %q", part)
		}
		end, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("pages: invalid range %q", part)
		}
		if end < start {
			return nil, fmt.Errorf("pages: range %q is reversed", part)
		}
		if end-start >= MaxPages-len(out) {
			return nil, fmt.Errorf("pages: more than %d pages", MaxPages)
		}
		for n := start; n <= end; n++ {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("pages: empty")
	}
	return out, nil
}

// Job 定时采集任务
type Job struct {
	Source string
	Term   string
	Pages  []int
}

func (j Job) Request() pipeline.Request {
	return (&Search{SearchTerm: j.Term, NewsSource: j.Source, Pages: j.Pages}).Request()
}

// ParseJobs 解析 CRON_JOBS：以 ; 分隔，每项为 source:term:pages
func ParseJobs(spec string) ([]Job, error) {
	var jobs []Job
	for _, item := range strings.Split(spec, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		fields := strings.SplitN(item, ":", 3)
		if len(fields) != 3 {
			return nil, fmt.Errorf("cron job %q: want source:term:pages", item)
		}
		pages, err := ParsePages(fields[2])
		if err != nil {
			return nil, fmt.Errorf("cron job %q: %w", item, err)
		}
		jobs = append(jobs, Job{
			Source: strings.TrimSpace(fields[0]),
			Term:   strings.TrimSpace(fields[1]),
			Pages:  pages,
		})
	}
	return jobs, nil
}
