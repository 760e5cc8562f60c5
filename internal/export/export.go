package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/LJTian/NewsHarvest/internal/processor"
	"github.com/LJTian/NewsHarvest/internal/sentiment"
)

// DefaultDelimiter 与 COPY ... DELIMITER '|' 保持一致
const DefaultDelimiter = '|'

var ErrHeaderMismatch = errors.New("unexpected header")

// Writer 带表头的分隔符文本，字段包含分隔符或换行时按 CSV 规则加引号
type Writer struct {
	w *csv.Writer
}

func NewWriter(w io.Writer, delim rune) *Writer {
	if delim == 0 {
		delim = DefaultDelimiter
	}
	cw := csv.NewWriter(w)
	cw.Comma = delim
	return &Writer{w: cw}
}

// WriteTable 写表头和所有行后 Flush
func (w *Writer) WriteTable(header []string, rows [][]string) error {
	if err := w.w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if len(row) != len(header) {
			return fmt.Errorf("row has %d fields, header has %d", len(row), len(header))
		}
		if err := w.w.Write(row); err != nil {
			return err
		}
	}
	w.w.Flush()
	return w.w.Error()
}

func (w *Writer) WriteRecords(records []processor.Record) error {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = r.Values()
	}
	return w.WriteTable(processor.Columns, rows)
}

func (w *Writer) WriteScored(records []sentiment.ScoredRecord) error {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = r.Values()
	}
	return w.WriteTable(sentiment.Columns, rows)
}

// ReadScored 读取 WriteScored 写出的文件
func ReadScored(r io.Reader, delim rune) ([]sentiment.ScoredRecord, error) {
	if delim == 0 {
		delim = DefaultDelimiter
	}
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = len(sentiment.Columns)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if strings.Join(header, ",") != strings.Join(sentiment.Columns, ",") {
		return nil, fmt.Errorf("%w: %v", ErrHeaderMismatch, header)
	}

	var out []sentiment.ScoredRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		rec, err := parseScored(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
}

func parseScored(row []string) (sentiment.ScoredRecord, error) {
	var (
		rec sentiment.ScoredRecord
		err error
	)
	if rec.ID, err = strconv.Atoi(row[0]); err != nil {
		return rec, fmt.Errorf("id: %w", err)
	}
	rec.ArticleTitle = row[1]
	if rec.ArticleDate, err = time.Parse(time.DateOnly, row[2]); err != nil {
		return rec, fmt.Errorf("article_date: %w", err)
	}
	rec.SourceURL = row[3]
	rec.ArticleText = row[4]
	if rec.NewsSourceID, err = strconv.Atoi(row[5]); err != nil {
		return rec, fmt.Errorf("news_source_id: %w", err)
	}
	if rec.Negative, err = strconv.ParseFloat(row[6], 64); err != nil {
		return rec, fmt.Errorf("negative: %w", err)
	}
	if rec.Positive, err = strconv.ParseFloat(row[7], 64); err != nil {
		return rec, fmt.Errorf("positive: %w", err)
	}
	return rec, nil
}

var unsafeName = regexp.MustCompile(`[^a-z0-9]+`)

// FileName 例如 hs2_bbc.csv
func FileName(term, source string) string {
	t := strings.Trim(unsafeName.ReplaceAllString(strings.ToLower(term), "_"), "_")
	if t == "" {
		t = "search"
	}
	return t + "_" + source + ".csv"
}

// SaveScored 写入 dir/FileName(term, source)，返回文件路径
func SaveScored(dir, term, source string, delim rune, records []sentiment.ScoredRecord) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName(term, source))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := NewWriter(f, delim).WriteScored(records); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}

// LoadScored 读取 SaveScored 写出的文件
func LoadScored(path string, delim rune) ([]sentiment.ScoredRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadScored(f, delim)
}
