package processor

import (
	"fmt"
	"strings"
	"time"
)

// DateFormatError 日期部分不是合法的 YYYY-MM-DD
type DateFormatError struct {
	Raw string
	Err error
}

func (e *DateFormatError) Error() string {
	return fmt.Sprintf("invalid article date %q: %v", e.Raw, e.Err)
}

func (e *DateFormatError) Unwrap() error {
	return e.Err
}

// ToCalendarDate 取 "T" 之前的日期部分，丢弃时间
func ToCalendarDate(raw string) (time.Time, error) {
	datePart, _, _ := strings.Cut(strings.TrimSpace(raw), "T")
	d, err := time.Parse(time.DateOnly, datePart)
	if err != nil {
		return time.Time{}, &DateFormatError{Raw: raw, Err: err}
	}
	return d, nil
}

// StripMode 决定多个样板短语时的处理方式
type StripMode int

const (
	// StripFirstPhrase 只检查列表中的第一个短语（沿用旧版采集脚本的行为）
	StripFirstPhrase StripMode = iota
	// StripAllPhrases 依次去掉所有出现的短语
	StripAllPhrases
)

func ParseStripMode(s string) (StripMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return StripFirstPhrase, nil
	case "all":
		return StripAllPhrases, nil
	default:
		return StripFirstPhrase, fmt.Errorf("unknown strip mode %q", s)
	}
}

func (m StripMode) String() string {
	if m == StripAllPhrases {
		return "all"
	}
	return "first"
}

// StripBoilerplate 把短语替换为单个空格（吞掉两侧空白），最后去掉首尾空白
func StripBoilerplate(body string, phrases []string, mode StripMode) string {
	if len(phrases) == 0 {
		return strings.TrimSpace(body)
	}
	if mode == StripFirstPhrase {
		phrases = phrases[:1]
	}
	for _, p := range phrases {
		if p == "" || !strings.Contains(body, p) {
			continue
		}
		body = replaceWithSpace(body, p)
	}
	return strings.TrimSpace(body)
}

func replaceWithSpace(body, phrase string) string {
	parts := strings.Split(body, phrase)
	for i := range parts {
		if i > 0 {
			parts[i] = strings.TrimLeft(parts[i], " \t\r\n")
		}
		if i < len(parts)-1 {
			parts[i] = strings.TrimRight(parts[i], " \t\r\n")
		}
	}
	return strings.Join(parts, " ")
}
