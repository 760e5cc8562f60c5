package collector

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// InvalidPageError 页码从 1 开始，小于 1 在发起任何请求前就报错
type InvalidPageError struct {
	Page int
}

func (e *InvalidPageError) Error() string {
	return fmt.Sprintf("invalid page %d: page numbers start at 1", e.Page)
}

func checkPage(page int) error {
	if page < 1 {
		return &InvalidPageError{Page: page}
	}
	return nil
}

// searchAddress 拼接搜索地址，url.Values 负责转义（空格 -> +）
func searchAddress(base, path string, q url.Values) string {
	return strings.TrimRight(base, "/") + path + "?" + q.Encode()
}

// extractLinks 取出页面上所有链接，按 base 解析成绝对地址，保留 keep 返回 true 的；页内去重，保持出现顺序
func extractLinks(doc *goquery.Document, base *url.URL, keep func(*url.URL) bool) []string {
	seen := make(map[string]struct{})
	var out []string

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		u, err := base.Parse(href)
		if err != nil {
			return
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return
		}
		u.Fragment = ""
		if !keep(u) {
			return
		}
		link := u.String()
		if _, ok := seen[link]; ok {
			return
		}
		seen[link] = struct{}{}
		out = append(out, link)
	})

	return out
}

// textNodes 按文档顺序收集 sel 下所有非空文本节点（跳过 script/style），以空格连接
func textNodes(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}

func firstText(doc *goquery.Document, selectors ...string) (string, bool) {
	for _, sel := range selectors {
		if t := strings.TrimSpace(doc.Find(sel).First().Text()); t != "" {
			return t, true
		}
	}
	return "", false
}

func firstAttr(doc *goquery.Document, attr string, selectors ...string) (string, bool) {
	for _, sel := range selectors {
		if v, ok := doc.Find(sel).First().Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}
