// Package scrape — общие помощники для HTML-стратегий: обход дерева
// x/net/html с простыми CSS-подобными селекторами и выковыривание JSON,
// встроенного в <script>.
//
// Селекторы сознательно минимальные (tag, .class, #id, потомки через
// пробел): этого хватает для трекинг-страниц, а полный CSS тянуть незачем.
package scrape

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html"
)

func Parse(body string) (*html.Node, error) {
	n, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "parse html")
	}
	return n, nil
}

type step struct {
	tag   string
	id    string
	class string
}

func parseStep(s string) step {
	var st step
	rest := s
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		st.tag = rest[:i]
		st.id = rest[i+1:]
		return st
	}
	if i := strings.IndexByte(rest, '.'); i >= 0 {
		st.tag = rest[:i]
		st.class = rest[i+1:]
		return st
	}
	st.tag = rest
	return st
}

func matches(n *html.Node, st step) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if st.tag != "" && n.Data != st.tag {
		return false
	}
	if st.id != "" && attr(n, "id") != st.id {
		return false
	}
	if st.class != "" {
		found := false
		for _, c := range strings.Fields(attr(n, "class")) {
			if c == st.class {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// FindAll возвращает все узлы по селектору вида "table.tracking tr".
func FindAll(root *html.Node, selector string) []*html.Node {
	steps := strings.Fields(selector)
	if len(steps) == 0 || root == nil {
		return nil
	}
	current := []*html.Node{root}
	for _, raw := range steps {
		st := parseStep(raw)
		var next []*html.Node
		for _, n := range current {
			collect(n, st, &next)
		}
		current = next
	}
	return current
}

// First — первый узел по селектору, либо nil.
func First(root *html.Node, selector string) *html.Node {
	nodes := FindAll(root, selector)
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

func collect(n *html.Node, st step, out *[]*html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if matches(c, st) {
			*out = append(*out, c)
		}
		collect(c, st, out)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// Attr — значение атрибута узла ("" если нет).
func Attr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	return attr(n, key)
}

// Text — текстовое содержимое узла со схлопнутыми пробелами.
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// ScriptJSON ищет <script>, содержащий marker, и вырезает первый
// сбалансированный JSON-объект после него. Типичный случай —
// `window.__INITIAL_STATE__ = {...};` на JS-страницах трекинга.
func ScriptJSON(root *html.Node, marker string) (string, bool) {
	for _, sc := range FindAll(root, "script") {
		var raw strings.Builder
		for c := sc.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				raw.WriteString(c.Data)
			}
		}
		body := raw.String()
		i := strings.Index(body, marker)
		if i < 0 {
			continue
		}
		if obj, ok := balancedObject(body[i+len(marker):]); ok {
			return obj, true
		}
	}
	return "", false
}

func balancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inStr := false
	esc := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case ch == '\\':
				esc = true
			case ch == '"':
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// Snippet обрезает сырой ответ до вменяемого диагностического куска.
func Snippet(body string, max int) string {
	body = strings.TrimSpace(body)
	if max > 0 && len(body) > max {
		return body[:max]
	}
	return body
}
