package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var hiddenStylePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)display\s*:\s*none`),
	regexp.MustCompile(`(?i)visibility\s*:\s*hidden`),
	regexp.MustCompile(`(?i)font-size\s*:\s*0[^1-9.]`),
	regexp.MustCompile(`(?i)opacity\s*:\s*0[^.]`),
}

// htmlConverter sanitizes HTML and converts what remains to markdown.
type htmlConverter struct {
	policy *bluemonday.Policy
	md     *converter.Converter
}

func newHTMLConverter() *htmlConverter {
	return &htmlConverter{
		policy: bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

func (c *htmlConverter) extract(data []byte) (*Result, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := findTitle(doc)
	lang := findLang(doc)
	removeHidden(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}

	clean := c.policy.SanitizeBytes(buf.Bytes())
	text, err := c.md.ConvertString(string(clean))
	if err != nil {
		return nil, fmt.Errorf("convert to markdown: %w", err)
	}

	meta := map[string]any{}
	if title != "" {
		meta["title"] = title
	}
	if lang != "" {
		meta["lang"] = lang
	}
	return &Result{Text: strings.TrimSpace(text), Title: title, Metadata: meta}, nil
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		var sb strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				sb.WriteString(c.Data)
			}
		}
		return strings.Join(strings.Fields(sb.String()), " ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findLang(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Html {
		for _, a := range n.Attr {
			if a.Key == "lang" {
				return a.Val
			}
		}
		return ""
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if l := findLang(c); l != "" {
			return l
		}
	}
	return ""
}

// removeHidden detaches non-content elements and elements styled to be
// invisible. Sanitizing strips the style attribute, so their text would
// otherwise surface.
func removeHidden(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if isHidden(c) {
			n.RemoveChild(c)
		} else {
			removeHidden(c)
		}
		c = next
	}
}

func isHidden(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Head, atom.Script, atom.Style, atom.Noscript, atom.Template:
		return true
	}
	for _, a := range n.Attr {
		switch a.Key {
		case "hidden":
			return true
		case "style":
			for _, pat := range hiddenStylePatterns {
				if pat.MatchString(a.Val + ";") {
					return true
				}
			}
		}
	}
	return false
}
