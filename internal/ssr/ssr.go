// Package ssr post-processes server rendered HTML fragments before they are embedded in pages.
package ssr

import (
	"bytes"
	"fmt"
	"github.com/PuerkitoBio/goquery"
	"github.com/myrjola/vera/internal/errors"
	"golang.org/x/net/html"
	"html/template"
	"strings"
	"unicode"
)

// Heading is an anchor target of a decorated report.
type Heading struct {
	ID    string
	Title string
}

// DecorateReport gives the section headings of a rendered report stable ids and opens external links in a new
// tab without leaking the referrer. It returns the fragment and its h2 headings in document order.
func DecorateReport(fragment template.HTML) (template.HTML, []Heading, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(fragment)))
	if err != nil {
		return "", nil, errors.Wrap(err, "parse fragment")
	}

	var headings []Heading
	seen := map[string]int{}
	doc.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		id := slug(s.Text())
		if n := seen[id]; n > 0 {
			seen[id] = n + 1
			id = fmt.Sprintf("%s-%d", id, n)
		} else {
			seen[id] = 1
		}
		s.SetAttr("id", id)
		if goquery.NodeName(s) == "h2" {
			headings = append(headings, Heading{ID: id, Title: strings.TrimSpace(s.Text())})
		}
	})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
			s.SetAttr("target", "_blank")
			s.SetAttr("rel", "noopener noreferrer nofollow")
		}
	})

	var buf bytes.Buffer
	body := doc.Find("body")
	if len(body.Nodes) > 0 {
		for c := body.Nodes[0].FirstChild; c != nil; c = c.NextSibling {
			if err = html.Render(&buf, c); err != nil {
				return "", nil, errors.Wrap(err, "render html")
			}
		}
	}
	return template.HTML(buf.String()), headings, nil //nolint:gosec // re-rendered from a sanitised fragment
}

// slug lowercases letters and digits and joins the words with dashes. Non-ASCII letters are kept so that
// Polish headings stay readable.
func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	if b.Len() == 0 {
		return "section"
	}
	return b.String()
}
