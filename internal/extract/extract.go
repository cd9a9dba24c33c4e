// Package extract turns a URL submitted for investigation into plain text.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/myrjola/vera/internal/errors"
	"golang.org/x/net/html"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"rsc.io/pdf"
	"strings"
	"time"
	"unicode/utf8"
)

var ErrExtraction = errors.NewSentinel("extraction failed")

const (
	DefaultTimeout          = 10 * time.Second
	DefaultMaxChars         = 10_000
	DefaultMinReadableChars = 200
	DefaultUserAgent        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	truncatedSuffix   = "\n\n[Content truncated due to length...]"
	maxBodyBytes      = 20 << 20
	minParagraphChars = 50
)

var urlRe = regexp.MustCompile(`(?i)^https?://` +
	`(?:(?:[A-Z0-9](?:[A-Z0-9-]{0,61}[A-Z0-9])?\.)+[A-Z]{2,6}\.?|localhost|\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})` +
	`(?::\d+)?(?:/?|[/?]\S+)$`)

// IsURL reports whether text, ignoring surrounding whitespace, is a single http or https URL.
func IsURL(text string) bool {
	return urlRe.MatchString(strings.TrimSpace(text))
}

// Error is an extraction failure. Message is meant for the user as is.
type Error struct {
	URL     string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() []error {
	return []error{ErrExtraction, e.Err}
}

type Options struct {
	Timeout time.Duration
	// MaxChars limits the extracted text. Longer text is cut and marked as truncated.
	MaxChars int
	// MinReadableChars is the shortest readability result accepted before falling back to selectors.
	MinReadableChars int
	UserAgent        string
	// HTTPClient overrides the client. Its timeout is replaced with Timeout.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Extractor fetches web pages and PDF documents and returns their readable text.
type Extractor struct {
	client           *http.Client
	timeout          time.Duration
	maxChars         int
	minReadableChars int
	userAgent        string
	logger           *slog.Logger
}

func New(opts Options) *Extractor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	if opts.MinReadableChars <= 0 {
		opts.MinReadableChars = DefaultMinReadableChars
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	client := &http.Client{} //nolint:exhaustruct // defaults are fine
	if opts.HTTPClient != nil {
		c := *opts.HTTPClient
		client = &c
	}
	client.Timeout = opts.Timeout
	return &Extractor{
		client:           client,
		timeout:          opts.Timeout,
		maxChars:         opts.MaxChars,
		minReadableChars: opts.MinReadableChars,
		userAgent:        opts.UserAgent,
		logger:           opts.Logger,
	}
}

// Result is the text extracted from a URL.
type Result struct {
	URL   string
	Title string
	Text  string
	// Truncated is set when Text was cut to the character limit.
	Truncated bool
	// OriginalChars is the length of the text before truncation.
	OriginalChars int
}

// Extract downloads rawURL and extracts its text. All failures are returned as *Error.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (Result, error) {
	rawURL = strings.TrimSpace(rawURL)
	e.logger.LogAttrs(ctx, slog.LevelInfo, "extracting content", slog.String("url", rawURL))

	result, err := e.extract(ctx, rawURL)
	if err != nil {
		var extractErr *Error
		if !errors.As(err, &extractErr) {
			extractErr = e.classify(rawURL, err)
		}
		e.logger.LogAttrs(ctx, slog.LevelWarn, "extraction failed",
			slog.String("url", rawURL), errors.SlogError(err))
		return Result{}, extractErr
	}

	if result.Truncated {
		e.logger.LogAttrs(ctx, slog.LevelWarn, "content truncated",
			slog.String("url", rawURL), slog.Int("original_chars", result.OriginalChars), slog.Int("max_chars", e.maxChars))
	}
	e.logger.LogAttrs(ctx, slog.LevelInfo, "content extracted",
		slog.String("url", rawURL), slog.Int("chars", result.OriginalChars))
	return result, nil
}

func (e *Extractor) extract(ctx context.Context, rawURL string) (Result, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, &Error{URL: rawURL, Message: "Error extracting content: invalid URL", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("User-Agent", e.userAgent)
	resp, err := e.client.Do(req)
	if err != nil {
		return Result{}, errors.Wrap(err, "fetch")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return Result{}, &Error{
			URL: rawURL,
			Message: fmt.Sprintf("HTTP Error %d: %s. The page may not exist or access is denied.",
				resp.StatusCode, http.StatusText(resp.StatusCode)),
			Err: errors.New("http error", slog.Int("status", resp.StatusCode)),
		}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Result{}, errors.Wrap(err, "read body")
	}

	var title, text string
	if isPDF(resp.Header.Get("Content-Type"), parsed) {
		text, err = pdfText(body)
	} else {
		title, text, err = e.htmlText(ctx, body, parsed)
	}
	if err != nil {
		return Result{}, err
	}
	text = Normalize(text)
	if text == "" {
		return Result{}, errors.New("no text content found")
	}

	result := Result{
		URL:           rawURL,
		Title:         strings.TrimSpace(title),
		Text:          text,
		Truncated:     false,
		OriginalChars: utf8.RuneCountInString(text),
	}
	result.Text, result.Truncated = Truncate(text, e.maxChars)
	return result, nil
}

func (e *Extractor) classify(rawURL string, err error) *Error {
	var netErr net.Error
	var urlErr *url.Error
	msg := fmt.Sprintf("Error extracting content: %s", err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()):
		msg = fmt.Sprintf("Request timed out after %d seconds. The website may be slow or unresponsive.",
			int(e.timeout.Seconds()))
	case errors.Is(err, context.Canceled):
		msg = "Error extracting content: request cancelled"
	case errors.As(err, &urlErr):
		msg = "Connection error. Please check your internet connection or verify the URL is accessible."
	}
	return &Error{URL: rawURL, Message: msg, Err: err}
}

func isPDF(contentType string, u *url.URL) bool {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == "application/pdf" {
		return true
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}

// htmlText prefers the readability article and falls back to well-known content containers.
func (e *Extractor) htmlText(ctx context.Context, body []byte, u *url.URL) (string, string, error) {
	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err == nil && utf8.RuneCountInString(strings.TrimSpace(article.TextContent)) >= e.minReadableChars {
		return article.Title, article.TextContent, nil
	}
	if err != nil {
		e.logger.LogAttrs(ctx, slog.LevelDebug, "readability failed", errors.SlogError(err))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", errors.Wrap(err, "parse html")
	}
	title := doc.Find("title").First().Text()
	text, source := fallbackText(doc)
	e.logger.LogAttrs(ctx, slog.LevelDebug, "used fallback extraction", slog.String("source", source))
	return title, text, nil
}

type containerSelector struct {
	tag   string
	class string
}

var containerSelectors = []containerSelector{
	{tag: "div", class: "article__body"},
	{tag: "div", class: "article-body"},
	{tag: "div", class: "article__text"},
	{tag: "div", class: "article-content"},
	{tag: "article", class: ""},
	{tag: "div", class: "post-content"},
	{tag: "div", class: "entry-content"},
	{tag: "div", class: "content"},
	{tag: "main", class: ""},
}

// fallbackText removes page chrome and returns the text of the first matching content container, the long
// paragraphs or the whole body, in that order. The second return value names what matched.
func fallbackText(doc *goquery.Document) (string, string) {
	doc.Find("script, style, nav, footer, header, aside, form, iframe").Remove()

	for _, s := range containerSelectors {
		sel := doc.Find(s.tag)
		if s.class != "" {
			exact := doc.Find(s.tag + "." + s.class)
			if exact.Length() == 0 {
				exact = doc.Find(fmt.Sprintf("%s[class*=%q]", s.tag, s.class))
			}
			sel = exact
		}
		if sel.Length() > 0 {
			return nodeText(sel.First()), sel.Nodes[0].Data + "." + s.class
		}
	}

	var paragraphs []string
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		if text := strings.TrimSpace(p.Text()); utf8.RuneCountInString(text) > minParagraphChars {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) > 0 {
		return strings.Join(paragraphs, "\n\n"), "paragraphs"
	}
	return nodeText(doc.Selection), "body"
}

// nodeText joins the trimmed text nodes below sel with newlines.
func nodeText(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, "\n")
}

// pdfText returns the text of every page. rsc.io/pdf panics on malformed objects and content streams, which is
// reported as an error.
func pdfText(body []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", errors.New("could not read PDF", slog.Any("panic", r))
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", errors.Wrap(err, "open pdf")
	}
	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, t := range page.Content().Text {
			b.WriteString(t.S)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

// Normalize trims every line, splits lines on double spaces and drops empty chunks.
func Normalize(text string) string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		for _, phrase := range strings.Split(strings.TrimSpace(line), "  ") {
			if phrase = strings.TrimSpace(phrase); phrase != "" {
				chunks = append(chunks, phrase)
			}
		}
	}
	return strings.Join(chunks, "\n")
}

// Truncate cuts text to maxChars characters and appends a truncation notice.
func Truncate(text string, maxChars int) (string, bool) {
	if utf8.RuneCountInString(text) <= maxChars {
		return text, false
	}
	return string([]rune(text)[:maxChars]) + truncatedSuffix, true
}

// ProcessInput extracts the content of raw when it is a URL and returns raw trimmed otherwise. fromURL reports
// whether the text came from a URL.
func (e *Extractor) ProcessInput(ctx context.Context, raw string) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if !IsURL(raw) {
		return raw, false, nil
	}
	result, err := e.Extract(ctx, raw)
	if err != nil {
		return "", false, err
	}
	return fmt.Sprintf("[Content extracted from: %s]\n\n%s", raw, result.Text), true, nil
}
