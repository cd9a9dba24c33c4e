package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/myrjola/vera/internal/ai"
	"github.com/myrjola/vera/internal/errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidSentences = errors.NewSentinel("sentences must be between 1 and 10")

const (
	minSentences       = 1
	maxSentences       = 10
	disambiguationOpts = 5
	wikipediaTimeout   = 15 * time.Second
)

// WikipediaOptions configure Wikipedia.
type WikipediaOptions struct {
	// Language selects the edition, e.g. "en" or "pl".
	Language string
	// DefaultSentences is used when the model does not ask for a summary length.
	DefaultSentences int
	// Endpoint overrides the MediaWiki API URL.
	Endpoint   string
	HTTPClient *http.Client
	UserAgent  string
}

// Wikipedia looks up article summaries through the MediaWiki action API.
type Wikipedia struct {
	endpoint         string
	defaultSentences int
	client           *http.Client
	userAgent        string
}

func NewWikipedia(opts WikipediaOptions) (*Wikipedia, error) {
	if opts.DefaultSentences < minSentences || opts.DefaultSentences > maxSentences {
		return nil, errors.Wrap(ErrInvalidSentences, "new wikipedia", slog.Int("sentences", opts.DefaultSentences))
	}
	lang := opts.Language
	if lang == "" {
		lang = "en"
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.wikipedia.org/w/api.php", lang)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: wikipediaTimeout} //nolint:exhaustruct // defaults are fine
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "vera/1.0 (disinformation investigation)"
	}
	return &Wikipedia{
		endpoint:         endpoint,
		defaultSentences: opts.DefaultSentences,
		client:           client,
		userAgent:        userAgent,
	}, nil
}

// Lookup searches for query and summarises the top article in the given number of sentences. Missing articles
// and disambiguation pages are reported in the returned text, not as errors.
func (w *Wikipedia) Lookup(ctx context.Context, query string, sentences int) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}
	if sentences < minSentences || sentences > maxSentences {
		return "", errors.Wrap(ErrInvalidSentences, "lookup", slog.Int("sentences", sentences))
	}

	var search struct {
		Query struct {
			Search []struct {
				Title string `json:"title"`
			} `json:"search"`
		} `json:"query"`
	}
	err := w.get(ctx, url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {"1"},
	}, &search)
	if err != nil {
		return "", errors.Wrap(err, "search articles", slog.String("query", query))
	}
	if len(search.Query.Search) == 0 {
		return fmt.Sprintf("No Wikipedia results found for '%s'.", query), nil
	}

	var pages struct {
		Query struct {
			Pages []struct {
				Title     string            `json:"title"`
				Missing   bool              `json:"missing"`
				Extract   string            `json:"extract"`
				FullURL   string            `json:"fullurl"`
				PageProps map[string]string `json:"pageprops"`
				Links     []struct {
					Title string `json:"title"`
				} `json:"links"`
			} `json:"pages"`
		} `json:"query"`
	}
	err = w.get(ctx, url.Values{
		"action":      {"query"},
		"titles":      {search.Query.Search[0].Title},
		"prop":        {"extracts|info|pageprops|links"},
		"exintro":     {"1"},
		"explaintext": {"1"},
		"exsentences": {strconv.Itoa(sentences)},
		"inprop":      {"url"},
		"ppprop":      {"disambiguation"},
		"plnamespace": {"0"},
		"pllimit":     {strconv.Itoa(disambiguationOpts)},
		"redirects":   {"1"},
	}, &pages)
	if err != nil {
		return "", errors.Wrap(err, "fetch article", slog.String("query", query))
	}
	if len(pages.Query.Pages) == 0 || pages.Query.Pages[0].Missing {
		return fmt.Sprintf("No Wikipedia article found for '%s'.", query), nil
	}
	page := pages.Query.Pages[0]
	if _, ok := page.PageProps["disambiguation"]; ok {
		options := make([]string, 0, len(page.Links))
		for _, l := range page.Links {
			options = append(options, l.Title)
		}
		return fmt.Sprintf("Disambiguation needed for '%s'. Options: %s", query, strings.Join(options, ", ")), nil
	}
	if strings.TrimSpace(page.Extract) == "" {
		return fmt.Sprintf("No Wikipedia article found for '%s'.", query), nil
	}
	return fmt.Sprintf("**%s**\n\n%s\n\nSource: %s", page.Title, strings.TrimSpace(page.Extract), page.FullURL), nil
}

func (w *Wikipedia) get(ctx context.Context, params url.Values, dst any) error {
	params.Set("format", "json")
	params.Set("formatversion", "2")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("User-Agent", w.userAgent)
	resp, err := w.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512)) //nolint:mnd // enough for an error message
		return errors.New("unexpected status",
			slog.Int("status", resp.StatusCode), slog.String("body", string(body)))
	}
	if err = json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func (w *Wikipedia) Name() string {
	return ai.CapabilityWikipedia
}

func (w *Wikipedia) Description() string {
	return "Searches Wikipedia and returns the summary of the top article with its URL. Use it for definitions, " +
		"background information and historical context."
}

func (w *Wikipedia) Parameters() ai.ToolSchema {
	return ai.ToolSchema{
		Properties: map[string]ai.ToolProperty{
			"query": {Type: "string", Description: "The term to look up, e.g. \"Quantum computing\"."},
			"sentences": {Type: "integer", Description: fmt.Sprintf("Summary length in sentences, %d to %d.",
				minSentences, maxSentences)},
		},
		Required: []string{"query"},
	}
}

func (w *Wikipedia) Call(ctx context.Context, args map[string]any) (string, error) {
	query := ai.StringArg(args, "query")
	out, err := w.Lookup(ctx, query, ai.IntArg(args, "sentences", w.defaultSentences))
	if err != nil {
		return "", errors.Wrap(err, fmt.Sprintf("search Wikipedia for '%s'", query))
	}
	return out, nil
}
