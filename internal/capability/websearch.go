// Package capability implements the external tools the stages can use during a generation.
package capability

import (
	"context"
	"fmt"
	"github.com/myrjola/vera/internal/ai"
	"github.com/myrjola/vera/internal/errors"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
	"log/slog"
	"strings"
)

var (
	ErrEmptyQuery        = errors.NewSentinel("empty query")
	ErrInvalidMaxResults = errors.NewSentinel("max results must be between 1 and 10")
)

const maxSearchResults = 10

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string
	Link    string
	Snippet string
}

// WebSearch queries a Google Programmable Search Engine.
type WebSearch struct {
	service    *customsearch.Service
	engineID   string
	maxResults int
}

// NewWebSearch creates the search tool. Options are passed to the API client, e.g. [option.WithAPIKey].
func NewWebSearch(ctx context.Context, engineID string, maxResults int, opts ...option.ClientOption) (*WebSearch, error) {
	if engineID == "" {
		return nil, errors.New("search engine ID is required")
	}
	if maxResults < 1 || maxResults > maxSearchResults {
		return nil, errors.Wrap(ErrInvalidMaxResults, "new web search", slog.Int("max_results", maxResults))
	}
	service, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create customsearch service")
	}
	return &WebSearch{
		service:    service,
		engineID:   engineID,
		maxResults: maxResults,
	}, nil
}

// Search returns up to n results for query.
func (w *WebSearch) Search(ctx context.Context, query string, n int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if n < 1 || n > maxSearchResults {
		return nil, errors.Wrap(ErrInvalidMaxResults, "search", slog.Int("max_results", n))
	}
	resp, err := w.service.Cse.List().Q(query).Cx(w.engineID).Num(int64(n)).Context(ctx).Do()
	if err != nil {
		return nil, errors.Wrap(err, "list search results", slog.String("query", query))
	}
	results := make([]SearchResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		results = append(results, SearchResult{
			Title:   item.Title,
			Link:    item.Link,
			Snippet: strings.TrimSpace(item.Snippet),
		})
	}
	return results, nil
}

func (w *WebSearch) Name() string {
	return ai.CapabilityWebSearch
}

func (w *WebSearch) Description() string {
	return "Searches the web and returns the title, URL and snippet of the top results. Use it to find " +
		"reliable sources such as news reports and official statements."
}

func (w *WebSearch) Parameters() ai.ToolSchema {
	return ai.ToolSchema{
		Properties: map[string]ai.ToolProperty{
			"query":       {Type: "string", Description: "The search query."},
			"max_results": {Type: "integer", Description: fmt.Sprintf("Number of results, 1 to %d.", maxSearchResults)},
		},
		Required: []string{"query"},
	}
}

func (w *WebSearch) Call(ctx context.Context, args map[string]any) (string, error) {
	query := ai.StringArg(args, "query")
	results, err := w.Search(ctx, query, ai.IntArg(args, "max_results", w.maxResults))
	if err != nil {
		return "", err
	}
	return FormatSearchResults(query, results), nil
}

// FormatSearchResults renders results as a numbered list for the model.
func FormatSearchResults(query string, results []SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No web results found for '%s'.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Web results for '%s':\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. %s\n   %s\n", i+1, r.Title, r.Link)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", r.Snippet)
		}
	}
	return b.String()
}
