package capability_test

import (
	"encoding/json"
	"github.com/myrjola/vera/internal/ai"
	"github.com/myrjola/vera/internal/capability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"net/http"
	"net/http/httptest"
	"testing"
)

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func newWebSearch(t *testing.T, handler http.HandlerFunc) *capability.WebSearch {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	search, err := capability.NewWebSearch(t.Context(), "engine-1", 5,
		option.WithEndpoint(server.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)
	return search
}

func TestWebSearch(t *testing.T) {
	var gotQuery, gotCx, gotNum string
	search := newWebSearch(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/customsearch/v1", r.URL.Path)
		gotQuery = r.URL.Query().Get("q")
		gotCx = r.URL.Query().Get("cx")
		gotNum = r.URL.Query().Get("num")
		writeJSON(t, w, map[string]any{
			"items": []map[string]string{
				{"title": "Rubik's Cube - Wikipedia", "link": "https://en.wikipedia.org/wiki/Rubik%27s_Cube",
					"snippet": " The Rubik's Cube is a 3D combination puzzle. "},
				{"title": "Ernő Rubik", "link": "https://example.com/rubik"},
			},
		})
	})

	out, err := search.Call(t.Context(), map[string]any{"query": "Rubik's Cube inventor"})
	require.NoError(t, err)

	assert.Equal(t, "Rubik's Cube inventor", gotQuery)
	assert.Equal(t, "engine-1", gotCx)
	assert.Equal(t, "5", gotNum)
	assert.Contains(t, out, "1. Rubik's Cube - Wikipedia\n   https://en.wikipedia.org/wiki/Rubik%27s_Cube\n"+
		"   The Rubik's Cube is a 3D combination puzzle.\n")
	assert.Contains(t, out, "2. Ernő Rubik\n   https://example.com/rubik\n")
}

func TestWebSearch_Validation(t *testing.T) {
	search := newWebSearch(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected")
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := search.Search(t.Context(), "  ", 3)
	require.ErrorIs(t, err, capability.ErrEmptyQuery)
	_, err = search.Search(t.Context(), "cube", 11)
	require.ErrorIs(t, err, capability.ErrInvalidMaxResults)

	_, err = capability.NewWebSearch(t.Context(), "engine-1", 0, option.WithoutAuthentication())
	require.ErrorIs(t, err, capability.ErrInvalidMaxResults)
}

func TestFormatSearchResults_Empty(t *testing.T) {
	assert.Equal(t, "No web results found for 'nothing'.", capability.FormatSearchResults("nothing", nil))
}

type wikiPage struct {
	Title     string            `json:"title"`
	Missing   bool              `json:"missing,omitempty"`
	Extract   string            `json:"extract,omitempty"`
	FullURL   string            `json:"fullurl,omitempty"`
	PageProps map[string]string `json:"pageprops,omitempty"`
	Links     []map[string]any  `json:"links,omitempty"`
}

// fakeWikipedia answers search queries with searchTitles and page queries with page.
func fakeWikipedia(t *testing.T, searchTitles []string, page *wikiPage, sentences *string) *capability.Wikipedia {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "json", q.Get("format"))
		assert.Equal(t, "2", q.Get("formatversion"))
		if q.Get("list") == "search" {
			hits := make([]map[string]string, 0, len(searchTitles))
			for _, title := range searchTitles {
				hits = append(hits, map[string]string{"title": title})
			}
			writeJSON(t, w, map[string]any{"query": map[string]any{"search": hits}})
			return
		}
		if sentences != nil {
			*sentences = q.Get("exsentences")
		}
		pages := []*wikiPage{}
		if page != nil {
			pages = append(pages, page)
		}
		writeJSON(t, w, map[string]any{"query": map[string]any{"pages": pages}})
	}))
	t.Cleanup(server.Close)
	wiki, err := capability.NewWikipedia(capability.WikipediaOptions{
		Language:         "en",
		DefaultSentences: 3,
		Endpoint:         server.URL + "/w/api.php",
		HTTPClient:       server.Client(),
		UserAgent:        "",
	})
	require.NoError(t, err)
	return wiki
}

func TestWikipedia_Lookup(t *testing.T) {
	article := &wikiPage{
		Title:   "Rubik's Cube",
		Extract: "The Rubik's Cube is a 3D combination puzzle invented in 1974 by Ernő Rubik.",
		FullURL: "https://en.wikipedia.org/wiki/Rubik%27s_Cube",
	}
	disambiguation := &wikiPage{
		Title:     "Mercury",
		PageProps: map[string]string{"disambiguation": ""},
		Links: []map[string]any{
			{"ns": 0, "title": "Mercury (planet)"},
			{"ns": 0, "title": "Mercury (element)"},
		},
	}

	tests := []struct {
		name   string
		titles []string
		page   *wikiPage
		query  string
		want   string
	}{
		{
			name:   "summary",
			titles: []string{"Rubik's Cube"},
			page:   article,
			query:  "Rubik's Cube",
			want: "**Rubik's Cube**\n\nThe Rubik's Cube is a 3D combination puzzle invented in 1974 by Ernő Rubik." +
				"\n\nSource: https://en.wikipedia.org/wiki/Rubik%27s_Cube",
		},
		{
			name:   "no results",
			titles: nil,
			query:  "qwzxv",
			want:   "No Wikipedia results found for 'qwzxv'.",
		},
		{
			name:   "missing page",
			titles: []string{"Ghost"},
			page:   &wikiPage{Title: "Ghost", Missing: true},
			query:  "ghost",
			want:   "No Wikipedia article found for 'ghost'.",
		},
		{
			name:   "disambiguation",
			titles: []string{"Mercury"},
			page:   disambiguation,
			query:  "Mercury",
			want:   "Disambiguation needed for 'Mercury'. Options: Mercury (planet), Mercury (element)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wiki := fakeWikipedia(t, tt.titles, tt.page, nil)
			got, err := wiki.Lookup(t.Context(), tt.query, 3)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWikipedia_Sentences(t *testing.T) {
	var sentences string
	wiki := fakeWikipedia(t, []string{"Go"}, &wikiPage{Title: "Go", Extract: "Go is a language.",
		FullURL: "https://en.wikipedia.org/wiki/Go"}, &sentences)

	_, err := wiki.Call(t.Context(), map[string]any{"query": "Go"})
	require.NoError(t, err)
	assert.Equal(t, "3", sentences)

	_, err = wiki.Call(t.Context(), map[string]any{"query": "Go", "sentences": float64(7)})
	require.NoError(t, err)
	assert.Equal(t, "7", sentences)

	for _, n := range []int{0, 11} {
		_, err = wiki.Lookup(t.Context(), "Go", n)
		require.ErrorIs(t, err, capability.ErrInvalidSentences)
	}

	_, err = capability.NewWikipedia(capability.WikipediaOptions{DefaultSentences: 12}) //nolint:exhaustruct // defaults
	require.ErrorIs(t, err, capability.ErrInvalidSentences)
}

func TestWikipedia_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)
	wiki, err := capability.NewWikipedia(capability.WikipediaOptions{ //nolint:exhaustruct // defaults
		DefaultSentences: 3,
		Endpoint:         server.URL,
	})
	require.NoError(t, err)

	_, err = wiki.Lookup(t.Context(), "anything", 3)
	require.Error(t, err)
}

func TestTools_ResolveInToolbox(t *testing.T) {
	wiki := fakeWikipedia(t, nil, nil, nil)
	search := newWebSearch(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{})
	})
	toolbox := ai.NewToolbox(wiki, search)

	tools, err := toolbox.Resolve([]string{ai.CapabilityWikipedia, ai.CapabilityWebSearch})
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, ai.CapabilityWebSearch, tools[0].Name())
	assert.Equal(t, ai.CapabilityWikipedia, tools[1].Name())

	tools, err = toolbox.Resolve([]string{ai.CapabilityWikipedia, ai.CapabilityWebSearch}, ai.CapabilityWebSearch)
	require.NoError(t, err)
	require.Len(t, tools, 1)
}
