// Package archive is the searchable view over the full shared history: the
// archive screen pages through every message and filters by substring.
package archive

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/duetkeys/duet/internal/corpus"
)

const defaultPageSize = 50

// Page is one page of search results.
type Page struct {
	Query    string           `json:"query"`
	Messages []corpus.Message `json:"messages"`
	Total    int              `json:"total"`
	PageNum  int              `json:"page"`
	HasMore  bool             `json:"has_more"`
}

// App serves archive searches over the loaded corpus.
type App struct {
	corpus   *corpus.Corpus
	cache    ResultCache
	pageSize int
}

// NewApp creates an archive App. cache may be nil when Redis is disabled.
func NewApp(c *corpus.Corpus, cache ResultCache) *App {
	return &App{
		corpus:   c,
		cache:    cache,
		pageSize: defaultPageSize,
	}
}

// Search returns one page of messages matching query, newest-first query
// order preserved from the history. An empty query pages through everything.
func (a *App) Search(ctx context.Context, query string, page int) *Page {
	query = strings.ToLower(strings.TrimSpace(query))
	if page < 0 {
		page = 0
	}

	if a.cache != nil {
		cached, err := a.cache.Get(ctx, query, page)
		if err != nil {
			log.Warn().Err(err).Str("query", query).Msg("archive cache read failed")
		} else if cached != nil {
			return cached
		}
	}

	var matched []corpus.Message
	if query == "" {
		matched = a.corpus.FullHistory
	} else {
		for _, msg := range a.corpus.FullHistory {
			if strings.Contains(strings.ToLower(msg.Text), query) {
				matched = append(matched, msg)
			}
		}
	}

	start := page * a.pageSize
	end := start + a.pageSize
	if start > len(matched) {
		start = len(matched)
	}
	if end > len(matched) {
		end = len(matched)
	}

	result := &Page{
		Query:    query,
		Messages: matched[start:end],
		Total:    len(matched),
		PageNum:  page,
		HasMore:  end < len(matched),
	}

	if a.cache != nil {
		if err := a.cache.Set(ctx, query, page, result); err != nil {
			log.Warn().Err(err).Str("query", query).Msg("archive cache write failed")
		}
	}
	return result
}
