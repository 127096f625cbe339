package archive

import (
	"context"
	"fmt"
	"testing"

	"github.com/duetkeys/duet/internal/corpus"
)

func testCorpus(n int) *corpus.Corpus {
	c := &corpus.Corpus{}
	for i := 0; i < n; i++ {
		text := fmt.Sprintf("plain message %d", i)
		if i%10 == 0 {
			text = fmt.Sprintf("special message %d", i)
		}
		c.FullHistory = append(c.FullHistory, corpus.Message{
			Speaker: "p1",
			Text:    text,
			Date:    "01/01/24",
		})
	}
	return c
}

type memCache struct {
	pages map[string]*Page
	gets  int
	hits  int
}

func newMemCache() *memCache {
	return &memCache{pages: map[string]*Page{}}
}

func (m *memCache) key(query string, page int) string {
	return fmt.Sprintf("%s:%d", query, page)
}

func (m *memCache) Get(ctx context.Context, query string, page int) (*Page, error) {
	m.gets++
	if p, ok := m.pages[m.key(query, page)]; ok {
		m.hits++
		return p, nil
	}
	return nil, nil
}

func (m *memCache) Set(ctx context.Context, query string, page int, result *Page) error {
	m.pages[m.key(query, page)] = result
	return nil
}

func TestSearch_SubstringCaseInsensitive(t *testing.T) {
	app := NewApp(testCorpus(100), nil)

	page := app.Search(context.Background(), "  SPECIAL ", 0)
	if page.Total != 10 {
		t.Fatalf("total = %d, want 10", page.Total)
	}
	if page.Query != "special" {
		t.Fatalf("query not normalized: %q", page.Query)
	}
	for _, msg := range page.Messages {
		if msg.Text[:7] != "special" {
			t.Fatalf("non-matching message in results: %q", msg.Text)
		}
	}
}

func TestSearch_Pagination(t *testing.T) {
	app := NewApp(testCorpus(120), nil)
	ctx := context.Background()

	first := app.Search(ctx, "", 0)
	if len(first.Messages) != 50 || !first.HasMore {
		t.Fatalf("page 0: %d messages, has_more=%v", len(first.Messages), first.HasMore)
	}
	second := app.Search(ctx, "", 1)
	if len(second.Messages) != 50 || !second.HasMore {
		t.Fatalf("page 1: %d messages, has_more=%v", len(second.Messages), second.HasMore)
	}
	if first.Messages[0].Text == second.Messages[0].Text {
		t.Fatalf("pages overlap")
	}
	last := app.Search(ctx, "", 2)
	if len(last.Messages) != 20 || last.HasMore {
		t.Fatalf("page 2: %d messages, has_more=%v", len(last.Messages), last.HasMore)
	}
}

func TestSearch_PageBeyondEndIsEmpty(t *testing.T) {
	app := NewApp(testCorpus(10), nil)

	page := app.Search(context.Background(), "", 5)
	if len(page.Messages) != 0 || page.HasMore {
		t.Fatalf("expected empty page, got %d messages", len(page.Messages))
	}
	if page.Total != 10 {
		t.Fatalf("total = %d, want 10", page.Total)
	}
}

func TestSearch_CacheHitSkipsScan(t *testing.T) {
	cache := newMemCache()
	app := NewApp(testCorpus(100), cache)
	ctx := context.Background()

	first := app.Search(ctx, "special", 0)
	second := app.Search(ctx, "special", 0)
	if cache.hits != 1 {
		t.Fatalf("cache hits = %d, want 1", cache.hits)
	}
	if first.Total != second.Total || len(first.Messages) != len(second.Messages) {
		t.Fatalf("cached page diverged")
	}
}

func TestSearch_NoMatches(t *testing.T) {
	app := NewApp(testCorpus(20), nil)

	page := app.Search(context.Background(), "zzzzz", 0)
	if page.Total != 0 || len(page.Messages) != 0 || page.HasMore {
		t.Fatalf("expected no results, got %+v", page)
	}
}
