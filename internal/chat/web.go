package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"chatrelay/internal/models"
)

const (
	maxExtractChars = 5000
	maxPromptChars  = 3000
)

// ExtractPage resolves the content for a URL and caches the extraction.
// Client-supplied content wins over the cache; the cache wins over a live
// fetch.
func (o *Orchestrator) ExtractPage(ctx context.Context, url, content string) (*models.WebCacheEntry, error) {
	if content != "" {
		entry := models.WebCacheEntry{
			URL:     url,
			Title:   "User Content",
			Content: truncate(content, maxExtractChars),
		}
		if url != "" {
			if err := o.store.SetWebCache(ctx, entry, o.webTTL); err != nil {
				return nil, err
			}
		}
		return &entry, nil
	}
	if url == "" {
		return nil, errors.New("either url or content is required")
	}

	if cached, err := o.store.WebCache(ctx, url); err == nil {
		return cached, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	p, err := o.fetcher.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	entry := models.WebCacheEntry{
		URL:     url,
		Title:   p.Title,
		Content: truncate(p.Content, maxExtractChars),
	}
	if err := o.store.SetWebCache(ctx, entry, o.webTTL); err != nil {
		return nil, err
	}
	return &entry, nil
}

// StreamSummary streams a summary of a page's content. A cached summary is
// replayed without an agent call; a fresh one is written back to the cache.
func (o *Orchestrator) StreamSummary(ctx context.Context, url, content string, sink Sink) error {
	return o.streamWeb(ctx, url, content, sink,
		func(e *models.WebCacheEntry) string { return e.Summary },
		func(e *models.WebCacheEntry, out string) { e.Summary = out },
		summaryPrompt,
	)
}

// StreamJSON streams a structured-JSON rendering of a page's content,
// cached the same way as summaries.
func (o *Orchestrator) StreamJSON(ctx context.Context, url, content string, sink Sink) error {
	return o.streamWeb(ctx, url, content, sink,
		func(e *models.WebCacheEntry) string { return e.JSONData },
		func(e *models.WebCacheEntry, out string) { e.JSONData = out },
		jsonPrompt,
	)
}

func (o *Orchestrator) streamWeb(
	ctx context.Context,
	url, content string,
	sink Sink,
	cachedOutput func(*models.WebCacheEntry) string,
	storeOutput func(*models.WebCacheEntry, string),
	buildPrompt func(url, content string) string,
) error {
	fw := &frameWriter{sink: sink}
	fw.emit(webStartFrame(url))

	// A cached derivation short-circuits the agent entirely, but only when
	// the client did not supply fresh content to analyze.
	if url != "" && content == "" {
		if cached, err := o.store.WebCache(ctx, url); err == nil {
			if out := cachedOutput(cached); out != "" {
				fw.emit(contentFrame(out))
				fw.emit(bareEndFrame())
				return fw.err
			}
		} else if !errors.Is(err, sql.ErrNoRows) {
			fw.emit(errorFrame("failed to read web cache"))
			return err
		}
	}

	entry, err := o.ExtractPage(ctx, url, content)
	if err != nil {
		fw.emit(errorFrame("failed to load page content"))
		return fmt.Errorf("extract page %s: %w", url, err)
	}

	deb := newDebouncer(o.debounce, func(text string) {
		fw.emit(contentFrame(text))
	})
	result, err := o.runner.RunStream(ctx, buildPrompt(url, truncate(entry.Content, maxPromptChars)), nil, func(snapshot string) error {
		deb.observe(snapshot)
		return nil
	})
	if err != nil {
		fw.emit(errorFrame("agent request failed"))
		return fmt.Errorf("web stream for %s: %w", url, err)
	}
	deb.flush()

	if url != "" {
		storeOutput(entry, result.Output)
		if err := o.store.SetWebCache(context.WithoutCancel(ctx), *entry, o.webTTL); err != nil {
			log.Printf("web cache update for %s failed: %v", url, err)
		}
	}

	fw.emit(bareEndFrame())
	return fw.err
}

func summaryPrompt(url, content string) string {
	return fmt.Sprintf(`Summarize the following web page content.

URL: %s

Content:
%s

Summarize the main points concisely in Markdown, in at most 200 words.`, url, content)
}

func jsonPrompt(url, content string) string {
	return fmt.Sprintf(`Convert the following web page content into structured JSON.

URL: %s

Content:
%s

Extract the key information (title, main content, keywords) as JSON, wrapped in a Markdown code block.`, url, content)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
