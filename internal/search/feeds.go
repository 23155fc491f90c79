package search

import (
	"context"
	"log"
	"net/url"
	"sort"
	"strings"

	"github.com/mmcdole/gofeed"
)

const maxPerFeed = 50

// FeedConfig is a single feed source.
type FeedConfig struct {
	URL  string
	Name string
}

// Feeds searches a curated set of RSS/Atom feeds instead of the open web.
// Entries are scored by keyword overlap with the query, so research can run
// against trusted sources without a search API key.
type Feeds struct {
	feeds      []FeedConfig
	MaxResults int
	parser     *gofeed.Parser
}

// NewFeeds creates a feed-backed search provider.
func NewFeeds(feeds []FeedConfig, maxResults int) *Feeds {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Feeds{feeds: feeds, MaxResults: maxResults, parser: gofeed.NewParser()}
}

type scoredEntry struct {
	result Result
	score  int
}

// Search parses each configured feed and returns entries ranked by how many
// query terms appear in their title or content.
func (f *Feeds) Search(ctx context.Context, query string) ([]Result, error) {
	terms := queryTerms(query)

	var scored []scoredEntry
	for _, fc := range f.feeds {
		name := fc.Name
		if name == "" {
			name = extractSourceName(fc.URL)
		}

		feed, err := f.parser.ParseURLWithContext(fc.URL, ctx)
		if err != nil {
			log.Printf("Failed to parse feed %s: %v", fc.URL, err)
			continue
		}

		count := 0
		for _, item := range feed.Items {
			if count >= maxPerFeed {
				break
			}
			count++

			entry := feedItemToResult(item, name)
			if entry == nil {
				continue
			}
			score := matchScore(entry, terms)
			if score > 0 {
				scored = append(scored, scoredEntry{result: *entry, score: score})
			}
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	results := make([]Result, 0, f.MaxResults)
	for _, s := range scored {
		results = append(results, s.result)
		if len(results) >= f.MaxResults {
			break
		}
	}
	return results, nil
}

func feedItemToResult(item *gofeed.Item, source string) *Result {
	itemURL := item.Link
	if itemURL == "" {
		itemURL = item.GUID
	}
	if itemURL == "" {
		return nil
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		return nil
	}

	var content string
	if item.Content != "" {
		content = stripHTML(item.Content)
	} else if item.Description != "" {
		content = stripHTML(item.Description)
	}
	if len(content) > 1000 {
		content = content[:1000]
	}

	return &Result{
		URL:     itemURL,
		Title:   title + " (" + source + ")",
		Content: content,
	}
}

// queryTerms lowercases and splits a query, dropping short stop-ish words.
func queryTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, `"'?.,:;()`)
		if len(w) > 2 {
			terms = append(terms, w)
		}
	}
	return terms
}

func matchScore(r *Result, terms []string) int {
	title := strings.ToLower(r.Title)
	content := strings.ToLower(r.Content)

	score := 0
	for _, term := range terms {
		if strings.Contains(title, term) {
			score += 2
		} else if strings.Contains(content, term) {
			score++
		}
	}
	return score
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := result.String()
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")

	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		name := parts[len(parts)-2]
		return strings.ToUpper(name[:1]) + name[1:]
	}
	if host == "" {
		return feedURL
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
