package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// PageFetcher retrieves readable page text via HTTP + readability extraction.
// Domains that fail once are skipped for the lifetime of the fetcher, so a
// dead host does not slow down every later citation.
type PageFetcher struct {
	client *http.Client

	mu            sync.Mutex
	failedDomains map[string]struct{}
}

// NewPageFetcher creates a page fetcher.
func NewPageFetcher(timeout time.Duration) *PageFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &PageFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		failedDomains: make(map[string]struct{}),
	}
}

// Fetch downloads a page and extracts its readable text.
func (f *PageFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	domain := domainOf(pageURL)

	f.mu.Lock()
	_, failed := f.failedDomains[domain]
	f.mu.Unlock()
	if failed {
		return "", fmt.Errorf("skipping %s: domain failed earlier", domain)
	}

	text, err := f.fetchPageText(ctx, pageURL)
	if err != nil {
		if domain != "" {
			f.mu.Lock()
			f.failedDomains[domain] = struct{}{}
			f.mu.Unlock()
		}
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("no extractable content from %s", pageURL)
	}
	return text, nil
}

func (f *PageFetcher) fetchPageText(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "deepresearch/1.0 (research assistant)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("http %d for %s", resp.StatusCode, pageURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", err
	}

	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil {
		// Unparseable markup is not worth marking the whole domain dead.
		return "", nil
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) > 100 {
		return text, nil
	}
	return "", nil
}

func domainOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
