package search

import (
	"log"
	"os"
)

// CreateProvider creates a search provider based on configuration.
// Unknown provider names fall back to DuckDuckGo, which needs no key.
func CreateProvider(provider, tavilyKeyEnv string, feeds []FeedConfig, maxResults int) Provider {
	switch provider {
	case "tavily":
		key := os.Getenv(tavilyKeyEnv)
		if key != "" {
			log.Println("Using Tavily search")
			return NewTavily(key, maxResults)
		}
		log.Printf("Tavily selected but %s is not set, falling back to DuckDuckGo", tavilyKeyEnv)
	case "feeds":
		if len(feeds) > 0 {
			log.Printf("Using feed search across %d feeds", len(feeds))
			return NewFeeds(feeds, maxResults)
		}
		log.Println("Feed search selected but no feeds configured, falling back to DuckDuckGo")
	case "", "duckduckgo":
	default:
		log.Printf("Unknown search provider %q, falling back to DuckDuckGo", provider)
	}

	log.Println("Using DuckDuckGo search")
	return NewDuckDuckGo(maxResults)
}
