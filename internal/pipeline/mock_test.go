package pipeline

import (
	"context"
	"sync"

	"github.com/sells-group/prospect-cli/pkg/tavily"
)

// mockSearchClient implements tavily.Client with per-call function hooks.
type mockSearchClient struct {
	mu          sync.Mutex
	searchCalls []tavily.SearchRequest
	extractURLs [][]string

	searchFn  func(req tavily.SearchRequest) (*tavily.SearchResponse, error)
	extractFn func(urls []string) (*tavily.ExtractResponse, error)
}

func (m *mockSearchClient) Search(ctx context.Context, req tavily.SearchRequest) (*tavily.SearchResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.searchCalls = append(m.searchCalls, req)
	m.mu.Unlock()
	if m.searchFn != nil {
		return m.searchFn(req)
	}
	return &tavily.SearchResponse{Query: req.Query}, nil
}

func (m *mockSearchClient) Extract(ctx context.Context, urls []string) (*tavily.ExtractResponse, error) {
	m.mu.Lock()
	m.extractURLs = append(m.extractURLs, urls)
	m.mu.Unlock()
	if m.extractFn != nil {
		return m.extractFn(urls)
	}
	return &tavily.ExtractResponse{}, nil
}

func (m *mockSearchClient) searchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.searchCalls)
}

func resultFor(url, content string, score float64) tavily.SearchResult {
	return tavily.SearchResult{
		Title:   "result " + url,
		URL:     url,
		Content: content,
		Score:   score,
	}
}
