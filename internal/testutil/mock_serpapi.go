// Package testutil provides a mock search provider and payload fixtures.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"
)

// MockResponse defines one canned provider response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockSerpAPI is a configurable mock of the search provider.
//
// Responses are chosen in this order: the scripted queue, a route-specific
// response ("DEP-ARR"), then the default response.
type MockSerpAPI struct {
	server *httptest.Server

	mu       sync.RWMutex
	queue    []MockResponse
	routes   map[string]MockResponse
	fallback MockResponse

	// Tracking
	RequestCount int
	Requests     []url.Values
}

// NewMockSerpAPI starts a mock server that answers with an empty result set.
func NewMockSerpAPI() *MockSerpAPI {
	mock := &MockSerpAPI{
		routes:   make(map[string]MockResponse),
		fallback: NewJSONResponse(http.StatusOK, map[string]any{"best_flights": []any{}, "other_flights": []any{}}),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		mock.mu.Lock()
		mock.RequestCount++
		mock.Requests = append(mock.Requests, q)
		resp := mock.next(q.Get("departure_id") + "-" + q.Get("arrival_id"))
		mock.mu.Unlock()

		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	}))

	return mock
}

// next must be called with mu held.
func (m *MockSerpAPI) next(route string) MockResponse {
	if len(m.queue) > 0 {
		resp := m.queue[0]
		m.queue = m.queue[1:]
		return resp
	}
	if resp, ok := m.routes[route]; ok {
		return resp
	}
	return m.fallback
}

// URL returns the search endpoint URL.
func (m *MockSerpAPI) URL() string {
	return m.server.URL + "/search"
}

// Close shuts down the mock server.
func (m *MockSerpAPI) Close() {
	m.server.Close()
}

// Enqueue appends responses served before any route or default response.
func (m *MockSerpAPI) Enqueue(resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, resps...)
}

// SetRouteResponse sets the response for searches from dep to arr.
func (m *MockSerpAPI) SetRouteResponse(dep, arr string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[dep+"-"+arr] = resp
}

// SetDefault replaces the default response.
func (m *MockSerpAPI) SetDefault(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = resp
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockSerpAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// LastRequest returns the query of the most recent request.
func (m *MockSerpAPI) LastRequest() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.Requests) == 0 {
		return nil
	}
	return m.Requests[len(m.Requests)-1]
}

// Reset clears tracking counters and queued responses.
func (m *MockSerpAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.Requests = nil
	m.queue = nil
}

// NewJSONResponse encodes v as a JSON response body.
func NewJSONResponse(status int, v any) MockResponse {
	body, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return MockResponse{
		StatusCode: status,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
	}
}

// NewApplicationErrorResponse creates a 200 response carrying a provider error.
func NewApplicationErrorResponse(msg string) MockResponse {
	return NewJSONResponse(http.StatusOK, map[string]string{"error": msg})
}
