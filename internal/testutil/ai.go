package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// ChatServer is a fake OpenAI-compatible chat-completions endpoint.
type ChatServer struct {
	mu         sync.Mutex
	srv        *httptest.Server
	narrative  string
	failStatus int
	calls      int
	lastSystem string
	lastUser   string
	gate       chan struct{}
}

// NewChatServer starts a fake chat endpoint replying with narrative.
func NewChatServer(t *testing.T, narrative string) *ChatServer {
	t.Helper()
	c := &ChatServer{narrative: narrative}
	c.srv = httptest.NewServer(http.HandlerFunc(c.handle))
	t.Cleanup(c.srv.Close)
	return c
}

// URL returns the endpoint base URL.
func (c *ChatServer) URL() string { return c.srv.URL }

// Fail makes the endpoint return the given HTTP status.
func (c *ChatServer) Fail(status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failStatus = status
}

// Hold makes requests block until Release is called, keeping a
// generation in flight.
func (c *ChatServer) Hold() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gate = make(chan struct{})
}

// Release unblocks requests held by Hold.
func (c *ChatServer) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gate != nil {
		close(c.gate)
		c.gate = nil
	}
}

// Calls returns the number of completed requests.
func (c *ChatServer) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// LastPrompt returns the system and user content of the last request.
func (c *ChatServer) LastPrompt() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSystem, c.lastUser
}

func (c *ChatServer) handle(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	gate := c.gate
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	if c.failStatus != 0 {
		http.Error(w, "upstream failure", c.failStatus)
		return
	}

	var req struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			c.lastSystem = m.Content
		case "user":
			c.lastUser = m.Content
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": c.narrative}},
		},
	})
}
