package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	phttp "SqueezeScan/pkg/http"
)

func TestChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "hunyuan-lite" || len(req.Messages) != 2 || req.Stream {
			t.Errorf("bad request body: %+v", req)
		}
		fmt.Fprint(w, `{
			"model":"hunyuan-lite",
			"choices":[{"message":{"role":"assistant","content":"two picks"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":100,"completion_tokens":50,"total_tokens":150}
		}`)
	}))
	defer srv.Close()

	c := New(phttp.NewClient(phttp.WithTimeout(time.Second)), Options{
		Endpoint: srv.URL,
		APIKey:   "k-test",
		Model:    "hunyuan-lite",
	})

	res, err := c.ChatCompletion(context.Background(), []Message{
		{Role: "system", Content: "analyst"},
		{Role: "user", Content: "analyze"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Content != "two picks" || res.TokensUsed != 150 || res.Model != "hunyuan-lite" {
		t.Fatalf("bad result: %+v", res)
	}
}

func TestChatCompletionAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"message":"quota exceeded","type":"rate_limit"}}`)
	}))
	defer srv.Close()

	c := New(phttp.NewClient(), Options{Endpoint: srv.URL, APIKey: "k", Model: "m"})
	_, err := c.ChatCompletion(context.Background(), []Message{{Role: "user", Content: "x"}})
	if err == nil {
		t.Fatal("expected api error")
	}
}

func TestChatCompletionUnconfigured(t *testing.T) {
	c := New(phttp.NewClient(), Options{})
	if c.Configured() {
		t.Fatal("empty options must not be configured")
	}
	_, err := c.ChatCompletion(context.Background(), nil)
	if err != ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
