package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/anasify/dashboard/backend/internal/model/chatbot"
	chatservice "github.com/anasify/dashboard/backend/internal/service/chat"
	"github.com/anasify/dashboard/backend/internal/service/training"
)

func newTestRouter() http.Handler {
	store := chatbot.NewMemoryStore(chatbot.Seed(time.Now().UTC()))
	exchanges := chatservice.NewService(nil, store, nil, chatservice.Options{}, nil)
	return NewRouter(store, exchanges, training.NewService(store, training.NewHTTPFetcher(time.Second, 1024), nil), nil)
}

func TestHealth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"ai":false`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "https://customer.example")
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestRoutesAreMounted(t *testing.T) {
	router := newTestRouter()

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/api/chatbots", http.StatusOK},
		{http.MethodGet, "/api/chatbots/bot-1/training", http.StatusOK},
		{http.MethodGet, "/api/chatbots/bot-1/embed", http.StatusOK},
		{http.MethodPost, "/api/chatbots/bot-1/chat", http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		body := `{"messages":[{"id":"u","role":"user","content":"hi"}]}`
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(body))
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, resp.Code)
		}
	}
}
