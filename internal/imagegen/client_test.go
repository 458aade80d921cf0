package imagegen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"url": "https://img.example.com/out.png"}},
		})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "test-key", "paintbox-v1")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	url, err := client.Generate(context.Background(), GenerateRequest{Prompt: "a lighthouse at dusk"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if url != "https://img.example.com/out.png" {
		t.Errorf("url: got %q", url)
	}
	if gotPath != "/images/generations" {
		t.Errorf("path: got %q", gotPath)
	}
	if gotBody["model"] != "paintbox-v1" || gotBody["size"] != "1024x1024" || gotBody["quality"] != "standard" {
		t.Errorf("defaults not applied: %+v", gotBody)
	}
}

func TestGenerateUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusPaymentRequired)
	}))
	defer server.Close()

	client, _ := NewClient(server.URL, "k", "")
	_, err := client.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("error should carry upstream detail, got %v", err)
	}
}

func TestAnalyzeInlinesImageAndAuth(t *testing.T) {
	var gotAuth string
	var gotBody struct {
		Model    string `json:"model"`
		Messages []struct {
			Content []struct {
				Type     string `json:"type"`
				Text     string `json:"text"`
				ImageURL struct {
					URL string `json:"url"`
				} `json:"image_url"`
			} `json:"content"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "a small orange cat"}},
			},
		})
	}))
	defer server.Close()

	client, _ := NewClient(server.URL, "secret", "vision-v1")
	analysis, err := client.Analyze(context.Background(), "what is this?", []byte{0xFF, 0xD8, 0xFF})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis != "a small orange cat" {
		t.Errorf("analysis: got %q", analysis)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth header: got %q", gotAuth)
	}
	parts := gotBody.Messages[0].Content
	if len(parts) != 2 || parts[0].Text != "what is this?" {
		t.Fatalf("unexpected message parts: %+v", parts)
	}
	if !strings.HasPrefix(parts[1].ImageURL.URL, "data:image/jpeg;base64,") {
		t.Errorf("image part should be a base64 data url, got %q", parts[1].ImageURL.URL)
	}
}

func TestAnalyzeRejectsEmptyImage(t *testing.T) {
	client, _ := NewClient("http://localhost:0", "", "")
	if _, err := client.Analyze(context.Background(), "p", nil); err == nil {
		t.Fatal("expected error for empty image")
	}
}
