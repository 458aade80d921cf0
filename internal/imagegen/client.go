// Package imagegen calls an OpenAI-compatible image API for generation
// and vision analysis.
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultModel   = "cogview-4"
	requestTimeout = 60 * time.Second
)

// Client talks to an image generation / vision endpoint. The base URL is
// configurable so tests can point at a local server.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey, model string) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("imagegen base url is required")
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: requestTimeout},
	}, nil
}

// GenerateRequest describes one image generation call.
type GenerateRequest struct {
	Prompt  string
	Model   string
	Size    string
	Quality string
}

// Generate submits a prompt and returns the hosted URL of the generated
// image.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if req.Prompt == "" {
		return "", errors.New("prompt is required")
	}
	model := req.Model
	if model == "" {
		model = c.model
	}
	size := req.Size
	if size == "" {
		size = "1024x1024"
	}
	quality := req.Quality
	if quality == "" {
		quality = "standard"
	}

	payload := map[string]string{
		"model":   model,
		"prompt":  req.Prompt,
		"size":    size,
		"quality": quality,
	}
	var result struct {
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/images/generations", payload, &result); err != nil {
		return "", err
	}
	if len(result.Data) == 0 || result.Data[0].URL == "" {
		return "", errors.New("image api returned no image url")
	}
	return result.Data[0].URL, nil
}

// Analyze runs a vision completion over an uploaded image. image is the
// raw file content; it is inlined as a base64 data URL.
func (c *Client) Analyze(ctx context.Context, prompt string, image []byte) (string, error) {
	if len(image) == 0 {
		return "", errors.New("image content is required")
	}
	if prompt == "" {
		prompt = "Describe this image."
	}

	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)
	payload := map[string]any{
		"model": c.model,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": prompt},
					{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
				},
			},
		},
	}
	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.post(ctx, "/chat/completions", payload, &result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", errors.New("vision api returned no choices")
	}
	return result.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("image api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("image api: %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode image api response: %w", err)
	}
	return nil
}
