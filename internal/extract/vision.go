// Package extract runs document images through multimodal vision APIs
// and parses the structured field output.
package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gmsas95/docsheet/internal/config"
	apperrors "github.com/gmsas95/docsheet/internal/errors"
)

// Extractor defines the interface for vision extraction
type Extractor interface {
	Extract(ctx context.Context, image []byte, filename, docType string) (string, error)
	Name() string
}

// visionExtractor implements extraction over multimodal AI APIs
type visionExtractor struct {
	provider string
	cfg      config.Provider
	client   *http.Client
}

// NewExtractor creates an API-backed extractor for the named provider
func NewExtractor(provider string, cfg config.Provider) Extractor {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120
	}
	return &visionExtractor{
		provider: provider,
		cfg:      cfg,
		client:   &http.Client{Timeout: time.Duration(timeout) * time.Second},
	}
}

func (v *visionExtractor) Name() string {
	return v.provider
}

// Extract sends the image with the per-type instruction prompt and
// returns the raw model text.
func (v *visionExtractor) Extract(ctx context.Context, image []byte, filename, docType string) (string, error) {
	if v.cfg.APIKey == "" {
		return "", apperrors.ErrProviderNotConfigured
	}

	prompt := Instruction(docType)
	mimeType := MimeType(filename)

	switch v.provider {
	case "gemini":
		return v.extractWithGemini(ctx, image, mimeType, prompt)
	case "openai":
		return v.extractWithOpenAI(ctx, image, mimeType, prompt)
	case "anthropic":
		return v.extractWithAnthropic(ctx, image, mimeType, prompt)
	default:
		return "", apperrors.New("VISION_001", fmt.Sprintf("unknown provider: %s", v.provider))
	}
}

func (v *visionExtractor) extractWithGemini(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]interface{}{
					{
						"text": prompt,
					},
					{
						"inlineData": map[string]string{
							"mimeType": mimeType,
							"data":     base64.StdEncoding.EncodeToString(image),
						},
					},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"temperature":     0.2,
			"maxOutputTokens": v.maxTokens(),
		},
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", v.cfg.BaseURL, v.cfg.Model, v.cfg.APIKey)
	body, err := v.post(ctx, url, reqBody, nil)
	if err != nil {
		return "", err
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", apperrors.Wrap(err, "VISION_004", "failed to parse response")
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", apperrors.New("VISION_004", "no response from API")
	}
	return result.Candidates[0].Content.Parts[0].Text, nil
}

func (v *visionExtractor) extractWithOpenAI(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"model": v.cfg.Model,
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []map[string]interface{}{
					{
						"type": "text",
						"text": prompt,
					},
					{
						"type": "image_url",
						"image_url": map[string]string{
							"url": fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image)),
						},
					},
				},
			},
		},
		"max_tokens": v.maxTokens(),
	}

	headers := map[string]string{"Authorization": "Bearer " + v.cfg.APIKey}
	body, err := v.post(ctx, v.cfg.BaseURL+"/chat/completions", reqBody, headers)
	if err != nil {
		return "", err
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", apperrors.Wrap(err, "VISION_004", "failed to parse response")
	}
	if len(result.Choices) == 0 {
		return "", apperrors.New("VISION_004", "no response from API")
	}
	return result.Choices[0].Message.Content, nil
}

func (v *visionExtractor) extractWithAnthropic(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"model":      v.cfg.Model,
		"max_tokens": v.maxTokens(),
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []map[string]interface{}{
					{
						"type": "image",
						"source": map[string]string{
							"type":       "base64",
							"media_type": mimeType,
							"data":       base64.StdEncoding.EncodeToString(image),
						},
					},
					{
						"type": "text",
						"text": prompt,
					},
				},
			},
		},
	}

	headers := map[string]string{
		"x-api-key":         v.cfg.APIKey,
		"anthropic-version": "2023-06-01",
	}
	body, err := v.post(ctx, v.cfg.BaseURL+"/messages", reqBody, headers)
	if err != nil {
		return "", err
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", apperrors.Wrap(err, "VISION_004", "failed to parse response")
	}
	if len(result.Content) == 0 {
		return "", apperrors.New("VISION_004", "no response from API")
	}
	return result.Content[0].Text, nil
}

func (v *visionExtractor) post(ctx context.Context, url string, reqBody interface{}, headers map[string]string) ([]byte, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, val := range headers {
		req.Header.Set(k, val)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, "VISION_002", "API request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperrors.ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.New("VISION_002", fmt.Sprintf("API error (status %d): %s", resp.StatusCode, string(body)))
	}
	return body, nil
}

func (v *visionExtractor) maxTokens() int {
	if v.cfg.MaxTokens > 0 {
		return v.cfg.MaxTokens
	}
	return 2048
}

// MimeType returns the MIME type for an image file by extension
func MimeType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	default:
		return "image/jpeg"
	}
}
