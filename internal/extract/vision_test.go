package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gmsas95/docsheet/internal/config"
	apperrors "github.com/gmsas95/docsheet/internal/errors"
)

func TestExtractRequiresAPIKey(t *testing.T) {
	e := NewExtractor("gemini", config.Provider{})
	_, err := e.Extract(context.Background(), []byte{1}, "a.png", TypePassport)
	if err != apperrors.ErrProviderNotConfigured {
		t.Errorf("expected ErrProviderNotConfigured, got %v", err)
	}
}

func TestExtractUnknownProvider(t *testing.T) {
	e := NewExtractor("other", config.Provider{APIKey: "k"})
	_, err := e.Extract(context.Background(), []byte{1}, "a.png", TypePassport)
	if err == nil || apperrors.GetCode(err) != "VISION_001" {
		t.Errorf("expected VISION_001, got %v", err)
	}
}

func TestExtractWithGemini(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var req struct {
			Contents []struct {
				Parts []map[string]interface{} `json:"parts"`
			} `json:"contents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 2 {
			t.Errorf("expected one content with text+image parts")
		}
		prompt, _ := req.Contents[0].Parts[0]["text"].(string)
		if !strings.Contains(prompt, "Passport Number:") {
			t.Error("expected passport instruction in prompt")
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"parts": []map[string]string{{"text": "Passport Number: X1"}},
				}},
			},
		})
	}))
	defer srv.Close()

	e := NewExtractor("gemini", config.Provider{
		APIKey:  "k",
		BaseURL: srv.URL,
		Model:   "gemini-2.0-flash",
	})
	text, err := e.Extract(context.Background(), []byte{0x89}, "scan.png", TypePassport)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if text != "Passport Number: X1" {
		t.Errorf("unexpected text: %q", text)
	}
	if !strings.Contains(gotPath, "gemini-2.0-flash") {
		t.Errorf("model missing from URL path: %s", gotPath)
	}
}

func TestExtractWithOpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("unexpected auth header: %s", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "Bank Name: First Trust"}},
			},
		})
	}))
	defer srv.Close()

	e := NewExtractor("openai", config.Provider{APIKey: "k", BaseURL: srv.URL, Model: "gpt-4o"})
	text, err := e.Extract(context.Background(), []byte{1}, "scan.jpg", TypeCheck)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if text != "Bank Name: First Trust" {
		t.Errorf("unexpected text: %q", text)
	}
}

func TestExtractWithAnthropic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "k" {
			t.Errorf("unexpected api key header: %s", got)
		}
		if got := r.Header.Get("anthropic-version"); got == "" {
			t.Error("missing anthropic-version header")
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]string{{"text": "Invoice Number: INV-1"}},
		})
	}))
	defer srv.Close()

	e := NewExtractor("anthropic", config.Provider{APIKey: "k", BaseURL: srv.URL, Model: "claude"})
	text, err := e.Extract(context.Background(), []byte{1}, "scan.jpg", TypeInvoice)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if text != "Invoice Number: INV-1" {
		t.Errorf("unexpected text: %q", text)
	}
}

func TestExtractSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "model overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewExtractor("openai", config.Provider{APIKey: "k", BaseURL: srv.URL})
	_, err := e.Extract(context.Background(), []byte{1}, "scan.jpg", TypeInvoice)
	if err == nil || !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("expected API body surfaced in error, got %v", err)
	}
}

func TestExtractRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e := NewExtractor("openai", config.Provider{APIKey: "k", BaseURL: srv.URL})
	_, err := e.Extract(context.Background(), []byte{1}, "scan.jpg", TypeInvoice)
	if err != apperrors.ErrRateLimited {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}
