package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ai-chef/internal/core/ai/provider"
	"ai-chef/internal/infrastructure/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return NewClient(config.ProviderConfig{
		Enabled: true,
		APIKey:  "test-key",
		Model:   "gemini-1.5-flash",
		BaseURL: url,
		Timeout: 5 * time.Second,
	})
}

func TestGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var body generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.NotNil(t, body.SystemInstruction)
		assert.Equal(t, "system", body.SystemInstruction.Parts[0].Text)
		require.Len(t, body.Contents, 1)
		assert.Equal(t, "user", body.Contents[0].Parts[0].Text)
		assert.Equal(t, "application/json", body.GenerationConfig.ResponseMimeType)
		assert.Equal(t, 1024, body.GenerationConfig.MaxOutputTokens)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"title\":"}, {"text": "\"Soup\"}"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 80, "candidatesTokenCount": 40, "totalTokenCount": 120}
		}`))
	}))
	defer server.Close()

	resp, err := newTestClient(server.URL).Generate(context.Background(), &provider.Request{
		SystemPrompt:   "system",
		UserPrompt:     "user",
		ResponseFormat: "json",
		MaxTokens:      1024,
		Temperature:    0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, Name, resp.Provider)
	assert.Equal(t, "gemini-1.5-flash", resp.Model)
	assert.Equal(t, `{"title":"Soup"}`, resp.Content)
	assert.Equal(t, 120, resp.Usage.TotalTokens)
	assert.Equal(t, 40, resp.Usage.CompletionTokens)
	assert.Nil(t, resp.RateLimit)
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":{"code":429}}`, wantStatus: 429},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`, wantStatus: 500},
		{name: "no candidates", status: http.StatusOK, body: `{"candidates":[]}`},
		{name: "empty text", status: http.StatusOK, body: `{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).Generate(context.Background(), &provider.Request{UserPrompt: "x"})
			require.Error(t, err)

			var statusErr *provider.StatusError
			if tt.wantStatus != 0 {
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, tt.wantStatus, statusErr.StatusCode)
			}
		})
	}
}
