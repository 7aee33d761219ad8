package genai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethnolens/ethnolens/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.GeminiConfig{
		APIKey:  "test-key",
		Model:   "gemini-2.5-flash",
		BaseURL: srv.URL,
	})
}

func candidateResponse(text string) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{
			{
				"content":      map[string]any{"parts": []map[string]any{{"text": text}}},
				"finishReason": "STOP",
			},
		},
	}
}

func TestGenerateText(t *testing.T) {
	var gotPath, gotKey string
	var gotBody geminiRequest

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(candidateResponse("the analysis"))
	})

	text, err := c.GenerateText(context.Background(), "review this design")
	require.NoError(t, err)
	assert.Equal(t, "the analysis", text)
	assert.Equal(t, "/models/gemini-2.5-flash:generateContent", gotPath)
	assert.Equal(t, "test-key", gotKey)
	require.Len(t, gotBody.Contents, 1)
	assert.Equal(t, "review this design", gotBody.Contents[0].Parts[0].Text)
}

func TestGenerateWithImage(t *testing.T) {
	var gotBody geminiRequest
	image := []byte{0x89, 0x50, 0x4e, 0x47}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(candidateResponse("image verdict"))
	})

	text, err := c.GenerateWithImage(context.Background(), "check this image", "image/png", image)
	require.NoError(t, err)
	assert.Equal(t, "image verdict", text)

	require.Len(t, gotBody.Contents, 1)
	parts := gotBody.Contents[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, "check this image", parts[0].Text)
	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, "image/png", parts[1].InlineData.MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(image), parts[1].InlineData.Data)
}

func TestGenerate_ConcatenatesParts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{
					{"text": "first "},
					{"text": "second"},
				}}},
			},
		})
	})

	text, err := c.GenerateText(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "first second", text)
}

func TestGenerate_RateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.GenerateText(context.Background(), "p")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestGenerate_AuthFailed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := c.GenerateText(context.Background(), "p")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestGenerate_ServerErrorIsUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.GenerateText(context.Background(), "p")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGenerate_EmptyCandidates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	})

	_, err := c.GenerateText(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty candidates")
}
