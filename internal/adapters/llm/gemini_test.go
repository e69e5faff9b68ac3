package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiFallback_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		assert.Contains(t, req.Contents[0].Parts[0].Text, "plan kab khatam hoga")

		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Your plan "},{"text":"renews soon."}],"role":"model"},"finishReason":"STOP"}]}`))
	}))
	defer server.Close()

	fb := NewGeminiFallback(server.URL, "secret", "", nil)
	out, err := fb.Generate(context.Background(), "plan kab khatam hoga", nil)

	require.NoError(t, err)
	assert.Equal(t, "Your plan renews soon.", out)
}

func TestGeminiFallback_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"bad status", http.StatusForbidden, `{"error":"denied"}`, "status 403"},
		{"no candidates", http.StatusOK, `{"candidates":[]}`, "no candidates"},
		{"empty text", http.StatusOK, `{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`, "SAFETY"},
		{"bad json", http.StatusOK, `{`, "decoding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewGeminiFallback(server.URL, "k", "gemini-2.5-flash", nil).Generate(context.Background(), "q", nil)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestGeminiFallback_Defaults(t *testing.T) {
	fb := NewGeminiFallback("", "k", "", nil)
	assert.Equal(t, geminiBaseURL, fb.baseURL)
	assert.Equal(t, "gemini-2.5-flash", fb.model)
}
