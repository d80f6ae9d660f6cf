package imagegen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer hf-token", r.Header.Get("Authorization"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "a red fox", req["inputs"])

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngHeader)
	}))
	defer srv.Close()

	img, err := NewClient(srv.URL, "hf-token", zap.NewNop()).Generate(context.Background(), "a red fox")
	require.NoError(t, err)
	assert.Equal(t, pngHeader, img)
}

func TestGenerate_ModelLoading(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"Model is currently loading","estimated_time":20.0}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "t", zap.NewNop()).Generate(context.Background(), "fox")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Model is currently loading")
}

func TestGenerate_JSONWithOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":"unexpected"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "t", zap.NewNop()).Generate(context.Background(), "fox")
	assert.ErrorContains(t, err, "unexpected")
}

func TestGenerate_EmptyPrompt(t *testing.T) {
	_, err := NewClient("http://unused", "t", zap.NewNop()).Generate(context.Background(), "  ")
	assert.Error(t, err)
}
