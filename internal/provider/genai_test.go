package provider

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenAI_Generate(t *testing.T) {
	srv := newVendorServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-2.0-flash:generateContent"), r.URL.Path)
		assert.Equal(t, "AIza-sdk", r.Header.Get("x-goog-api-key"))

		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "application/json")
		assert.Contains(t, string(body), "tell me")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"story\":\"sdk\"}"}]}}]}`))
	})

	c, err := NewGenAI(Config{Credential: "AIza-sdk", BaseURL: srv.URL + "/", HTTPClient: srv.Client()})
	require.NoError(t, err)

	obj, err := c.Generate(context.Background(), "tell me", "narrate", Options{})
	require.NoError(t, err)
	assert.Equal(t, "sdk", obj["story"])
}

func TestGenAI_StreamDegradesToSingleFinalChunk(t *testing.T) {
	srv := newVendorServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"a\":1}"}]}}]}`))
	})

	c, err := NewGenAI(Config{Credential: "AIza-sdk", BaseURL: srv.URL + "/", HTTPClient: srv.Client()})
	require.NoError(t, err)

	var calls []string
	var finals int
	obj, err := c.GenerateStream(context.Background(), "p", "s", func(fragment string, final bool) {
		calls = append(calls, fragment)
		if final {
			finals++
		}
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, float64(1), obj["a"])
	assert.Equal(t, []string{`{"a":1}`}, calls)
	assert.Equal(t, 1, finals)
	assert.False(t, c.Describe().SupportsStreaming)
}

func TestGenAI_ServerError(t *testing.T) {
	srv := newVendorServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	})

	c, err := NewGenAI(Config{Credential: "AIza-bad", BaseURL: srv.URL + "/", HTTPClient: srv.Client()})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "p", "s", Options{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDecodeFailure)
}

func TestGenAI_NoCredential(t *testing.T) {
	c, err := NewGenAI(Config{})
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), "p", "s", Options{})
	assert.ErrorIs(t, err, ErrNoCredential)
	assert.False(t, c.ValidateCredential(context.Background()))
}
