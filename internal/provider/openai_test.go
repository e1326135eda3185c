package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAI_Generate_WireFormat(t *testing.T) {
	srv := newVendorServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, openAIMessage{Role: "system", Content: "sys"}, req.Messages[0])
		assert.Equal(t, openAIMessage{Role: "user", Content: "prompt"}, req.Messages[1])
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)
		assert.InDelta(t, 0.3, req.Temperature, 1e-9)
		assert.Equal(t, 512, req.MaxTokens)
		assert.False(t, req.Stream)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"options\":[\"fight\",\"flee\",],}"}}]}`))
	})

	temp := 0.3
	c := NewOpenAI(Config{Credential: "sk-test", BaseURL: srv.URL + "/v1/", HTTPClient: srv.Client()})
	obj, err := c.Generate(context.Background(), "prompt", "sys", Options{Temperature: &temp, MaxOutputTokens: 512})
	require.NoError(t, err)
	assert.Equal(t, []any{"fight", "flee"}, obj["options"])
}

func TestOpenAI_NoSystemInstruction(t *testing.T) {
	srv := newVendorServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	})

	c := NewOpenAI(Config{Credential: "sk-test", BaseURL: srv.URL, HTTPClient: srv.Client()})
	_, err := c.Generate(context.Background(), "prompt", "", Options{})
	require.NoError(t, err)
}

func TestOpenAI_NoCredential(t *testing.T) {
	c := NewOpenAI(Config{})
	_, err := c.Generate(context.Background(), "p", "s", Options{})
	assert.ErrorIs(t, err, ErrNoCredential)
	assert.False(t, c.ValidateCredential(context.Background()))
}

func TestOpenAI_EmptyChoicesIsDecodeFailure(t *testing.T) {
	srv := newVendorServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})

	c := NewOpenAI(Config{Credential: "sk-test", BaseURL: srv.URL, HTTPClient: srv.Client()})
	_, err := c.Generate(context.Background(), "p", "s", Options{})
	assert.ErrorIs(t, err, ErrDecodeFailure)
}

func TestOpenAI_GenerateStream(t *testing.T) {
	srv := newVendorServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		writeSSE(w,
			`{"choices":[{"delta":{"role":"assistant"}}]}`,
			`{"choices":[{"delta":{"content":"{\"story\":"}}]}`,
			`{"choices":[{"delta":{"content":"\"Dawn.\"}"}}]}`,
			`[DONE]`,
			`{"choices":[{"delta":{"content":"ignored after done"}}]}`,
		)
	})

	rec := &chunkRecorder{}
	c := NewOpenAI(Config{Credential: "sk-test", BaseURL: srv.URL, HTTPClient: srv.Client()})
	obj, err := c.GenerateStream(context.Background(), "p", "s", rec.onChunk, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Dawn.", obj["story"])
	assert.Equal(t, []string{`{"story":`, `"Dawn."}`}, rec.fragments)
	assert.Equal(t, 1, rec.finals)
}

func TestOpenAI_Describe(t *testing.T) {
	info := NewOpenAI(Config{}).Describe()
	assert.Equal(t, "openai", info.Name)
	assert.Equal(t, "gpt-4o", info.ModelID)
	assert.Equal(t, "https://api.openai.com/v1", info.BaseURL)
}
