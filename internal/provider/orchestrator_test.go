package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResult struct {
	obj map[string]any
	err error
}

// fakeProvider replays scripted results; the last one repeats.
type fakeProvider struct {
	info        Info
	results     []fakeResult
	calls       int
	streamCalls int
	valid       bool
}

func (f *fakeProvider) next() (map[string]any, error) {
	i := f.calls + f.streamCalls - 1
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	if i < 0 {
		return map[string]any{}, nil
	}
	return f.results[i].obj, f.results[i].err
}

func (f *fakeProvider) Generate(ctx context.Context, prompt, system string, opts Options) (map[string]any, error) {
	f.calls++
	return f.next()
}

func (f *fakeProvider) GenerateStream(ctx context.Context, prompt, system string, onChunk ChunkFunc, opts Options) (map[string]any, error) {
	f.streamCalls++
	obj, err := f.next()
	if err == nil {
		onChunk("x", false)
		onChunk("", true)
	}
	return obj, err
}

func (f *fakeProvider) ValidateCredential(ctx context.Context) bool { return f.valid }
func (f *fakeProvider) Describe() Info                              { return f.info }

func decodeFail() fakeResult {
	return fakeResult{err: fmt.Errorf("fake: %w", ErrDecodeFailure)}
}

func TestOrchestrator_NoActiveProvider(t *testing.T) {
	o := NewOrchestrator(nil)
	_, err := o.Generate(context.Background(), "p", "s", Options{})
	assert.ErrorIs(t, err, ErrNoActiveProvider)
}

func TestOrchestrator_RetriesDecodeFailure(t *testing.T) {
	f := &fakeProvider{results: []fakeResult{decodeFail(), decodeFail(), {obj: map[string]any{"ok": true}}}}
	o := NewOrchestrator(nil)
	o.SetProvider(f)

	obj, err := o.Generate(context.Background(), "p", "s", Options{})
	require.NoError(t, err)
	assert.Equal(t, true, obj["ok"])
	assert.Equal(t, 3, f.calls)
}

func TestOrchestrator_RetryBoundIsTwoExtraAttempts(t *testing.T) {
	f := &fakeProvider{results: []fakeResult{decodeFail()}}
	o := NewOrchestrator(nil)
	o.SetProvider(f)

	_, err := o.Generate(context.Background(), "p", "s", Options{})
	assert.ErrorIs(t, err, ErrDecodeFailure)
	assert.Equal(t, 3, f.calls)
}

func TestOrchestrator_TransportErrorsAreNotRetried(t *testing.T) {
	for name, err := range map[string]error{
		"http": &HTTPError{Provider: "fake", StatusCode: 500, Body: "boom"},
		"auth": authError("fake"),
		"net":  errors.New("connection refused"),
	} {
		t.Run(name, func(t *testing.T) {
			f := &fakeProvider{results: []fakeResult{{err: err}}}
			o := NewOrchestrator(nil)
			o.SetProvider(f)

			_, got := o.Generate(context.Background(), "p", "s", Options{})
			assert.ErrorIs(t, got, err)
			assert.Equal(t, 1, f.calls)
		})
	}
}

func TestOrchestrator_StreamingSelection(t *testing.T) {
	onChunk := func(string, bool) {}

	tests := []struct {
		name       string
		streaming  bool
		onChunk    ChunkFunc
		wantStream int
		wantPlain  int
	}{
		{"off without callback", false, nil, 0, 1},
		{"off with callback", false, onChunk, 0, 1},
		{"on without callback", true, nil, 0, 1},
		{"on with callback", true, onChunk, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeProvider{results: []fakeResult{{obj: map[string]any{}}}}
			o := NewOrchestrator(nil)
			o.SetProvider(f)
			o.SetStreamingEnabled(tt.streaming)

			_, err := o.Generate(context.Background(), "p", "s", Options{OnChunk: tt.onChunk})
			require.NoError(t, err)
			assert.Equal(t, tt.wantStream, f.streamCalls)
			assert.Equal(t, tt.wantPlain, f.calls)
		})
	}
}

func TestOrchestrator_SetMaxDecodeRetries(t *testing.T) {
	f := &fakeProvider{results: []fakeResult{decodeFail()}}
	o := NewOrchestrator(nil)
	o.SetProvider(f)
	o.SetMaxDecodeRetries(0)

	_, err := o.Generate(context.Background(), "p", "s", Options{})
	assert.ErrorIs(t, err, ErrDecodeFailure)
	assert.Equal(t, 1, f.calls)
}

func TestOrchestrator_UseFailureClearsActive(t *testing.T) {
	o := NewOrchestrator(nil)
	_, err := o.Use("sk-ant-XXXX", Overrides{})
	require.NoError(t, err)
	require.NotNil(t, o.Active())

	_, err = o.Use("sk-ant-XXXX", Overrides{Provider: "nope"})
	require.Error(t, err)
	assert.Nil(t, o.Active())
}

func TestOrchestrator_RequiredKeysRetryOverHTTP(t *testing.T) {
	var hits int32
	srv := newVendorServer(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		if n == 1 {
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"options\":[]}"}}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"story\":\"ok\",\"options\":[]}"}}]}`))
	})

	r := NewRegistry()
	r.SetDefaults(Config{HTTPClient: srv.Client()})
	o := NewOrchestrator(r)
	_, err := o.Use("sk-test", Overrides{BaseURL: srv.URL})
	require.NoError(t, err)

	obj, err := o.Generate(context.Background(), "p", "s", Options{Require: []string{"story"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", obj["story"])
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

func TestOrchestrator_Probe(t *testing.T) {
	a := &fakeProvider{info: Info{Name: "a"}, valid: true}
	b := &fakeProvider{info: Info{Name: "b"}, valid: false}
	c := &fakeProvider{info: Info{Name: "c"}, valid: true}

	results := NewOrchestrator(nil).Probe(context.Background(), a, b, c)
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].Info.Name)
	assert.True(t, results[0].Reachable)
	assert.False(t, results[1].Reachable)
	assert.True(t, results[2].Reachable)
}

func TestOrchestrator_CancelledContext(t *testing.T) {
	f := &fakeProvider{results: []fakeResult{{obj: map[string]any{}}}}
	o := NewOrchestrator(nil)
	o.SetProvider(f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.Generate(ctx, "p", "s", Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.calls)
}
