package provider

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

// newVendorServer starts a fake vendor endpoint closed at test cleanup.
func newVendorServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func writeSSE(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	for _, e := range events {
		_, _ = w.Write([]byte("data: " + e + "\n\n"))
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// chunkRecorder collects streamed fragments and counts terminal calls.
type chunkRecorder struct {
	fragments []string
	finals    int
}

func (r *chunkRecorder) onChunk(fragment string, final bool) {
	if final {
		r.finals++
		return
	}
	r.fragments = append(r.fragments, fragment)
}
