package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/roshambo/internal/gesture"
)

type fakeFrames struct {
	ok    bool
	calls atomic.Int32
}

func (f *fakeFrames) Snapshot() (gocv.Mat, bool) {
	f.calls.Add(1)
	if !f.ok {
		return gocv.Mat{}, false
	}
	return gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3), true
}

func serveStream(t *testing.T, h *StreamHandler, d time.Duration) *httptest.ResponseRecorder {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStreamHandler_WritesJPEGParts(t *testing.T) {
	if testing.Short() {
		t.Skip("needs OpenCV")
	}

	frames := &fakeFrames{ok: true}
	h := NewStreamHandler(frames, func() gesture.Label { return gesture.Paper })
	h.interval = 5 * time.Millisecond

	rec := serveStream(t, h, 100*time.Millisecond)

	assert.Equal(t, "multipart/x-mixed-replace; boundary=frame", rec.Header().Get("Content-Type"))
	body := rec.Body.Bytes()
	require.True(t, bytes.HasPrefix(body, []byte("--frame\r\nContent-Type: image/jpeg\r\n")))
	// JPEG start-of-image marker follows the part header.
	assert.Contains(t, string(body), "\r\n\r\n\xff\xd8")
	assert.Greater(t, bytes.Count(body, []byte("--frame")), 1)
}

func TestStreamHandler_NoFrames(t *testing.T) {
	frames := &fakeFrames{}
	h := NewStreamHandler(frames, nil)
	h.interval = 5 * time.Millisecond

	rec := serveStream(t, h, 50*time.Millisecond)

	assert.Empty(t, rec.Body.Bytes())
	assert.Positive(t, frames.calls.Load())
}
