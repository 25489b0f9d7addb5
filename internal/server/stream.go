package server

import (
	"fmt"
	"image"
	"image/color"
	"net/http"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/roshambo/internal/gesture"
)

// DefaultStreamInterval paces the MJPEG stream at roughly 15 FPS.
const DefaultStreamInterval = 66 * time.Millisecond

// FrameSource provides the most recent camera frame. The caller closes the
// returned Mat.
type FrameSource interface {
	Snapshot() (gocv.Mat, bool)
}

// StreamHandler serves MJPEG frames with the current move drawn on top.
// Frames come from the detection session, so the stream never reads the
// camera itself.
type StreamHandler struct {
	frames   FrameSource
	move     func() gesture.Label
	interval time.Duration
}

// NewStreamHandler creates a StreamHandler. move may be nil to skip the
// overlay.
func NewStreamHandler(frames FrameSource, move func() gesture.Label) *StreamHandler {
	return &StreamHandler{frames: frames, move: move, interval: DefaultStreamInterval}
}

var overlayColor = color.RGBA{G: 255, A: 255}

// ServeHTTP streams MJPEG frames until the client goes away.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		buf, ok := h.encode()
		if !ok {
			continue
		}

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(buf))
		_, err := w.Write(buf)
		fmt.Fprintf(w, "\r\n")
		if err != nil {
			return
		}

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

// encode grabs a frame, draws the overlay and returns it as JPEG.
func (h *StreamHandler) encode() ([]byte, bool) {
	frame, ok := h.frames.Snapshot()
	if !ok {
		return nil, false
	}
	defer frame.Close()

	if h.move != nil {
		gocv.PutText(&frame, "Move: "+h.move().String(), image.Pt(10, 30),
			gocv.FontHersheySimplex, 1, overlayColor, 2)
	}

	buf, err := gocv.IMEncode(".jpg", frame)
	if err != nil {
		return nil, false
	}
	defer buf.Close()

	// GetBytes aliases native memory released by Close.
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, true
}
