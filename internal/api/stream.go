package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cattern/rovercam/internal/encoders"
)

// frameWait bounds how long streaming handlers wait for a frame before
// giving up (snapshot) or re-checking the client (MJPEG).
const frameWait = 2 * time.Second

// mjpegBoundary separates parts in the multipart preview stream.
const mjpegBoundary = "frame"

// handleSnapshot serves the current frame as a single JPEG.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	frame, ok := s.opts.Buffer.Get(frameWait)
	if !ok {
		http.Error(w, "no frame available", http.StatusServiceUnavailable)
		return
	}

	quality := encoders.DefaultJPEGQuality
	if q := r.URL.Query().Get("quality"); q != "" {
		if n, err := strconv.Atoi(q); err == nil {
			quality = n
		}
	}

	data, err := encoders.EncodeJPEG(frame, quality)
	if err != nil {
		s.logger.Error("Snapshot encode failed", "error", err)
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(data)
}

// handleMJPEG serves the low-latency browser preview: a multipart
// stream of JPEG frames. Each client gets its own encode loop reading
// the shared frame buffer.
func (s *Server) handleMJPEG(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "close")

	s.logger.Info("MJPEG client connected", "remote", r.RemoteAddr)
	defer s.logger.Info("MJPEG client disconnected", "remote", r.RemoteAddr)

	var lastSeq uint64
	for {
		select {
		case <-r.Context().Done():
			return
		default:
		}

		frame, ok := s.opts.Buffer.Get(frameWait)
		if !ok {
			// Camera down or mid-switch; keep the connection and wait for
			// frames to resume.
			continue
		}
		if frame.Seq == lastSeq {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		lastSeq = frame.Seq

		data, err := encoders.EncodeJPEG(frame, encoders.DefaultJPEGQuality)
		if err != nil {
			s.logger.Warn("MJPEG encode failed", "error", err)
			continue
		}

		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(data)); err != nil {
			return
		}
		if _, err := w.Write(data); err != nil {
			return
		}
		if _, err := fmt.Fprint(w, "\r\n"); err != nil {
			return
		}
		flusher.Flush()
	}
}
