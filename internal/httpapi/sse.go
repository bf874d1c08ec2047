package httpapi

import (
	"net/http"

	"github.com/tinychat-dev/tinychat/pkg/protocol"
)

type emitFunc func(protocol.Frame) error

// sseWriter prepares w for server-sent events and returns an emitter
// that writes one frame per call, flushing immediately so the client
// sees tokens as they arrive.
func sseWriter(w http.ResponseWriter) (emitFunc, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return func(f protocol.Frame) error {
		if _, err := w.Write(f.Encode()); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}, true
}
