// Package protocol defines the wire format for the TinyChat streaming API.
// Every frame is serialized as one SSE data line; clients only ever see
// the JSON shapes defined here.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Frame is a single SSE payload sent to the client. Exactly one of the
// fields is set per frame, except image frames which carry a data URI
// together with a caption.
type Frame struct {
	Content   string `json:"content,omitempty"`
	RLMStatus string `json:"rlm_status,omitempty"`
	Image     string `json:"image,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ContentFrame carries a chunk of renderable text.
func ContentFrame(s string) Frame {
	return Frame{Content: s}
}

// StatusFrame carries a terse RLM heartbeat, shown instead of the full
// transcript when thinking is hidden.
func StatusFrame(s string) Frame {
	return Frame{RLMStatus: s}
}

// ErrorFrame is terminal; no further frames follow it on a stream.
func ErrorFrame(s string) Frame {
	return Frame{Error: s}
}

// ImageFrame carries a generated image as a data URI plus a caption.
func ImageFrame(dataURI, caption string) Frame {
	return Frame{Image: dataURI, Content: caption}
}

// IsError reports whether the frame terminates the stream with an error.
func (f Frame) IsError() bool { return f.Error != "" }

// Encode renders the frame as an SSE data line ("data: {...}\n\n").
func (f Frame) Encode() []byte {
	b, err := json.Marshal(f)
	if err != nil {
		// Frame fields are plain strings; marshal cannot fail in practice.
		return []byte("data: {}\n\n")
	}
	return []byte(fmt.Sprintf("data: %s\n\n", b))
}
