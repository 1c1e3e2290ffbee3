package domain

// FrameType discriminates the events pushed over a streaming response.
type FrameType string

const (
	// FrameDelta carries one incremental piece of assistant text.
	FrameDelta FrameType = "delta"
	// FrameEnd marks the end of the generated message text.
	FrameEnd FrameType = "end"
	// FrameAudio carries the synthesized speech for the full reply.
	FrameAudio FrameType = "audio"
	// FrameWarning reports a non-fatal failure (e.g. synthesis) without
	// aborting the stream.
	FrameWarning FrameType = "warning"
	// FrameError terminates the stream with a request-level failure.
	FrameError FrameType = "error"
	// FrameDone is the final frame of every successful stream. It carries
	// the resolved transcript and the complete assistant text.
	FrameDone FrameType = "done"
)

// Frame is one discrete unit pushed over a streaming response channel.
// Frames are transient and never persisted.
type Frame struct {
	Type           FrameType `json:"type"`
	Delta          string    `json:"delta,omitempty"`
	AudioBase64    string    `json:"audioBase64,omitempty"`
	Warning        string    `json:"warning,omitempty"`
	ErrorKind      string    `json:"error,omitempty"`
	Message        string    `json:"message,omitempty"`
	ConversationID string    `json:"conversationId,omitempty"`
	Transcript     string    `json:"transcript,omitempty"`
	Text           string    `json:"text,omitempty"`
}
