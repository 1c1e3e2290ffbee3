package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"tutor-gateway/internal/domain"
)

// bufferedSink collapses the frame sequence into one JSON response body. It
// only cares about the audio and done frames; deltas are already contained
// in the done frame's full text.
type bufferedSink struct {
	audioBase64 string
	done        domain.Frame
}

func (s *bufferedSink) Emit(_ context.Context, frame domain.Frame) error {
	switch frame.Type {
	case domain.FrameAudio:
		s.audioBase64 = frame.AudioBase64
	case domain.FrameDone:
		s.done = frame
	}
	return nil
}

func (s *bufferedSink) response() askResponse {
	return askResponse{
		ConversationID: s.done.ConversationID,
		Transcript:     s.done.Transcript,
		Text:           s.done.Text,
		AudioBase64:    s.audioBase64,
	}
}

// sseSink writes every frame as a server-sent event and flushes immediately,
// so deltas reach the caller at least as fast as they arrive.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	wrote   bool
}

func (s *sseSink) Emit(_ context.Context, frame domain.Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.wrote = true
	s.flusher.Flush()
	return nil
}
