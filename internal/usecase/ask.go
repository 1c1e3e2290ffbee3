package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"time"

	"tutor-gateway/internal/domain"
)

const (
	defaultHistoryWindow = 12
	defaultAudioFilename = "audio.webm"

	// Payloads below this size are presumed empty or silent recordings and
	// are treated as absent input rather than sent for transcription.
	minAudioBytes = 1024
)

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
	ChatStream(ctx context.Context, model string, messages []domain.ChatMessage) (<-chan domain.StreamChunk, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, model string, in domain.AudioInput) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, model, voice, text string) ([]byte, error)
}

// TurnStore persists completed turn pairs. All writes are best-effort from
// the caller's point of view: failures are logged, never surfaced.
type TurnStore interface {
	TouchConversation(ctx context.Context, owner, conversationID string) error
	AppendTurn(ctx context.Context, owner, conversationID string, turn domain.Turn) error
}

// Sink receives response frames. Buffered and streaming modes run the same
// orchestration and differ only in the sink implementation.
type Sink interface {
	Emit(ctx context.Context, frame domain.Frame) error
}

type AskInput struct {
	ConversationID string
	SpeakLanguage  string
	AnswerLanguage string
	UID            string // caller-declared owner identity
	VerifiedUID    string // identity attached by the auth layer, "" when anonymous
	Text           string
	Audio          []byte
	AudioFilename  string
	History        []domain.ChatMessage
	Stream         bool
}

type Config struct {
	ChatModel       string
	STTModel        string
	TTSModel        string
	TTSVoice        string
	HistoryWindow   int
	CleanTranscript bool
}

// AskService orchestrates one conversational turn: resolve input, generate a
// reply, then run the best-effort synthesis and persistence tail.
type AskService struct {
	llm    LLMClient
	stt    Transcriber
	tts    Synthesizer
	store  TurnStore // nil disables persistence
	cfg    Config
	logger *slog.Logger
}

func NewAskService(llm LLMClient, stt Transcriber, tts Synthesizer, store TurnStore, cfg Config, logger *slog.Logger) (*AskService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if stt == nil {
		return nil, errors.New("usecase: transcriber must not be nil")
	}
	if tts == nil {
		return nil, errors.New("usecase: synthesizer must not be nil")
	}
	if strings.TrimSpace(cfg.ChatModel) == "" {
		return nil, errors.New("usecase: chat model must not be empty")
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaultHistoryWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AskService{
		llm:    llm,
		stt:    stt,
		tts:    tts,
		store:  store,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Ask runs the full turn against the given sink. A non-nil return value is a
// request-level failure; the caller decides how to surface it (status code or
// terminal error frame). Synthesis and persistence failures never produce a
// non-nil return.
func (s *AskService) Ask(ctx context.Context, in AskInput, sink Sink) error {
	if err := validateInput(in); err != nil {
		return err
	}

	transcript, err := s.resolveInput(ctx, in)
	if err != nil {
		return err
	}

	messages := buildChatMessages(in.AnswerLanguage, in.History, s.cfg.HistoryWindow, transcript)

	var answer string
	if in.Stream {
		answer, err = s.streamAnswer(ctx, messages, sink)
	} else {
		answer, err = s.llm.Chat(ctx, s.cfg.ChatModel, messages)
		if err != nil {
			err = mapProviderError("generation_failed", err)
		}
	}
	if err != nil {
		return err
	}

	if err := sink.Emit(ctx, domain.Frame{Type: domain.FrameEnd}); err != nil {
		return newError(KindProcessingFailed, "stream_write_failed", err)
	}

	s.synthesize(ctx, answer, sink)
	s.persist(ctx, in, transcript, answer)

	done := domain.Frame{
		Type:           domain.FrameDone,
		ConversationID: in.ConversationID,
		Transcript:     transcript,
		Text:           answer,
	}
	if err := sink.Emit(ctx, done); err != nil {
		return newError(KindProcessingFailed, "stream_write_failed", err)
	}
	return nil
}

// validateInput is the ordered, short-circuiting validation gate. It runs
// before any provider call.
func validateInput(in AskInput) *Error {
	if strings.TrimSpace(in.ConversationID) == "" {
		return newError(KindMissingConversation, "missing_conversation_id", nil)
	}
	if strings.TrimSpace(in.SpeakLanguage) == "" || strings.TrimSpace(in.AnswerLanguage) == "" {
		return newError(KindMissingLanguage, "missing_language_selection", nil)
	}
	if in.UID != "" && in.VerifiedUID != "" && in.UID != in.VerifiedUID {
		return newError(KindUnauthenticated, "uid_mismatch", nil)
	}
	if len(in.Audio) < minAudioBytes && strings.TrimSpace(in.Text) == "" {
		return newError(KindNoInput, "no_audio_or_text", nil)
	}
	return nil
}

// resolveInput produces the user's text for this turn: a transcription of a
// qualifying audio payload, otherwise the supplied text.
func (s *AskService) resolveInput(ctx context.Context, in AskInput) (string, error) {
	if len(in.Audio) < minAudioBytes {
		return strings.TrimSpace(in.Text), nil
	}

	filename := in.AudioFilename
	if filename == "" {
		filename = defaultAudioFilename
	}
	transcript, err := s.stt.Transcribe(ctx, s.cfg.STTModel, domain.AudioInput{
		Data:         in.Audio,
		Filename:     filename,
		LanguageHint: languageHint(in.SpeakLanguage),
		Prompt:       transcriptionPrompt(in.SpeakLanguage),
	})
	if err != nil {
		return "", mapProviderError("transcription_failed", err)
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", newError(KindNoInput, "empty_transcript", nil)
	}
	if s.cfg.CleanTranscript {
		transcript = s.cleanTranscript(ctx, in.SpeakLanguage, transcript)
	}
	return transcript, nil
}

// cleanTranscript asks the generation provider to repair obvious
// transcription mistakes, keeping the original text when the pass fails or
// comes back empty.
func (s *AskService) cleanTranscript(ctx context.Context, speakLanguage, transcript string) string {
	cleaned, err := s.llm.Chat(ctx, s.cfg.ChatModel, buildCleanupMessages(speakLanguage, transcript))
	if err != nil {
		s.logger.Warn("transcript cleanup failed, keeping original", "err", err)
		return transcript
	}
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return transcript
	}
	return cleaned
}

// streamAnswer forwards every delta to the sink as it arrives and returns
// the full concatenated text.
func (s *AskService) streamAnswer(ctx context.Context, messages []domain.ChatMessage, sink Sink) (string, error) {
	chunks, err := s.llm.ChatStream(ctx, s.cfg.ChatModel, messages)
	if err != nil {
		return "", mapProviderError("generation_failed", err)
	}

	var full strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			return "", mapProviderError("generation_failed", chunk.Err)
		}
		if chunk.Delta == "" {
			continue
		}
		full.WriteString(chunk.Delta)
		if err := sink.Emit(ctx, domain.Frame{Type: domain.FrameDelta, Delta: chunk.Delta}); err != nil {
			return "", newError(KindProcessingFailed, "stream_write_failed", err)
		}
	}
	return full.String(), nil
}

// synthesize attempts speech synthesis once. Success emits an audio frame;
// failure emits a warning frame and degrades to "no audio".
func (s *AskService) synthesize(ctx context.Context, text string, sink Sink) {
	audio, err := s.tts.Synthesize(ctx, s.cfg.TTSModel, s.cfg.TTSVoice, text)
	if err != nil {
		s.logger.Warn("speech synthesis failed", "err", err)
		_ = sink.Emit(ctx, domain.Frame{Type: domain.FrameWarning, Warning: "synthesis_failed"})
		return
	}
	_ = sink.Emit(ctx, domain.Frame{
		Type:        domain.FrameAudio,
		AudioBase64: base64.StdEncoding.EncodeToString(audio),
	})
}

// persist writes the completed turn pair under the verified owner. The three
// writes run in a fixed order (touch, user turn, assistant turn) without a
// transaction; each failure is logged and the rest still run.
func (s *AskService) persist(ctx context.Context, in AskInput, transcript, answer string) {
	owner := in.VerifiedUID
	if owner == "" || s.store == nil {
		return
	}

	if err := s.store.TouchConversation(ctx, owner, in.ConversationID); err != nil {
		s.logger.Warn("conversation touch failed",
			"conversationId", in.ConversationID, "err", err)
	}

	now := time.Now().UTC()
	userTurn := domain.Turn{
		Role:           domain.RoleUser,
		Content:        transcript,
		SpeakLanguage:  in.SpeakLanguage,
		AnswerLanguage: in.AnswerLanguage,
		CreatedAt:      now,
	}
	if err := s.store.AppendTurn(ctx, owner, in.ConversationID, userTurn); err != nil {
		s.logger.Warn("user turn write failed",
			"conversationId", in.ConversationID, "err", err)
	}

	assistantTurn := domain.Turn{
		Role:           domain.RoleAssistant,
		Content:        answer,
		SpeakLanguage:  in.SpeakLanguage,
		AnswerLanguage: in.AnswerLanguage,
		// Offset keeps the pair ordered under a timestamp sort key.
		CreatedAt: now.Add(time.Millisecond),
	}
	if err := s.store.AppendTurn(ctx, owner, in.ConversationID, assistantTurn); err != nil {
		s.logger.Warn("assistant turn write failed",
			"conversationId", in.ConversationID, "err", err)
	}
}
