package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"tutor-gateway/internal/auth"
	"tutor-gateway/internal/domain"
	"tutor-gateway/internal/usecase"
)

const (
	maxMultipartMemory = 16 << 20
	maxAudioBytes      = 20 << 20
	historyPageSize    = 50
)

type AskUseCase interface {
	Ask(ctx context.Context, in usecase.AskInput, sink usecase.Sink) error
}

// HistoryReader serves the persisted-history read path. Nil when no storage
// backend is configured.
type HistoryReader interface {
	ListTurns(ctx context.Context, owner, conversationID string, limit int) ([]domain.Turn, error)
}

type Handler struct {
	ask     AskUseCase
	history HistoryReader
	logger  *slog.Logger
}

func NewHandler(ask AskUseCase, history HistoryReader, logger *slog.Logger) (*Handler, error) {
	if ask == nil {
		return nil, errors.New("handler: ask use case must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{ask: ask, history: history, logger: logger}, nil
}

// Routes registers the inbound surface on the given router.
func (h *Handler) Routes(r *mux.Router) {
	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/ask", h.handleAsk).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/conversations/{conversationId}/messages", h.handleHistory).
		Methods(http.MethodGet, http.MethodOptions)
}

type askResponse struct {
	ConversationID string `json:"conversationId"`
	Transcript     string `json:"transcript"`
	Text           string `json:"text"`
	AudioBase64    string `json:"audioBase64"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type historyMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type historyResponse struct {
	ConversationID string           `json:"conversationId"`
	Messages       []historyMessage `json:"messages"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	// Mode is negotiated once, before any provider call.
	stream := wantsStream(r)

	in, err := h.decodeAskRequest(r)
	if err != nil {
		// Undecodable bodies yield empty fields; the validation gate then
		// reports the first missing field deterministically.
		h.logger.Warn("request decode failed", "err", err)
	}
	in.Stream = stream
	in.VerifiedUID = auth.IdentityFromContext(r.Context())

	if stream {
		h.serveStreaming(w, r, in)
		return
	}

	sink := &bufferedSink{}
	if err := h.ask.Ask(r.Context(), in, sink); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sink.response())
}

func (h *Handler) serveStreaming(w http.ResponseWriter, r *http.Request, in usecase.AskInput) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, newHandlerError("streaming unsupported by transport"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sink := &sseSink{w: w, flusher: flusher}
	if err := h.ask.Ask(r.Context(), in, sink); err != nil {
		kind, message, status := classify(err)
		// The status can only change while no frame has been written yet;
		// afterwards the error travels solely as a terminal frame.
		if !sink.wrote {
			w.WriteHeader(status)
		}
		if emitErr := sink.Emit(r.Context(), domain.Frame{
			Type:      domain.FrameError,
			ErrorKind: string(kind),
			Message:   message,
		}); emitErr != nil {
			h.logger.Warn("terminal error frame write failed", "err", emitErr)
		}
	}
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	owner := auth.IdentityFromContext(r.Context())
	if owner == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{
			Error:   string(usecase.KindUnauthenticated),
			Message: "A verified identity is required to read conversation history.",
		})
		return
	}
	if h.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error:   string(usecase.KindProcessingFailed),
			Message: "History storage is not configured.",
		})
		return
	}

	conversationID := mux.Vars(r)["conversationId"]
	turns, err := h.history.ListTurns(r.Context(), owner, conversationID, historyPageSize)
	if err != nil {
		h.logger.Error("history read failed", "conversationId", conversationID, "err", err)
		h.writeError(w, err)
		return
	}

	out := historyResponse{ConversationID: conversationID, Messages: make([]historyMessage, 0, len(turns))}
	for _, t := range turns {
		out.Messages = append(out.Messages, historyMessage{
			Role:      t.Role,
			Content:   t.Content,
			CreatedAt: t.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// decodeAskRequest reads either a JSON body or a multipart form into an
// AskInput. Only the multipart form can carry audio.
func (h *Handler) decodeAskRequest(r *http.Request) (usecase.AskInput, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		return h.decodeMultipart(r)
	}

	var req struct {
		ConversationID string               `json:"conversationId"`
		SpeakLanguage  string               `json:"speakLanguage"`
		AnswerLanguage string               `json:"answerLanguage"`
		UID            string               `json:"uid"`
		Text           string               `json:"text"`
		History        []domain.ChatMessage `json:"history"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return usecase.AskInput{}, err
	}
	return usecase.AskInput{
		ConversationID: req.ConversationID,
		SpeakLanguage:  req.SpeakLanguage,
		AnswerLanguage: req.AnswerLanguage,
		UID:            req.UID,
		Text:           req.Text,
		History:        req.History,
	}, nil
}

func (h *Handler) decodeMultipart(r *http.Request) (usecase.AskInput, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return usecase.AskInput{}, err
	}

	in := usecase.AskInput{
		ConversationID: r.FormValue("conversationId"),
		SpeakLanguage:  r.FormValue("speakLanguage"),
		AnswerLanguage: r.FormValue("answerLanguage"),
		UID:            r.FormValue("uid"),
		Text:           r.FormValue("text"),
	}

	if raw := r.FormValue("history"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.History); err != nil {
			// Malformed history is dropped rather than failing the turn.
			h.logger.Warn("history field is not a JSON array, ignoring", "err", err)
			in.History = nil
		}
	}

	file, header, err := r.FormFile("audio")
	if err == nil {
		defer func() { _ = file.Close() }()
		data, readErr := io.ReadAll(io.LimitReader(file, maxAudioBytes))
		if readErr != nil {
			return in, readErr
		}
		in.Audio = data
		in.AudioFilename = header.Filename
	} else if !errors.Is(err, http.ErrMissingFile) {
		return in, err
	}
	return in, nil
}

// wantsStream reports whether the caller negotiated streaming mode, via an
// explicit query flag or the event-stream accept header.
func wantsStream(r *http.Request) bool {
	if v := r.URL.Query().Get("stream"); v != "" {
		b, err := strconv.ParseBool(v)
		return err == nil && b
	}
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	kind, message, status := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "kind", kind, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: string(kind), Message: message})
}

func classify(err error) (usecase.Kind, string, int) {
	var uErr *usecase.Error
	if errors.As(err, &uErr) {
		return uErr.Kind, uErr.UserMessage(), statusForKind(uErr.Kind)
	}
	return usecase.KindProcessingFailed,
		"Something went wrong while processing the request.",
		http.StatusInternalServerError
}

func statusForKind(kind usecase.Kind) int {
	switch kind {
	case usecase.KindUnauthenticated:
		return http.StatusUnauthorized
	case usecase.KindProcessingFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func newHandlerError(reason string) error {
	return &usecase.Error{Kind: usecase.KindProcessingFailed, Reason: reason}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
