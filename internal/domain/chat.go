package domain

// Message roles as they appear in conversation history and provider payloads.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the provider-agnostic chat message shape used by the handler
// and LLM integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamChunk is one incremental unit of a streamed generation. A chunk
// carries either a text delta or a terminal error, never both.
type StreamChunk struct {
	Delta string
	Err   error
}

// AudioInput carries a recorded payload plus the hints forwarded to the
// transcription provider.
type AudioInput struct {
	Data         []byte
	Filename     string
	LanguageHint string
	Prompt       string
}
