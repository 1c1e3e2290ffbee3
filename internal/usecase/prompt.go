package usecase

import (
	"fmt"
	"strings"

	"tutor-gateway/internal/domain"
)

// languageCodes maps the language names the front-end offers to the ISO-639
// codes the transcription provider accepts as a hint. Unlisted names simply
// pass no hint.
var languageCodes = map[string]string{
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"dutch":      "nl",
	"polish":     "pl",
	"russian":    "ru",
	"ukrainian":  "uk",
	"turkish":    "tr",
	"arabic":     "ar",
	"hebrew":     "he",
	"chinese":    "zh",
	"japanese":   "ja",
	"korean":     "ko",
	"hindi":      "hi",
	"swedish":    "sv",
	"norwegian":  "no",
	"danish":     "da",
	"finnish":    "fi",
	"czech":      "cs",
	"greek":      "el",
}

func languageHint(name string) string {
	return languageCodes[strings.ToLower(strings.TrimSpace(name))]
}

// transcriptionPrompt biases the speech-to-text provider toward the expected
// speaker and vocabulary. Prompt engineering, not a correctness contract.
func transcriptionPrompt(speakLanguage string) string {
	return fmt.Sprintf(
		"This is a child speaking in %s, usually about school, friends, family or hobbies.",
		strings.TrimSpace(speakLanguage),
	)
}

// buildTutorPrompt is the fixed system instruction, parameterized only by
// the answer language.
func buildTutorPrompt(answerLanguage string) string {
	lang := strings.TrimSpace(answerLanguage)
	return strings.Join([]string{
		"You are a warm, patient language tutor chatting with a young child.",
		fmt.Sprintf("Always answer in %s.", lang),
		"Use simple words and short sentences a child can follow.",
		"Be encouraging and kind; gently rephrase instead of correcting harshly.",
		"Never discuss violence, romance, or any other topic unsuitable for children.",
		"Use the earlier conversation to stay on topic and keep continuity.",
	}, "\n")
}

// buildChatMessages assembles system instruction + trimmed history + the new
// user turn. History is a fixed-size sliding window: the most recent
// maxHistory messages in original order, nothing else.
func buildChatMessages(answerLanguage string, history []domain.ChatMessage, maxHistory int, userText string) []domain.ChatMessage {
	if maxHistory > 0 && len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}

	messages := make([]domain.ChatMessage, 0, len(history)+2)
	messages = append(messages, domain.ChatMessage{
		Role:    domain.RoleSystem,
		Content: buildTutorPrompt(answerLanguage),
	})
	for _, m := range history {
		role := m.Role
		if role != domain.RoleUser && role != domain.RoleAssistant {
			continue
		}
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		messages = append(messages, domain.ChatMessage{Role: role, Content: content})
	}
	messages = append(messages, domain.ChatMessage{
		Role:    domain.RoleUser,
		Content: userText,
	})
	return messages
}

// buildCleanupMessages asks the generation provider to repair obvious
// transcription mistakes without changing the meaning.
func buildCleanupMessages(speakLanguage, transcript string) []domain.ChatMessage {
	instruction := strings.Join([]string{
		"You fix obvious speech-to-text mistakes in short utterances from a child",
		fmt.Sprintf("speaking %s.", strings.TrimSpace(speakLanguage)),
		"Return only the corrected utterance, nothing else.",
		"If the utterance already looks right, return it unchanged.",
	}, " ")
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: instruction},
		{Role: domain.RoleUser, Content: transcript},
	}
}
