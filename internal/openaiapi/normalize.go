// ABOUTME: Request normalization for the chat-completion endpoint
// ABOUTME: Splits OpenAI message lists into history plus one current prompt

package openaiapi

import (
	"net"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// messageText extracts usable text from a message: either the plain content
// string or the concatenated text parts of multi-part content.
func messageText(msg openai.ChatCompletionMessage) string {
	if text := strings.TrimSpace(msg.Content); text != "" {
		return text
	}

	var parts []string
	for _, part := range msg.MultiContent {
		if part.Type != openai.ChatMessagePartTypeText {
			continue
		}
		if text := strings.TrimSpace(part.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

// normalizeMessages converts the request's message list into (history,
// prompt). The prompt is the last user-role message; everything before it
// is history. When no user message exists, the last message overall becomes
// the prompt. Messages with unknown roles or no extractable text are
// dropped; the "developer" role is treated as "system".
func normalizeMessages(msgs []openai.ChatCompletionMessage) ([]openai.ChatCompletionMessage, string) {
	normalized := make([]openai.ChatCompletionMessage, 0, len(msgs))

	for _, raw := range msgs {
		role := strings.ToLower(strings.TrimSpace(raw.Role))
		if role == "developer" {
			role = openai.ChatMessageRoleSystem
		}
		switch role {
		case openai.ChatMessageRoleSystem, openai.ChatMessageRoleUser, openai.ChatMessageRoleAssistant:
		default:
			continue
		}

		text := messageText(raw)
		if text == "" {
			continue
		}

		normalized = append(normalized, openai.ChatCompletionMessage{Role: role, Content: text})
	}

	if len(normalized) == 0 {
		return nil, ""
	}

	for i := len(normalized) - 1; i >= 0; i-- {
		if normalized[i].Role == openai.ChatMessageRoleUser {
			return normalized[:i], normalized[i].Content
		}
	}

	return normalized[:len(normalized)-1], normalized[len(normalized)-1].Content
}

// chatIDFor derives a stable chat key for session continuity: the request's
// user field, then conversation headers, then the caller's network address.
func chatIDFor(r *http.Request, req *openai.ChatCompletionRequest) string {
	if user := strings.TrimSpace(req.User); user != "" {
		return user
	}

	for _, header := range []string{"X-Conversation-Id", "X-Session-Id", "X-Chat-Id"} {
		if value := strings.TrimSpace(r.Header.Get(header)); value != "" {
			return value
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		host = "http-client"
	}
	return "http:" + host
}
