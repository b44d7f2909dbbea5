// ABOUTME: Response builders for the chat-completion wire format
// ABOUTME: Plain and streamed renderings carry byte-identical reply text

package openaiapi

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
)

// newCompletionID generates a chat-completion identifier in the protocol's
// customary "chatcmpl-" shape.
func newCompletionID() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// buildCompletion renders the single-shot response object.
func buildCompletion(completionID, content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		ID:      completionID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   ModelID,
		Choices: []openai.ChatCompletionChoice{
			{
				Index: 0,
				Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: content,
				},
				FinishReason: openai.FinishReasonStop,
			},
		},
		Usage: openai.Usage{},
	}
}

// buildStreamChunks renders the two-frame streaming emulation: one delta
// chunk carrying the whole reply, then a terminal stop chunk.
func buildStreamChunks(completionID, content string) (openai.ChatCompletionStreamResponse, openai.ChatCompletionStreamResponse) {
	created := time.Now().Unix()

	first := openai.ChatCompletionStreamResponse{
		ID:      completionID,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   ModelID,
		Choices: []openai.ChatCompletionStreamChoice{
			{
				Index: 0,
				Delta: openai.ChatCompletionStreamChoiceDelta{
					Role:    openai.ChatMessageRoleAssistant,
					Content: content,
				},
			},
		},
	}

	final := openai.ChatCompletionStreamResponse{
		ID:      completionID,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   ModelID,
		Choices: []openai.ChatCompletionStreamChoice{
			{
				Index:        0,
				Delta:        openai.ChatCompletionStreamChoiceDelta{},
				FinishReason: openai.FinishReasonStop,
			},
		},
	}

	return first, final
}

// streamError is the error-typed chunk emitted when a stream fails after
// headers have been flushed.
type streamError struct {
	ID     string            `json:"id"`
	Object string            `json:"object"`
	Error  streamErrorDetail `json:"error"`
}

type streamErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// buildStreamError renders an error-typed chunk.
func buildStreamError(completionID, message, errType string) streamError {
	return streamError{
		ID:     completionID,
		Object: "error",
		Error: streamErrorDetail{
			Message: message,
			Type:    errType,
		},
	}
}
