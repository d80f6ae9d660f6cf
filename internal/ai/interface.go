package ai

import (
	"context"
)

// Message представляет сообщение для AI
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response представляет ответ от AI
type Response struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	Usage        Usage  `json:"usage"`
	FinishReason string `json:"finish_reason"`
}

// Usage представляет статистику использования токенов
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerationOptions опции для генерации ответа
type GenerationOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// AIClient интерфейс для работы с AI провайдерами
type AIClient interface {
	// GenerateResponse генерирует ответ на основе сообщений
	GenerateResponse(ctx context.Context, messages []Message, options GenerationOptions) (*Response, error)

	// GetName возвращает название провайдера
	GetName() string
}

const (
	baseSystemPrompt = "Detect user language and respond in the same language. Use Markdown."
	researchSuffix   = " Provide very long scientific analysis."
)

// SystemPrompt возвращает системный промпт. Для глубокого исследования просим развернутый ответ
func SystemPrompt(research bool) string {
	if research {
		return baseSystemPrompt + researchSuffix
	}
	return baseSystemPrompt
}

// BuildMessages собирает запрос из системного промпта и текста пользователя
func BuildMessages(userText string, research bool) []Message {
	return []Message{
		{Role: "system", Content: SystemPrompt(research)},
		{Role: "user", Content: userText},
	}
}
