package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

type OpenRouterClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewOpenRouterClient(apiKey, baseURL, model string, logger *zap.Logger) *OpenRouterClient {
	return &OpenRouterClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger,
	}
}

type OpenRouterRequest struct {
	Model       string              `json:"model"`
	Messages    []OpenRouterMessage `json:"messages"`
	Temperature *float64            `json:"temperature,omitempty"`
	MaxTokens   *int                `json:"max_tokens,omitempty"`
	Stream      bool                `json:"stream,omitempty"`
}

type OpenRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type OpenRouterResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Choices []OpenRouterChoice `json:"choices"`
	Usage   OpenRouterUsage    `json:"usage"`
}

type OpenRouterChoice struct {
	Index        int               `json:"index"`
	Message      OpenRouterMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

type OpenRouterUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (c *OpenRouterClient) GenerateResponse(ctx context.Context, messages []Message, options GenerationOptions) (*Response, error) {
	openRouterMessages := make([]OpenRouterMessage, len(messages))
	for i, msg := range messages {
		openRouterMessages[i] = OpenRouterMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	request := OpenRouterRequest{
		Model:    c.model,
		Messages: openRouterMessages,
	}
	if options.Temperature > 0 {
		request.Temperature = &options.Temperature
	}
	if options.MaxTokens > 0 {
		request.MaxTokens = &options.MaxTokens
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации запроса: %w", err)
	}

	c.logger.Debug("отправляем запрос к OpenRouter",
		zap.String("model", request.Model),
		zap.Int("messages_count", len(messages)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания HTTP запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка отправки запроса к OpenRouter: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("ошибка API OpenRouter",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response_body", string(body)))
		return nil, fmt.Errorf("ошибка OpenRouter API (статус %d): %s", resp.StatusCode, ErrorMessage(body))
	}

	var openRouterResp OpenRouterResponse
	if err := json.Unmarshal(body, &openRouterResp); err != nil {
		return nil, fmt.Errorf("ошибка десериализации ответа: %w", err)
	}

	if len(openRouterResp.Choices) == 0 {
		// OpenRouter иногда возвращает 200 с объектом error
		if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
			return nil, fmt.Errorf("ошибка OpenRouter API: %s", msg.String())
		}
		return nil, fmt.Errorf("пустой ответ от OpenRouter")
	}

	choice := openRouterResp.Choices[0]

	c.logger.Info("получен ответ от OpenRouter",
		zap.String("model", openRouterResp.Model),
		zap.Int("total_tokens", openRouterResp.Usage.TotalTokens),
		zap.Duration("duration", time.Since(start)),
		zap.Int("content_length", len(choice.Message.Content)))

	return &Response{
		Content:      choice.Message.Content,
		Model:        openRouterResp.Model,
		FinishReason: choice.FinishReason,
		Usage: Usage{
			PromptTokens:     openRouterResp.Usage.PromptTokens,
			CompletionTokens: openRouterResp.Usage.CompletionTokens,
			TotalTokens:      openRouterResp.Usage.TotalTokens,
		},
	}, nil
}

func (c *OpenRouterClient) GetName() string {
	return "OpenRouter"
}

// ErrorMessage достает текст ошибки из тела ответа провайдера
func ErrorMessage(body []byte) string {
	for _, path := range []string{"error.message", "error", "message"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.Type == gjson.String {
			return v.String()
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
