package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ai-assistant/internal/ai"

	"go.uber.org/zap"
)

// Generator генерирует изображение по текстовому описанию
type Generator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// Client клиент Hugging Face Inference API
type Client struct {
	modelURL   string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient создает клиент генерации изображений
func NewClient(modelURL, token string, logger *zap.Logger) *Client {
	return &Client{
		modelURL: modelURL,
		token:    token,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger,
	}
}

type request struct {
	Inputs string `json:"inputs"`
}

// Generate возвращает байты изображения
func (c *Client) Generate(ctx context.Context, prompt string) ([]byte, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("пустое описание изображения")
	}

	body, err := json.Marshal(request{Inputs: prompt})
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации запроса: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.modelURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания HTTP запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса генерации изображения: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения изображения: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("ошибка генерации изображения",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response_body", string(data)))
		return nil, fmt.Errorf("ошибка генерации изображения (статус %d): %s", resp.StatusCode, ai.ErrorMessage(data))
	}

	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "application/json") {
		return nil, fmt.Errorf("ошибка генерации изображения: %s", ai.ErrorMessage(data))
	}

	c.logger.Info("изображение сгенерировано",
		zap.Int("size", len(data)),
		zap.Duration("duration", time.Since(start)))

	return data, nil
}
