package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// Client обращается к сервису с предобученной моделью (HuBERT-ECG)
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

type embedRequest struct {
	Signal []float64 `json:"signal"`
}

type embedResponse struct {
	LastHiddenState [][]float64 `json:"last_hidden_state"`
}

// NewClient создает клиента сервиса эмбеддингов
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:5002"
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		logger:     logger,
	}
}

// Embed отправляет отведение в сервис и возвращает last_hidden_state
func (c *Client) Embed(ctx context.Context, lead []float64) (*mat.Dense, error) {
	if len(lead) == 0 {
		return nil, ErrEmptyInput
	}

	var result embedResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(embedRequest{Signal: lead}).
		SetResult(&result).
		Post("/embed")
	if err != nil {
		c.logger.Error("Embedding request failed", zap.Error(err))
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	if resp.IsError() {
		c.logger.Error("Embedding service returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", resp.String()),
		)
		return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode(), resp.String())
	}

	hidden, err := toDense(result.LastHiddenState)
	if err != nil {
		return nil, fmt.Errorf("invalid embedding response: %w", err)
	}

	c.logger.Debug("Embedding received",
		zap.Int("samples", len(lead)),
		zap.Int("time_steps", len(result.LastHiddenState)),
	)
	return hidden, nil
}

// HealthCheck проверяет, что сервис модели доступен
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.httpClient.R().SetContext(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("embedding service not reachable: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("embedding service unhealthy: status %d", resp.StatusCode())
	}
	return nil
}

func toDense(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("empty hidden state")
	}

	width := len(rows[0])
	data := make([]float64, 0, len(rows)*width)
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(row), width)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), width, data), nil
}
