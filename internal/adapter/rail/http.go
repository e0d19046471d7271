package rail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"p2p-lending-engine/internal/config"
	domain "p2p-lending-engine/internal/domain/transfer"
	"p2p-lending-engine/pkg/logger"
)

const contentType = "application/json"

var _ domain.Rail = (*HTTPRail)(nil)

// HTTPRail talks to a JSON payment gateway. The client timeout bounds every
// call; a timed-out transfer surfaces as an error and is treated as failed.
type HTTPRail struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPRail(cfg config.RailConfig) *HTTPRail {
	return &HTTPRail{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type transferRequest struct {
	Source      string            `json:"source"`
	Destination string            `json:"destination"`
	Amount      decimal.Decimal   `json:"amount"`
	Fee         decimal.Decimal   `json:"fee"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type transferResponse struct {
	ReferenceID string `json:"reference_id"`
	Status      string `json:"status"`
}

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rail returned http %d", e.StatusCode)
	}
	return fmt.Sprintf("rail returned http %d: %s", e.StatusCode, e.Message)
}

func (c *HTTPRail) ExecuteTransfer(ctx context.Context, in domain.Instruction) (domain.RailResult, error) {
	body, err := json.Marshal(transferRequest{
		Source:      in.Source,
		Destination: in.Destination,
		Amount:      in.Amount,
		Fee:         in.Fee,
		Metadata:    in.Metadata,
	})
	if err != nil {
		return domain.RailResult{}, fmt.Errorf("marshal transfer request: %w", err)
	}
	key := in.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	var out transferResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/transfers", body, key, &out); err != nil {
		return domain.RailResult{}, err
	}
	st, err := parseStatus(out.Status)
	if err != nil {
		return domain.RailResult{}, err
	}
	logger.CtxInfo(ctx, "rail accepted transfer",
		slog.String("idempotency_key", key),
		slog.String("reference_id", out.ReferenceID),
		slog.String("status", string(st)))
	return domain.RailResult{ReferenceID: out.ReferenceID, Status: st}, nil
}

func (c *HTTPRail) TransferStatus(ctx context.Context, referenceID string) (domain.Status, error) {
	var out transferResponse
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/transfers/"+url.PathEscape(referenceID), nil, "", &out); err != nil {
		return "", err
	}
	return parseStatus(out.Status)
}

func (c *HTTPRail) do(ctx context.Context, method, endpoint string, body []byte, idempotencyKey string, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return fmt.Errorf("build rail request: %w", err)
	}
	req.Header.Set("Accept", contentType)
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if tid := logger.GetTraceID(ctx); tid != "" {
		req.Header.Set("X-Request-Id", tid)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.CtxError(ctx, "rail request failed", err, slog.String("method", method), slog.String("url", endpoint))
		return fmt.Errorf("rail request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.CtxError(ctx, "failed to close rail response body", cerr)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read rail response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{}
		// the body is optional on errors
		_ = json.Unmarshal(raw, apiErr)
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode rail response: %w", err)
	}
	return nil
}

func parseStatus(s string) (domain.Status, error) {
	switch strings.ToLower(s) {
	case "pending", "processing", "accepted":
		return domain.StatusPending, nil
	case "completed", "succeeded", "success":
		return domain.StatusCompleted, nil
	case "failed", "rejected":
		return domain.StatusFailed, nil
	case "cancelled", "canceled", "reversed":
		return domain.StatusCancelled, nil
	}
	return "", fmt.Errorf("unknown rail status %q", s)
}
