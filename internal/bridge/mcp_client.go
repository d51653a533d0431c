package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"medquery/internal/domain"
	"medquery/internal/repository"
)

// ToolBridge 远端工具调用接口
// Every failure is "unavailable": the orchestrator falls back to local
// computation, it never treats a bridge error as fatal.
type ToolBridge interface {
	CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error)
	PatientGet(ctx context.Context, id, name string) (*domain.PatientRecord, error)
	PatientSearch(ctx context.Context, minAge *int, conditions []string, limit int) ([]domain.PatientRecord, error)
	PatientAggregate(ctx context.Context, minAge *int, conditions []string) ([]repository.MedicationCount, error)
}

// Client 调用 MCP 风格 HTTP 工具服务的客户端
// Tools are plain JSON endpoints: POST {base}/mcp/tool/{name}.
// Session negotiation (the Mcp-Session-Id header) lives entirely here.
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger

	mu        sync.Mutex
	sessionID string
}

func NewClient(baseURL string, headers map[string]string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json, text/event-stream").
		SetHeaders(headers)

	return &Client{httpClient: client, logger: logger}
}

var _ ToolBridge = (*Client)(nil)

// ensureSession prefetches the server-issued session id once and caches
// it. Servers running stateless ignore the header; a missing id is not
// an error.
func (c *Client) ensureSession(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID != "" {
		return c.sessionID
	}
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Accept", "text/event-stream").
		Get("/mcp/health")
	if err != nil {
		return ""
	}
	c.sessionID = resp.Header().Get("Mcp-Session-Id")
	return c.sessionID
}

// CallTool issues one structured tool call and returns the raw result
// payload.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	req := c.httpClient.R().
		SetContext(ctx).
		SetBody(args)
	if sid := c.ensureSession(ctx); sid != "" {
		req.SetHeader("Mcp-Session-Id", sid)
	}

	resp, err := req.Post("/mcp/tool/" + name)
	if err != nil {
		return nil, fmt.Errorf("bridge call %s failed: %w", name, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("bridge call %s returned status %d", name, resp.StatusCode())
	}

	var envelope struct {
		Ok    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return nil, fmt.Errorf("bridge call %s returned malformed response: %w", name, err)
	}
	if !envelope.Ok {
		return nil, fmt.Errorf("bridge call %s rejected: %s", name, envelope.Error)
	}

	c.logger.Debug("bridge tool call succeeded", zap.String("tool", name))
	return resp.Body(), nil
}

func (c *Client) PatientGet(ctx context.Context, id, name string) (*domain.PatientRecord, error) {
	body, err := c.CallTool(ctx, "patient_get", map[string]any{"id": orNil(id), "name": orNil(name)})
	if err != nil {
		return nil, err
	}
	var result struct {
		Patient *domain.PatientRecord `json:"patient"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode patient_get result: %w", err)
	}
	return result.Patient, nil
}

func (c *Client) PatientSearch(ctx context.Context, minAge *int, conditions []string, limit int) ([]domain.PatientRecord, error) {
	args := map[string]any{"limit": limit}
	if minAge != nil {
		args["min_age"] = *minAge
	}
	if len(conditions) > 0 {
		args["conditions"] = conditions
	}
	body, err := c.CallTool(ctx, "patient_search", args)
	if err != nil {
		return nil, err
	}
	var result struct {
		Results []domain.PatientRecord `json:"results"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode patient_search result: %w", err)
	}
	return result.Results, nil
}

func (c *Client) PatientAggregate(ctx context.Context, minAge *int, conditions []string) ([]repository.MedicationCount, error) {
	args := map[string]any{}
	if minAge != nil {
		args["min_age"] = *minAge
	}
	if len(conditions) > 0 {
		args["conditions"] = conditions
	}
	body, err := c.CallTool(ctx, "patient_aggregate", args)
	if err != nil {
		return nil, err
	}
	var result struct {
		Aggregates []repository.MedicationCount `json:"aggregates"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode patient_aggregate result: %w", err)
	}
	return result.Aggregates, nil
}

// ListTools returns the names of the tools the remote server exposes.
func (c *Client) ListTools(ctx context.Context) ([]string, error) {
	var result struct {
		Tools []string `json:"tools"`
	}
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/mcp/tools")
	if err != nil {
		return nil, fmt.Errorf("bridge tool listing failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("bridge tool listing returned status %d", resp.StatusCode())
	}
	return result.Tools, nil
}

// Health reports bridge reachability and record count, used by the
// health endpoint.
func (c *Client) Health(ctx context.Context) (int, error) {
	var result struct {
		Status    string `json:"status"`
		DBRecords int    `json:"db_records"`
	}
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/mcp/health")
	if err != nil {
		return 0, fmt.Errorf("bridge health check failed: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("bridge health returned status %d", resp.StatusCode())
	}
	return result.DBRecords, nil
}

func orNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}
