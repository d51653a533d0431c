package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// PolicyRejectionError 安全策略拒绝
// Distinct from a transport failure: the validator answered and said no.
type PolicyRejectionError struct {
	Reason string
}

func (e *PolicyRejectionError) Error() string {
	return fmt.Sprintf("security policy rejection: %s", e.Reason)
}

// Shield validates prompts and responses before/after the generative
// backend sees them. Implementations swallow their own transport
// failures (the original text passes through); only a policy rejection
// surfaces as an error.
type Shield interface {
	ValidatePrompt(ctx context.Context, text, userName, conversationID string) (string, error)
	ValidateResponse(ctx context.Context, text, userName, conversationID string) (string, error)
}

// NoopShield passes everything through unchanged.
type NoopShield struct{}

func (NoopShield) ValidatePrompt(_ context.Context, text, _, _ string) (string, error) {
	return text, nil
}

func (NoopShield) ValidateResponse(_ context.Context, text, _, _ string) (string, error) {
	return text, nil
}

// HTTPShield 远端内容安全校验服务客户端
type HTTPShield struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

func NewHTTPShield(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *HTTPShield {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}
	return &HTTPShield{httpClient: client, logger: logger}
}

var _ Shield = (*HTTPShield)(nil)

type shieldRequest struct {
	Text           string `json:"text"`
	User           string `json:"user"`
	ConversationID string `json:"conversation_id"`
	Kind           string `json:"kind"` // "prompt" | "reply"
}

type shieldResponse struct {
	Allowed bool   `json:"allowed"`
	Text    string `json:"text"`
	Reason  string `json:"reason"`
}

func (s *HTTPShield) check(ctx context.Context, kind, text, userName, conversationID string) (string, error) {
	var result shieldResponse
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetBody(shieldRequest{Text: text, User: userName, ConversationID: conversationID, Kind: kind}).
		SetResult(&result).
		Post("/shield/check")
	if err != nil || resp.IsError() {
		// Validator unreachable: the original text passes through.
		s.logger.Warn("shield validation unavailable",
			zap.String("kind", kind),
			zap.Error(err),
		)
		return text, nil
	}
	if !result.Allowed {
		return "", &PolicyRejectionError{Reason: result.Reason}
	}
	if result.Text != "" && result.Text != text {
		s.logger.Debug("shield modified text", zap.String("kind", kind))
		return result.Text, nil
	}
	return text, nil
}

func (s *HTTPShield) ValidatePrompt(ctx context.Context, text, userName, conversationID string) (string, error) {
	return s.check(ctx, "prompt", text, userName, conversationID)
}

func (s *HTTPShield) ValidateResponse(ctx context.Context, text, userName, conversationID string) (string, error) {
	return s.check(ctx, "reply", text, userName, conversationID)
}
