package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"medquery/internal/access"
	"medquery/internal/domain"
)

// Config 生成式后端配置（OpenAI 兼容网关）
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// promptLineCap caps how many record lines enter the system prompt.
// The most-privileged role gets 60, everyone else 40; overflow is
// summarized in a single marker line, never dropped silently.
const (
	promptLineCapClinician = 60
	promptLineCapDefault   = 40
)

// Processor 生成式查询处理器
// One Process call is one conversation: prompt validation, completion,
// response validation, all bounded by the caller's context.
type Processor struct {
	httpClient *resty.Client
	cfg        Config
	shield     Shield
	policy     *access.Policy
	logger     *zap.Logger
}

func NewProcessor(cfg Config, shield Shield, policy *access.Policy, logger *zap.Logger) *Processor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	if shield == nil {
		shield = NoopShield{}
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	return &Processor{
		httpClient: client,
		cfg:        cfg,
		shield:     shield,
		policy:     policy,
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Process answers one free-form query through the generative backend.
// Transport failures come back as plain errors (the caller retries the
// rule-based path); a *PolicyRejectionError means the shield denied the
// exchange and must surface as a failed result.
func (p *Processor) Process(ctx context.Context, user domain.User, query string, records []domain.SanitizedRecord) (string, error) {
	conversationID := uuid.NewString()

	validatedQuery, err := p.shield.ValidatePrompt(ctx, query, user.Name, conversationID)
	if err != nil {
		return "", err
	}

	systemPrompt := p.buildSystemPrompt(user, records)

	answer, err := p.complete(ctx, systemPrompt, validatedQuery)
	if err != nil {
		return "", err
	}

	validatedAnswer, err := p.shield.ValidateResponse(ctx, answer, user.Name, conversationID)
	if err != nil {
		return "", err
	}
	return validatedAnswer, nil
}

func (p *Processor) complete(ctx context.Context, systemPrompt, userQuery string) (string, error) {
	var result chatResponse
	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model: p.cfg.Model,
			Messages: []chatMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: userQuery},
			},
			MaxTokens:   p.cfg.MaxTokens,
			Temperature: p.cfg.Temperature,
		}).
		SetResult(&result).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("generative backend call failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("generative backend returned status %d", resp.StatusCode())
	}
	if result.Error != nil {
		return "", fmt.Errorf("generative backend error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("generative backend returned no choices")
	}
	return result.Choices[0].Message.Content, nil
}

// buildSystemPrompt assembles the role-scoped context: permission
// lines, a role directive, and a line-capped sanitized record listing.
func (p *Processor) buildSystemPrompt(user domain.User, records []domain.SanitizedRecord) string {
	includeIdentifiers := user.Role == domain.RoleClinician
	maxLines := promptLineCapDefault
	if user.Role == domain.RoleClinician {
		maxLines = promptLineCapClinician
	}

	lines := make([]string, 0, maxLines+1)
	for i, r := range records {
		if i >= maxLines {
			break
		}
		lines = append(lines, formatRecordLine(r, includeIdentifiers))
	}
	if len(records) > maxLines {
		lines = append(lines, fmt.Sprintf("... (+%d more records omitted in context)", len(records)-maxLines))
	}

	var b strings.Builder
	b.WriteString("You are MedQuery, a healthcare data assistant.\n\n")
	b.WriteString(roleDirective(user.Role))
	b.WriteString("\n\nCurrent user: " + user.Name + " (role: " + string(user.Role) + ")\n")
	b.WriteString("\nUser permissions:\n")
	for _, d := range p.policy.Descriptions(user.Role) {
		b.WriteString("- " + d + "\n")
	}
	b.WriteString("\nPatient context (concise; do not paste raw records):\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\nAnswer directly and professionally within the stated permissions.")
	return b.String()
}

func roleDirective(role domain.Role) string {
	switch role {
	case domain.RoleClinician:
		return "You are assisting a CLINICIAN with full access to all patient fields. Answer with complete record details."
	case domain.RoleResearcher:
		return "You are assisting a RESEARCHER. Provide de-identified information only: patient IDs, never names or addresses."
	case domain.RoleAnalyst:
		return "You are assisting an ANALYST who may only see aggregate statistics and percentages. Never provide individual patient details."
	case domain.RoleTrainee:
		return "You are assisting a TRAINEE with no direct patient access. Deny patient-specific requests and suggest supervisor consultation."
	}
	return "No access permissions defined."
}

func formatRecordLine(r domain.SanitizedRecord, includeIdentifiers bool) string {
	name := ""
	if includeIdentifiers && r.Name != "" && r.Name != domain.RedactionMarker {
		name = r.Name + " "
	}
	return fmt.Sprintf("- %s(ID: %s) %d%s; Conditions: %s; Medications: %s; Visits: %s",
		name, r.ID, r.Age, r.Gender,
		joinOrNone(r.Conditions),
		joinOrNone(r.Medications),
		joinOrNone(r.VisitDates),
	)
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "None"
	}
	return strings.Join(values, ", ")
}
