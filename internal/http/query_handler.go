package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"medquery/internal/domain"
	"medquery/internal/service"
)

// QueryHandler 查询 API
// No endpoint here mutates stored data.
type QueryHandler struct {
	svc    *service.QueryService
	logger *zap.Logger
}

func NewQueryHandler(svc *service.QueryService, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{svc: svc, logger: logger}
}

type chatRequest struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

type chatResponse struct {
	Message        string   `json:"message"`
	Success        bool     `json:"success"`
	AccessLevel    string   `json:"access_level"`
	RedactedFields []string `json:"redacted_fields"`
	Timestamp      string   `json:"timestamp"`
}

// Chat POST /query/api/v1/chat
func (h *QueryHandler) Chat(w http.ResponseWriter, req *http.Request) {
	var body chatRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	role, err := domain.ParseRole(body.Role)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	message := strings.TrimSpace(body.Message)
	if message == "" {
		writeJSON(w, http.StatusBadRequest, Fail("empty message"))
		return
	}

	user := domain.User{ID: string(role), Name: string(role), Role: role}
	result := h.svc.ProcessQuery(req.Context(), user, message)

	writeJSON(w, http.StatusOK, Ok(chatResponse{
		Message:        result.Message,
		Success:        result.Success,
		AccessLevel:    string(result.AccessLevel),
		RedactedFields: result.RedactedFields,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}))
}

type roleInfo struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// Roles GET /query/api/v1/roles
func (h *QueryHandler) Roles(w http.ResponseWriter, _ *http.Request) {
	policy := h.svc.Policy()
	out := make([]roleInfo, 0, len(domain.Roles))
	for _, role := range domain.Roles {
		out = append(out, roleInfo{
			Role:        string(role),
			Permissions: policy.Descriptions(role),
		})
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

// Health GET /query/api/v1/health
func (h *QueryHandler) Health(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.svc.Health(req.Context())))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
