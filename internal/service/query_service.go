package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"medquery/internal/access"
	"medquery/internal/domain"
	"medquery/internal/query"
	"medquery/internal/repository"
	"medquery/internal/store"
)

// QueryService 查询服务
// Holds the read-only record snapshot the orchestrator works on, plus
// an optional short-TTL response cache. Snapshot replacement is the
// only write, done at load time; queries never mutate it.
type QueryService struct {
	policy       *access.Policy
	repo         repository.PatientsRepository
	orchestrator *query.Orchestrator
	cache        store.KV // nil disables caching
	cacheTTL     time.Duration
	logger       *zap.Logger

	mu       sync.RWMutex
	snapshot []domain.PatientRecord
}

func NewQueryService(
	policy *access.Policy,
	repo repository.PatientsRepository,
	orchestrator *query.Orchestrator,
	cache store.KV,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *QueryService {
	return &QueryService{
		policy:       policy,
		repo:         repo,
		orchestrator: orchestrator,
		cache:        cache,
		cacheTTL:     cacheTTL,
		logger:       logger,
	}
}

// LoadSnapshotFromRepo fills the in-memory snapshot from storage.
func (s *QueryService) LoadSnapshotFromRepo(ctx context.Context, limit int) error {
	records, err := s.repo.SearchPatients(ctx, repository.PatientFilter{}, limit, 0)
	if err != nil {
		return fmt.Errorf("failed to load patient snapshot: %w", err)
	}
	s.mu.Lock()
	s.snapshot = records
	s.mu.Unlock()
	s.logger.Info("Loaded patient snapshot", zap.Int("records", len(records)))
	return nil
}

// LoadSnapshotFromFile reads a JSON record array (the seed data format)
// and also upserts it into the repository so search stays consistent.
func (s *QueryService) LoadSnapshotFromFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read patient data file: %w", err)
	}
	var records []domain.PatientRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to parse patient data file: %w", err)
	}
	if _, err := s.repo.UpsertPatients(ctx, records); err != nil {
		return fmt.Errorf("failed to seed repository from file: %w", err)
	}
	s.mu.Lock()
	s.snapshot = records
	s.mu.Unlock()
	s.logger.Info("Loaded patient snapshot from file",
		zap.String("file", path),
		zap.Int("records", len(records)),
	)
	return nil
}

// Snapshot returns the shared read-only record set.
func (s *QueryService) Snapshot() []domain.PatientRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// ProcessQuery answers one query for one caller.
func (s *QueryService) ProcessQuery(ctx context.Context, user domain.User, text string) domain.QueryResult {
	cacheKey := store.ResponseKey(string(user.Role), text)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey); err == nil {
			var result domain.QueryResult
			if json.Unmarshal([]byte(cached), &result) == nil {
				s.logger.Debug("query served from cache", zap.String("role", string(user.Role)))
				return result
			}
		} else if err != store.ErrMiss {
			s.logger.Warn("response cache unavailable", zap.Error(err))
		}
	}

	result := s.orchestrator.ProcessQuery(ctx, user, s.Snapshot(), text)

	if s.cache != nil && result.Success {
		if payload, err := json.Marshal(result); err == nil {
			if err := s.cache.Set(ctx, cacheKey, string(payload), s.cacheTTL); err != nil {
				s.logger.Warn("failed to cache query response", zap.Error(err))
			}
		}
	}
	return result
}

// Policy exposes the permission policy for the roles endpoint.
func (s *QueryService) Policy() *access.Policy {
	return s.policy
}

// HealthInfo 健康检查信息
type HealthInfo struct {
	Status            string `json:"status"`
	SnapshotRecords   int    `json:"snapshot_records"`
	DBRecords         *int   `json:"db_records,omitempty"`
	BridgeEnabled     bool   `json:"bridge_enabled"`
	GenerativeEnabled bool   `json:"generative_enabled"`
}

// Health reports snapshot and storage record counts plus which of the
// optional outbound collaborators are configured.
func (s *QueryService) Health(ctx context.Context) HealthInfo {
	info := HealthInfo{
		Status:            "healthy",
		SnapshotRecords:   len(s.Snapshot()),
		BridgeEnabled:     s.orchestrator.BridgeEnabled(),
		GenerativeEnabled: s.orchestrator.GenerativeEnabled(),
	}
	if count, err := s.repo.CountPatients(ctx); err == nil {
		info.DBRecords = &count
	} else {
		s.logger.Warn("failed to count stored patients", zap.Error(err))
	}
	return info
}
