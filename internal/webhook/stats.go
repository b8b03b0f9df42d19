package webhook

import (
	"context"
	"time"

	"github.com/shohag/hookrelay/internal/apperr"
	"github.com/shohag/hookrelay/internal/models"
	"github.com/shohag/hookrelay/internal/storage"
)

type EndpointStats struct {
	TotalTriggers      int64         `json:"totalTriggers"`
	SuccessfulTriggers int64         `json:"successfulTriggers"`
	FailedTriggers     int64         `json:"failedTriggers"`
	SuccessRate        float64       `json:"successRate"`
	LastTriggered      *time.Time    `json:"lastTriggered"`
	CurrentStatus      models.Status `json:"currentStatus"`
	Active             bool          `json:"active"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

func StatsOf(ep models.Endpoint) EndpointStats {
	return EndpointStats{
		TotalTriggers:      ep.TriggerCount,
		SuccessfulTriggers: ep.SuccessCount,
		FailedTriggers:     ep.FailureCount,
		SuccessRate:        models.SuccessRate(ep.SuccessCount, ep.TriggerCount),
		LastTriggered:      ep.LastTriggered,
		CurrentStatus:      ep.Status,
		Active:             ep.Active,
		CreatedAt:          ep.CreatedAt,
		UpdatedAt:          ep.UpdatedAt,
	}
}

func (s *Service) Stats(ctx context.Context, tenantID, id string) (*EndpointStats, error) {
	ep, err := s.registry.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	stats := StatsOf(*ep)
	return &stats, nil
}

func (s *Service) TenantStats(ctx context.Context, tenantID string) (*storage.Stats, error) {
	stats, err := s.store.GetStats(ctx, tenantID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to get stats")
	}
	return stats, nil
}

type LogFilter struct {
	Status string
	Page   int
	Limit  int
}

type LogPage struct {
	Logs       []models.Attempt `json:"logs"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	TotalPages int              `json:"totalPages"`
}

// Logs returns the endpoint's recent attempts, newest first.
func (s *Service) Logs(ctx context.Context, tenantID, id string, f LogFilter) (*LogPage, error) {
	status, ok := models.ParseAttemptStatus(f.Status)
	if !ok {
		return nil, apperr.Validation("status", "status must be success or failed")
	}
	if _, err := s.registry.Get(ctx, tenantID, id); err != nil {
		return nil, err
	}

	page, limit := normalizePage(f.Page, f.Limit)
	attempts, total, err := s.logs.ListAttempts(ctx, tenantID, id, models.AttemptFilter{
		Status: status,
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, apperr.Internal(err, "failed to list webhook logs")
	}
	if attempts == nil {
		attempts = []models.Attempt{}
	}
	return &LogPage{
		Logs:       attempts,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages(total, limit),
	}, nil
}
