package trial

import (
	"context"
	"fmt"
	"time"

	"fleetshare.app/cloud/internal/logger"
	"fleetshare.app/cloud/internal/metrics"
	"fleetshare.app/cloud/storage"
)

const expiringWindow = 48 * time.Hour

type SweepResult struct {
	Expired     int64     `json:"expired"`
	ProcessedAt time.Time `json:"processed_at"`
}

type Status struct {
	ActiveTrials    int       `json:"active_trials"`
	ExpiringSoon    int       `json:"expiring_soon"`
	NeedsProcessing int       `json:"needs_processing"`
	CheckedAt       time.Time `json:"checked_at"`
}

type Sweeper struct {
	Store storage.Storage
	Now   func() time.Time
}

func NewSweeper(store storage.Storage) *Sweeper {
	return &Sweeper{Store: store, Now: time.Now}
}

// Expire reverts every lapsed trial to FREE in one atomic update. Running it
// again with nothing lapsed affects no rows.
func (s *Sweeper) Expire(ctx context.Context) (*SweepResult, error) {
	now := s.Now().UTC()

	affected, err := s.Store.ExpireTrials(ctx, now)
	if err != nil {
		logger.Error("Trial sweep failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, fmt.Errorf("failed to expire trials: %w", err)
	}

	metrics.TrialsExpired.Add(float64(affected))
	logger.Info("Trial sweep completed", map[string]interface{}{
		"expired": affected,
	})

	return &SweepResult{Expired: affected, ProcessedAt: now}, nil
}

// Status counts trials without changing anything.
func (s *Sweeper) Status(ctx context.Context) (*Status, error) {
	now := s.Now().UTC()

	orgs, err := s.Store.ListTrialingOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list trials: %w", err)
	}

	status := &Status{CheckedAt: now}
	for _, org := range orgs {
		switch StateOf(org, now) {
		case StateTrialExpired:
			status.NeedsProcessing++
		case StateTrialing:
			status.ActiveTrials++
			if org.TrialEndsAt != nil && !org.TrialEndsAt.After(now.Add(expiringWindow)) {
				status.ExpiringSoon++
			}
		}
	}
	return status, nil
}
