package team

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/courselab/courselab/pkg/eventbus"
	"github.com/courselab/courselab/pkg/metrics"
	"github.com/courselab/courselab/pkg/model"
	"github.com/courselab/courselab/pkg/store"
)

// Reaper periodically sweeps expired confirmation tokens and evicts
// the teams they belonged to. An expired token means the proposal can
// never reach unanimity, so the whole team goes.
type Reaper struct {
	service  *Service
	interval time.Duration
	logger   *zap.Logger
}

func NewReaper(service *Service, interval time.Duration, logger *zap.Logger) *Reaper {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Reaper{
		service:  service,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	r.logger.Info("token reaper started", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("token reaper stopped")
			return ctx.Err()
		case <-ticker.C:
			if evicted, err := r.service.Reap(ctx); err != nil {
				r.logger.Error("reap sweep failed", zap.Error(err))
			} else if evicted > 0 {
				r.logger.Info("evicted expired proposals", zap.Int("teams", evicted))
			}
		}
	}
}

// Reap performs one sweep. Expired tokens are grouped by team, every
// token of an implicated team is deleted, and the team is evicted.
// Teams already gone are skipped, so concurrent sweeps and racing
// rejects stay safe.
func (s *Service) Reap(ctx context.Context) (int, error) {
	expired, err := s.tokens.ListExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	byTeam := make(map[uuid.UUID][]model.Token)
	for _, token := range expired {
		byTeam[token.TeamID] = append(byTeam[token.TeamID], token)
	}

	evicted := 0
	for teamID, tokens := range byTeam {
		if err := s.reapTeam(ctx, teamID, len(tokens)); err != nil {
			s.logger.Error("failed to evict expired team",
				zap.Error(err), zap.String("team_id", teamID.String()))
			continue
		}
		evicted++
	}
	return evicted, nil
}

func (s *Service) reapTeam(ctx context.Context, teamID uuid.UUID, expiredCount int) error {
	teamKey := "team:" + teamID.String()
	s.locks.Lock(teamKey)
	defer s.locks.Unlock(teamKey)

	team, teamErr := s.teams.Get(ctx, teamID)

	if err := s.tokens.DeleteForTeam(ctx, teamID); err != nil {
		return err
	}
	metrics.TokensReaped.Add(float64(expiredCount))

	if err := s.teams.Delete(ctx, teamID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	s.recordAudit(ctx, "team", teamID.String(), "expired", "", model.JSONB{
		"expired_tokens": expiredCount,
	})
	if teamErr == nil {
		s.publishTeamEvent(ctx, eventbus.EventTeamEvicted, team, "confirmation window expired")
		metrics.TeamsEvictedTotal.WithLabelValues(team.CourseID.String(), "expired").Inc()
	}
	return nil
}
